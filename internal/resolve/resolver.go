// Package resolve turns hierarchical document field paths into flat,
// unique, length-bounded SQL identifiers. The schema generator and the
// pipeline compiler share one Registry per table so a path always maps
// to the same identifier.
package resolve

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Separator joins path segments in source field paths.
const Separator = "."

// MaxNameLength is the identifier budget for table and column names.
const MaxNameLength = 128

// Combine joins a parent path and a field name with a single separator.
// Empty parent or field collapses to the other side, so combining never
// produces doubled or dangling separators.
func Combine(parent, field string) string {
	if parent == "" {
		return field
	}
	if field == "" {
		return parent
	}
	return parent + Separator + field
}

// Registry assigns identifiers to paths. Re-resolving a path returns
// the identifier assigned the first time; two distinct paths never
// share an identifier. A Registry is not safe for concurrent use.
type Registry struct {
	maxLength int
	byPath    map[string]string
	byName    map[string]string
}

// NewRegistry returns a registry bounded by MaxNameLength.
func NewRegistry() *Registry {
	return NewRegistryWithLimit(MaxNameLength)
}

// NewRegistryWithLimit returns a registry with an explicit identifier
// budget. Limits below 1 are treated as 1.
func NewRegistryWithLimit(maxLength int) *Registry {
	if maxLength < 1 {
		maxLength = 1
	}
	return &Registry{
		maxLength: maxLength,
		byPath:    make(map[string]string),
		byName:    make(map[string]string),
	}
}

// Resolve returns the identifier for path, assigning one if this is
// the first time the path is seen.
func (r *Registry) Resolve(path string) string {
	path = norm.NFC.String(path)
	if name, ok := r.byPath[path]; ok {
		return name
	}

	name := r.shorten(strings.ReplaceAll(path, Separator, "_"))
	name = r.uniquify(name)

	r.byPath[path] = name
	r.byName[name] = path
	return name
}

// Reserve marks a name as taken without binding it to a path. Used
// when a table inherits identifiers from an ancestor (primary-key
// copies) so locally resolved names can never collide with them.
func (r *Registry) Reserve(name string) {
	if _, taken := r.byName[name]; !taken {
		r.byName[name] = ""
	}
}

// shorten fits a candidate identifier into the length budget. Leading
// segments are dropped first since the trailing segments are the most
// specific part of a path; an overlong single segment keeps its tail.
func (r *Registry) shorten(name string) string {
	if len(name) <= r.maxLength {
		return name
	}
	for {
		i := strings.Index(name, "_")
		if i < 0 || i+1 >= len(name) {
			break
		}
		name = name[i+1:]
		if len(name) <= r.maxLength {
			return name
		}
	}
	// No separator left to drop; keep the tail.
	return name[len(name)-r.maxLength:]
}

// uniquify appends a numeric suffix when the shortened name is already
// held by a different path, trimming the base so the result stays
// within the budget.
func (r *Registry) uniquify(name string) string {
	if _, taken := r.byName[name]; !taken {
		return name
	}
	for n := 1; ; n++ {
		suffix := strconv.Itoa(n)
		base := name
		if len(base)+len(suffix) > r.maxLength {
			base = base[:max(0, r.maxLength-len(suffix))]
		}
		candidate := base + suffix
		if _, taken := r.byName[candidate]; !taken {
			return candidate
		}
	}
}
