package resolve

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCombine(t *testing.T) {
	tests := []struct {
		parent, field, want string
	}{
		{"", "field", "field"},
		{"parent", "", "parent"},
		{"parent", "field", "parent.field"},
		{"a.b", "c", "a.b.c"},
		{"", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Combine(tt.parent, tt.field))
	}
}

func TestResolve_ReplacesSeparators(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, "address_city", r.Resolve("address.city"))
	assert.Equal(t, "a_b_c", r.Resolve("a.b.c"))
}

func TestResolve_Deterministic(t *testing.T) {
	r := NewRegistry()
	first := r.Resolve("orders.items.sku")
	assert.Equal(t, first, r.Resolve("orders.items.sku"))
	assert.Equal(t, first, r.Resolve("orders.items.sku"))
}

func TestResolve_DistinctPathsDistinctNames(t *testing.T) {
	r := NewRegistryWithLimit(10)
	paths := []string{
		"alpha.beta.gamma",
		"alpha.beta.gamma.delta",
		"beta.gamma",
		"gamma",
		"alphabeta.gamma",
	}
	seen := make(map[string]string)
	for _, p := range paths {
		name := r.Resolve(p)
		prev, dup := seen[name]
		assert.False(t, dup, "paths %q and %q both resolved to %q", prev, p, name)
		seen[name] = p
		assert.LessOrEqual(t, len(name), 10)
	}
}

func TestResolve_TruncationKeepsTrailingSegments(t *testing.T) {
	r := NewRegistryWithLimit(12)
	// The most specific (trailing) segments survive truncation.
	assert.Equal(t, "verySpecific", r.Resolve("outer.middle.verySpecific"))
}

func TestResolve_OverlongSingleSegmentKeepsTail(t *testing.T) {
	r := NewRegistryWithLimit(8)
	name := r.Resolve("abcdefghijklmnop")
	assert.Equal(t, "ijklmnop", name)
}

func TestResolve_CollisionGetsNumericSuffix(t *testing.T) {
	r := NewRegistryWithLimit(5)
	first := r.Resolve("x.value")
	second := r.Resolve("y.value")
	third := r.Resolve("z.value")
	assert.Equal(t, "value", first)
	assert.Equal(t, "valu1", second)
	assert.Equal(t, "valu2", third)
	// Re-resolving keeps the originally assigned names.
	assert.Equal(t, "valu1", r.Resolve("y.value"))
}

func TestResolve_ManyCollisionsStayBounded(t *testing.T) {
	r := NewRegistryWithLimit(6)
	names := make(map[string]bool)
	for i := 0; i < 25; i++ {
		name := r.Resolve(fmt.Sprintf("p%d.column", i))
		assert.LessOrEqual(t, len(name), 6)
		assert.False(t, names[name], "duplicate %q", name)
		names[name] = true
	}
}

func TestResolve_SuffixWiderThanBudget(t *testing.T) {
	// Once collisions outnumber the budget the suffix alone is wider
	// than the whole identifier; the base trims to empty instead of
	// reslicing past zero.
	r := NewRegistryWithLimit(1)
	names := make(map[string]bool)
	assert.NotPanics(t, func() {
		for i := 0; i < 15; i++ {
			name := r.Resolve(fmt.Sprintf("p%d.v", i))
			assert.False(t, names[name], "duplicate %q", name)
			names[name] = true
		}
	})
}

func TestResolve_DefaultBudget(t *testing.T) {
	r := NewRegistry()
	long := strings.Repeat("segment.", 40) + "leaf"
	name := r.Resolve(long)
	assert.LessOrEqual(t, len(name), MaxNameLength)
	assert.True(t, strings.HasSuffix(name, "leaf"))
}
