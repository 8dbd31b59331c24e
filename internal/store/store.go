// Package store persists generated schemas. Two implementations share
// one interface: a document-store-backed store keeping schema metadata
// next to the data it describes, and a SQLite store for environments
// where the source database refuses metadata writes.
package store

import (
	"context"
	"fmt"

	"doctable/internal/schema"
)

// Store is the persistence facade for versioned schemas and their
// tables. Lookups that find nothing return (nil, nil): an absent
// schema is an ordinary outcome, not an error.
type Store interface {
	// Read returns the named schema version, or (nil, nil) when the
	// name or version does not exist.
	Read(ctx context.Context, name string, version int) (*schema.Schema, error)

	// ReadLatest returns the highest version of the named schema, or
	// (nil, nil) when none exists.
	ReadLatest(ctx context.Context, name string) (*schema.Schema, error)

	// ReadTable returns one table of a schema version by table id, or
	// (nil, nil) when absent.
	ReadTable(ctx context.Context, name string, version int, tableID string) (*schema.Table, error)

	// ReadTables returns every table a schema references, keyed by SQL
	// name.
	ReadTables(ctx context.Context, sc *schema.Schema) (map[string]*schema.Table, error)

	// Write persists a new schema version with its tables. Writing an
	// existing (name, version) pair is an error.
	Write(ctx context.Context, sc *schema.Schema, tables map[string]*schema.Table) error

	// Update replaces the stored tables of an existing schema version.
	Update(ctx context.Context, sc *schema.Schema, tables map[string]*schema.Table) error

	// Remove deletes every version of the named schema.
	Remove(ctx context.Context, name string) error

	// RemoveVersion deletes one version of the named schema.
	RemoveVersion(ctx context.Context, name string, version int) error

	// List returns every stored schema aggregate, newest version per
	// name first.
	List(ctx context.Context) ([]*schema.Schema, error)

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

// SecurityError reports a store write the backing database refused for
// authorization reasons. Callers degrade to in-process caching instead
// of failing the generation.
type SecurityError struct {
	Op  string
	Err error
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("store: %s refused: %v", e.Op, e.Err)
}

func (e *SecurityError) Unwrap() error {
	return e.Err
}
