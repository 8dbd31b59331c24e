package schema

import (
	"fmt"

	"github.com/google/uuid"
)

// Table is one synthesized relational table: either the base table of a
// collection or a virtual table for a nested document or array field.
//
// Column order is discovery order. The generator mutates tables while
// sampling; once a table map is published to the catalog it is treated
// as immutable and may be shared across concurrent compilations.
type Table struct {
	// ID identifies this table version in the persistence store.
	ID string

	// SQLName is the resolved table identifier.
	SQLName string

	// Collection is the source collection the table was derived from.
	Collection string

	// FieldPath is the document path of the nested structure a
	// virtual table was rooted at; empty for base tables.
	FieldPath string

	columns []*Column
	byName  map[string]*Column
	byPath  map[string]*Column
}

// NewTable creates an empty table with a fresh identifier.
func NewTable(sqlName, collection string) *Table {
	return &Table{
		ID:         uuid.NewString(),
		SQLName:    sqlName,
		Collection: collection,
		byName:     make(map[string]*Column),
		byPath:     make(map[string]*Column),
	}
}

// Add appends a column in discovery order. Both the SQL name and the
// path (for non-generated columns) must be unique within the table.
func (t *Table) Add(c *Column) error {
	if _, ok := t.byName[c.SQLName]; ok {
		return fmt.Errorf("table %s: duplicate column name %q", t.SQLName, c.SQLName)
	}
	if c.Path != "" {
		if _, ok := t.byPath[c.Path]; ok {
			return fmt.Errorf("table %s: duplicate column path %q", t.SQLName, c.Path)
		}
	}
	c.Index = len(t.columns)
	t.columns = append(t.columns, c)
	t.byName[c.SQLName] = c
	if c.Path != "" {
		t.byPath[c.Path] = c
	}
	return nil
}

// Remove deletes a column by SQL name and renumbers the remainder.
// Removing an absent column is a no-op.
func (t *Table) Remove(sqlName string) {
	c, ok := t.byName[sqlName]
	if !ok {
		return
	}
	delete(t.byName, sqlName)
	if c.Path != "" {
		delete(t.byPath, c.Path)
	}
	kept := t.columns[:0]
	for _, col := range t.columns {
		if col != c {
			kept = append(kept, col)
		}
	}
	t.columns = kept
	for i, col := range t.columns {
		col.Index = i
	}
}

// Column looks a column up by SQL name.
func (t *Table) Column(sqlName string) (*Column, bool) {
	c, ok := t.byName[sqlName]
	return c, ok
}

// ColumnByPath looks a column up by source path.
func (t *Table) ColumnByPath(path string) (*Column, bool) {
	c, ok := t.byPath[path]
	return c, ok
}

// Columns returns the columns in discovery order. Callers must not
// modify the returned slice.
func (t *Table) Columns() []*Column {
	return t.columns
}

// Len returns the number of columns.
func (t *Table) Len() int {
	return len(t.columns)
}

// PrimaryKeys returns the primary-key columns in discovery order.
func (t *Table) PrimaryKeys() []*Column {
	var keys []*Column
	for _, c := range t.columns {
		if c.PrimaryKey {
			keys = append(keys, c)
		}
	}
	return keys
}

// ForeignKeys returns the columns linking back to ancestor tables,
// ordered by ancestor depth.
func (t *Table) ForeignKeys() []*Column {
	var keys []*Column
	for _, c := range t.columns {
		if c.ForeignKey() {
			keys = append(keys, c)
		}
	}
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if keys[j].ForeignKeyOrder < keys[i].ForeignKeyOrder {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	return keys
}

// Virtual reports whether this table was synthesized from a nested
// field: any table holding a foreign-key column is a child of another
// table rather than a collection root.
func (t *Table) Virtual() bool {
	for _, c := range t.columns {
		if c.ForeignKey() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy sharing no columns with the original. The
// copy keeps the same ID: it denotes the same table version.
func (t *Table) Clone() *Table {
	dup := &Table{
		ID:         t.ID,
		SQLName:    t.SQLName,
		Collection: t.Collection,
		FieldPath:  t.FieldPath,
		byName:     make(map[string]*Column, len(t.columns)),
		byPath:     make(map[string]*Column, len(t.columns)),
	}
	for _, c := range t.columns {
		cc := c.Clone()
		dup.columns = append(dup.columns, cc)
		dup.byName[cc.SQLName] = cc
		if cc.Path != "" {
			dup.byPath[cc.Path] = cc
		}
	}
	return dup
}

// Reset drops every column while keeping identity. Used when a type
// conflict invalidates an entire virtual table shape.
func (t *Table) Reset() {
	t.columns = nil
	t.byName = make(map[string]*Column)
	t.byPath = make(map[string]*Column)
}
