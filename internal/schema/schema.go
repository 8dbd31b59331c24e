// Package schema holds the metadata model shared by the schema
// generator and the pipeline compiler: columns, tables and the
// versioned schema aggregate the persistence store durably keeps.
package schema

import "time"

// TableRef names one table version a schema aggregate references.
type TableRef struct {
	SQLName string `json:"sqlName"`
	ID      string `json:"id"`
}

// Schema is the persisted aggregate: a named, versioned set of table
// references for one source database. Versions increase monotonically
// per name; older versions stay readable until removed.
type Schema struct {
	Name      string     `json:"schemaName"`
	Version   int        `json:"schemaVersion"`
	Database  string     `json:"sqlDbName"`
	CreatedAt time.Time  `json:"creationDate"`
	Tables    []TableRef `json:"tables"`
}

// NewSchema builds version 1 of a schema aggregate over the given
// tables.
func NewSchema(name, database string, tables map[string]*Table) *Schema {
	s := &Schema{
		Name:      name,
		Version:   1,
		Database:  database,
		CreatedAt: time.Now().UTC(),
	}
	s.SetTables(tables)
	return s
}

// NextVersion returns a successor aggregate referencing the given
// tables, carrying forward name and database.
func (s *Schema) NextVersion(tables map[string]*Table) *Schema {
	next := &Schema{
		Name:      s.Name,
		Version:   s.Version + 1,
		Database:  s.Database,
		CreatedAt: time.Now().UTC(),
	}
	next.SetTables(tables)
	return next
}

// SetTables replaces the reference set, ordered by table name for a
// stable persisted form.
func (s *Schema) SetTables(tables map[string]*Table) {
	s.Tables = s.Tables[:0]
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[j] < names[i] {
				names[i], names[j] = names[j], names[i]
			}
		}
	}
	for _, name := range names {
		s.Tables = append(s.Tables, TableRef{SQLName: name, ID: tables[name].ID})
	}
}

// Ref returns the table reference for a SQL name, if present.
func (s *Schema) Ref(sqlName string) (TableRef, bool) {
	for _, ref := range s.Tables {
		if ref.SQLName == sqlName {
			return ref, true
		}
	}
	return TableRef{}, false
}
