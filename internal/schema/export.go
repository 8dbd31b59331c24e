package schema

import (
	"encoding/json"
	"fmt"

	"doctable/internal/doctype"
)

// exportTable is the wire form of a table in the exported artifact.
type exportTable struct {
	SQLName        string         `json:"sqlName"`
	CollectionName string         `json:"collectionName"`
	FieldPath      string         `json:"fieldPath,omitempty"`
	Columns        []exportColumn `json:"columns"`
}

// exportColumn is the wire form of a column. Boolean and ordinal
// markers are omitted when unset so the common scalar column stays
// compact.
type exportColumn struct {
	FieldPath        string `json:"fieldPath"`
	SQLName          string `json:"sqlName"`
	SQLType          string `json:"sqlType"`
	DBType           string `json:"dbType"`
	IsPrimaryKey     bool   `json:"isPrimaryKey,omitempty"`
	ForeignKeyOrder  int    `json:"foreignKeyOrder,omitempty"`
	VirtualTableName string `json:"virtualTableName,omitempty"`
	IsGenerated      bool   `json:"isGenerated,omitempty"`
	ArrayIndexLevel  *int   `json:"arrayIndexLevel,omitempty"`
}

// MarshalTables renders tables as the exported JSON artifact, ordered
// by table name.
func MarshalTables(tables map[string]*Table) ([]byte, error) {
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

	out := make([]exportTable, 0, len(names))
	for _, name := range names {
		out = append(out, toWire(tables[name]))
	}
	return json.MarshalIndent(out, "", "  ")
}

// MarshalTable renders one table as a standalone artifact element.
func MarshalTable(t *Table) ([]byte, error) {
	return json.Marshal(toWire(t))
}

// UnmarshalTable parses one standalone artifact element. Like
// UnmarshalTables it assigns a fresh identifier; callers restoring a
// persisted table overwrite the ID afterwards.
func UnmarshalTable(data []byte) (*Table, error) {
	var et exportTable
	if err := json.Unmarshal(data, &et); err != nil {
		return nil, fmt.Errorf("parse table artifact: %w", err)
	}
	return fromWire(et)
}

func toWire(t *Table) exportTable {
	et := exportTable{
		SQLName:        t.SQLName,
		CollectionName: t.Collection,
		FieldPath:      t.FieldPath,
		Columns:        make([]exportColumn, 0, t.Len()),
	}
	for _, c := range t.Columns() {
		ec := exportColumn{
			FieldPath:        c.Path,
			SQLName:          c.SQLName,
			SQLType:          c.SQLType.String(),
			DBType:           c.SourceType.String(),
			IsPrimaryKey:     c.PrimaryKey,
			ForeignKeyOrder:  c.ForeignKeyOrder,
			VirtualTableName: c.VirtualTableName,
			IsGenerated:      c.Generated,
		}
		if c.IsArrayIndex {
			level := c.ArrayIndexLevel
			ec.ArrayIndexLevel = &level
		}
		et.Columns = append(et.Columns, ec)
	}
	return et
}

// UnmarshalTables parses the exported JSON artifact back into tables.
// Each parsed table gets a fresh identifier: imports always create new
// table versions.
func UnmarshalTables(data []byte) (map[string]*Table, error) {
	var wire []exportTable
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parse schema artifact: %w", err)
	}
	tables := make(map[string]*Table, len(wire))
	for _, et := range wire {
		t, err := fromWire(et)
		if err != nil {
			return nil, err
		}
		if _, dup := tables[t.SQLName]; dup {
			return nil, fmt.Errorf("parse schema artifact: duplicate table %q", t.SQLName)
		}
		tables[t.SQLName] = t
	}
	return tables, nil
}

func fromWire(et exportTable) (*Table, error) {
	if et.SQLName == "" {
		return nil, fmt.Errorf("parse schema artifact: table with empty sqlName")
	}
	t := NewTable(et.SQLName, et.CollectionName)
	t.FieldPath = et.FieldPath
	for _, ec := range et.Columns {
		sqlType, ok := doctype.ParseSQLType(ec.SQLType)
		if !ok {
			return nil, fmt.Errorf("table %s column %s: unknown sqlType %q",
				et.SQLName, ec.SQLName, ec.SQLType)
		}
		dbType, ok := doctype.ParseBsonType(ec.DBType)
		if !ok {
			return nil, fmt.Errorf("table %s column %s: unknown dbType %q",
				et.SQLName, ec.SQLName, ec.DBType)
		}
		c := &Column{
			Path:             ec.FieldPath,
			SQLName:          ec.SQLName,
			SQLType:          sqlType,
			SourceType:       dbType,
			PrimaryKey:       ec.IsPrimaryKey,
			ForeignKeyOrder:  ec.ForeignKeyOrder,
			VirtualTableName: ec.VirtualTableName,
			Generated:        ec.IsGenerated,
		}
		if ec.ArrayIndexLevel != nil {
			c.IsArrayIndex = true
			c.ArrayIndexLevel = *ec.ArrayIndexLevel
		}
		if err := t.Add(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}
