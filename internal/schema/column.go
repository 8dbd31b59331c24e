package schema

import "doctable/internal/doctype"

// Column describes one relational column synthesized from a document
// field path.
//
// A column belongs to exactly one Table. Within a table both SQLName
// and Path are unique; Table.Add enforces this.
type Column struct {
	// Path is the dot-delimited source field path. Empty for generated
	// columns, which have no source field.
	Path string

	// SQLName is the resolved, de-duplicated, length-bounded identifier.
	SQLName string

	// SQLType is the unified relational type after promotion.
	SQLType doctype.SQLType

	// SourceType is the most recently observed document type at Path.
	SourceType doctype.BsonType

	// Index is the ordinal position within the table, in discovery order.
	Index int

	// PrimaryKey is true for the _id column of a base document and for
	// the components of a virtual table's composite key.
	PrimaryKey bool

	// ForeignKeyOrder is non-zero when this column links a virtual
	// table back to an ancestor; the value reflects ancestor depth,
	// 1 being the root.
	ForeignKeyOrder int

	// VirtualTableName names the virtual table this column refers to,
	// when the field was promoted to its own table.
	VirtualTableName string

	// Generated is true for computed or projected outputs that carry
	// no source path.
	Generated bool

	// IsArrayIndex marks a synthesized array-ordinal column;
	// ArrayIndexLevel is the nesting depth it materializes, starting
	// at zero.
	IsArrayIndex    bool
	ArrayIndexLevel int
}

// ForeignKey reports whether the column links back to an ancestor table.
func (c *Column) ForeignKey() bool {
	return c.ForeignKeyOrder > 0
}

// Clone returns an independent copy of the column.
func (c *Column) Clone() *Column {
	dup := *c
	return &dup
}
