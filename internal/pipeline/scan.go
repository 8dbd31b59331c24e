package pipeline

import (
	"go.mongodb.org/mongo-driver/bson"

	"doctable/internal/plan"
	"doctable/internal/schema"
)

// compileScan is the leaf translator. It pins the branch's source
// table and builds the compiler's view of its metadata.
//
// Scanning an array-derived virtual table emits one preserving unwind
// per nesting level, so each array element becomes its own document
// with the element ordinal materialized under the index column's name.
// Rows for documents without the array survive as placeholders until a
// downstream operator (or the root) suppresses them.
func compileScan(n *plan.Scan, tables map[string]*schema.Table) (state, error) {
	src, ok := tables[n.Table]
	if !ok {
		return state{}, translateErrf(ErrCodeUnknownTable, "table %q not in schema", n.Table)
	}

	st := state{source: src, table: scanView(src)}

	// One unwind per nesting level, shallowest first. After the first
	// unwind the array field holds the inner array, so every level
	// unwinds the same path.
	for _, col := range indexColumnsByLevel(src) {
		st = st.appendStage(bson.D{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$" + src.FieldPath},
			{Key: "includeArrayIndex", Value: col.SQLName},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}})
	}
	return st, nil
}

// indexColumnsByLevel returns the array index columns ordered by
// nesting level.
func indexColumnsByLevel(src *schema.Table) []*schema.Column {
	var cols []*schema.Column
	for _, col := range src.Columns() {
		if col.IsArrayIndex {
			cols = append(cols, col)
		}
	}
	for i := 0; i < len(cols); i++ {
		for j := i + 1; j < len(cols); j++ {
			if cols[j].ArrayIndexLevel < cols[i].ArrayIndexLevel {
				cols[i], cols[j] = cols[j], cols[i]
			}
		}
	}
	return cols
}

// scanView clones the table for compilation: virtual-table reference
// columns describe structure, not row data, and are excluded from the
// row shape; index columns live at their own name once unwound.
func scanView(src *schema.Table) *schema.Table {
	view := schema.NewTable(src.SQLName, src.Collection)
	view.ID = src.ID
	view.FieldPath = src.FieldPath
	for _, col := range src.Columns() {
		if col.VirtualTableName != "" {
			continue
		}
		cp := col.Clone()
		if cp.IsArrayIndex {
			cp.Path = cp.SQLName
		}
		_ = view.Add(cp)
	}
	return view
}
