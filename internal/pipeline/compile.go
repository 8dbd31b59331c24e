// Package pipeline compiles relational operator trees into MongoDB
// aggregation pipelines over the generated table metadata.
//
// Compilation is a depth-first walk: every operator first compiles its
// input(s), then appends its own stages and returns an updated state.
// The state is a value, copied on the way down, so join branches fork
// independent copies instead of sharing mutable context.
package pipeline

import (
	"go.mongodb.org/mongo-driver/bson"

	"doctable/internal/plan"
	"doctable/internal/schema"
)

// state is the accumulated compilation context for one branch: the
// stages emitted so far, the metadata table describing the current row
// shape, and the table the branch originally scanned.
//
// Column Path values in the metadata table always hold the column's
// current location in the document stream; operators that move values
// (projections, grouping, lookups) rebuild the table accordingly.
type state struct {
	stages []bson.D
	table  *schema.Table
	source *schema.Table

	// nullFiltered records that placeholder rows of a virtual table
	// have already been suppressed on this branch.
	nullFiltered bool
}

// appendStage returns a copy of the state with one more stage. The
// backing array is never shared between branches because every append
// goes through here with a full reslice.
func (s state) appendStage(stage bson.D) state {
	stages := make([]bson.D, 0, len(s.stages)+1)
	stages = append(stages, s.stages...)
	stages = append(stages, stage)
	s.stages = stages
	return s
}

// Result is what the execution layer needs to run the query: output
// column names, their document paths, and the native stage list.
type Result struct {
	Fields []string
	Paths  []string
	Stages []bson.D

	// Collection is the collection the pipeline runs against.
	Collection string
}

// Compile translates a relational operator tree into an aggregation
// pipeline using the given table metadata. The metadata is read-only;
// concurrent compilations may share it.
func Compile(node plan.Node, tables map[string]*schema.Table) (*Result, error) {
	st, err := compile(node, tables)
	if err != nil {
		return nil, err
	}
	st = suppressNullRows(st)

	res := &Result{Collection: st.source.Collection}
	for _, col := range st.table.Columns() {
		res.Fields = append(res.Fields, col.SQLName)
		res.Paths = append(res.Paths, col.Path)
	}
	res.Stages = st.stages
	return res, nil
}

// compile dispatches on the closed operator set. The switch is
// exhaustive over plan.Node.
func compile(node plan.Node, tables map[string]*schema.Table) (state, error) {
	switch n := node.(type) {
	case *plan.Scan:
		return compileScan(n, tables)
	case *plan.Project:
		return compileProject(n, tables)
	case *plan.Filter:
		return compileFilter(n, tables)
	case *plan.Sort:
		return compileSort(n, tables)
	case *plan.Aggregate:
		return compileAggregate(n, tables)
	case *plan.Join:
		return compileJoin(n, tables)
	default:
		return state{}, translateErrf(ErrCodeUnsupportedExpr, "unsupported plan node %T", node)
	}
}

// suppressNullRows injects the virtual-table existence match once per
// branch: a document that never had the nested structure still yields
// a placeholder row after the preserving unwind, and operators that
// observe row counts or row contents must not see it.
func suppressNullRows(s state) state {
	if s.nullFiltered || !s.source.Virtual() {
		return s
	}
	match := existenceMatch(s.table)
	s.nullFiltered = true
	if match == nil {
		return s
	}
	return s.appendStage(bson.D{{Key: "$match", Value: match}})
}

// existenceMatch builds the $or-of-$exists predicate over a virtual
// table's own fields: everything except key copies and synthesized
// columns. Returns nil when the table has no own fields to test.
func existenceMatch(t *schema.Table) bson.D {
	var clauses bson.A
	for _, col := range t.Columns() {
		if col.PrimaryKey || col.ForeignKey() || col.Generated || col.IsArrayIndex {
			continue
		}
		clauses = append(clauses, bson.D{{Key: col.Path, Value: bson.D{{Key: "$exists", Value: true}}}})
	}
	if clauses == nil {
		return nil
	}
	return bson.D{{Key: "$or", Value: clauses}}
}

// column resolves a SQL name against the current row shape.
func (s state) column(name string) (*schema.Column, error) {
	col, ok := s.table.Column(name)
	if !ok {
		return nil, translateErrf(ErrCodeUnknownColumn, "column %q not in current row shape of %s", name, s.table.SQLName)
	}
	return col, nil
}
