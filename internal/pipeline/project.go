package pipeline

import (
	"go.mongodb.org/mongo-driver/bson"

	"doctable/internal/doctype"
	"doctable/internal/plan"
	"doctable/internal/schema"
)

// compileProject rebuilds the row shape from the projection list.
//
// Column references are metadata-only: a rename moves the column under
// its new name while the document field stays where it was, so no
// stage is needed. Computed expressions become one field-addition
// stage and register generated columns living at their output name.
func compileProject(n *plan.Project, tables map[string]*schema.Table) (state, error) {
	st, err := compile(n.Input, tables)
	if err != nil {
		return state{}, err
	}
	// Row counts become observable through projection output; drop
	// virtual-table placeholder rows first.
	st = suppressNullRows(st)

	out := schema.NewTable(st.table.SQLName, st.table.Collection)
	out.ID = st.table.ID
	out.FieldPath = st.table.FieldPath

	var added bson.D
	for _, pe := range n.Exprs {
		if ref, ok := pe.Expr.(*plan.ColumnRef); ok {
			col, err := st.column(ref.Name)
			if err != nil {
				return state{}, err
			}
			cp := col.Clone()
			cp.SQLName = pe.Name
			if err := out.Add(cp); err != nil {
				return state{}, translateErrf(ErrCodeUnsupportedExpr, "projection: %v", err)
			}
			continue
		}

		value, err := translateValue(st, pe.Expr)
		if err != nil {
			return state{}, err
		}
		added = append(added, bson.E{Key: pe.Name, Value: value})
		gen := &schema.Column{
			Path:      pe.Name,
			SQLName:   pe.Name,
			SQLType:   computedType(pe.Expr),
			Generated: true,
		}
		if err := out.Add(gen); err != nil {
			return state{}, translateErrf(ErrCodeUnsupportedExpr, "projection: %v", err)
		}
	}

	if added != nil {
		st = st.appendStage(bson.D{{Key: "$addFields", Value: added}})
	}
	st.table = out
	return st, nil
}

// computedType gives the relational type of a computed output:
// concatenation yields text, every other supported operator is
// numeric.
func computedType(expr plan.Expr) doctype.SQLType {
	if call, ok := expr.(*plan.Call); ok && call.Op == plan.OpConcat {
		return doctype.SQLVarchar
	}
	if _, ok := expr.(*plan.Literal); ok {
		if lit := expr.(*plan.Literal); lit.Type != doctype.SQLNull {
			return lit.Type
		}
	}
	return doctype.SQLDouble
}
