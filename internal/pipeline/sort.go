package pipeline

import (
	"go.mongodb.org/mongo-driver/bson"

	"doctable/internal/plan"
	"doctable/internal/schema"
)

// compileSort appends one sort stage, then skip and limit stages when
// an offset or fetch is present. Explicit NULLS FIRST/LAST has no
// pipeline equivalent and is rejected rather than silently reordered.
func compileSort(n *plan.Sort, tables map[string]*schema.Table) (state, error) {
	st, err := compile(n.Input, tables)
	if err != nil {
		return state{}, err
	}
	// Skip and limit observe row counts; a virtual-table placeholder
	// row must not consume a limit slot.
	st = suppressNullRows(st)

	keys := make(bson.D, 0, len(n.Keys))
	for _, key := range n.Keys {
		if key.NullsFirst != nil {
			return state{}, translateErrf(ErrCodeUnsupportedSort,
				"NULLS FIRST/LAST on %q is not supported", key.Column)
		}
		col, err := st.column(key.Column)
		if err != nil {
			return state{}, err
		}
		direction := 1
		if key.Descending {
			direction = -1
		}
		keys = append(keys, bson.E{Key: col.Path, Value: direction})
	}
	if len(keys) > 0 {
		st = st.appendStage(bson.D{{Key: "$sort", Value: keys}})
	}

	if n.Offset > 0 {
		st = st.appendStage(bson.D{{Key: "$skip", Value: n.Offset}})
	}
	if n.Fetch > 0 {
		st = st.appendStage(bson.D{{Key: "$limit", Value: n.Fetch}})
	}
	return st, nil
}
