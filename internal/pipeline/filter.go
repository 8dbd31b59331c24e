package pipeline

import (
	"go.mongodb.org/mongo-driver/bson"

	"doctable/internal/plan"
	"doctable/internal/schema"
)

// compileFilter appends one match stage for the translated predicate.
// The row shape is unchanged.
func compileFilter(n *plan.Filter, tables map[string]*schema.Table) (state, error) {
	st, err := compile(n.Input, tables)
	if err != nil {
		return state{}, err
	}
	match, err := translateMatch(st, n.Predicate, false)
	if err != nil {
		return state{}, err
	}
	return st.appendStage(bson.D{{Key: "$match", Value: match}}), nil
}
