package pipeline

import (
	"go.mongodb.org/mongo-driver/bson"

	"doctable/internal/doctype"
	"doctable/internal/plan"
	"doctable/internal/schema"
)

// compileAggregate emits one group stage, plus a follow-up projection
// when group keys or DISTINCT results must be unpacked out of the
// synthetic _id structure.
//
// The metadata table is rebuilt from scratch: group keys keep their
// source paths, aggregate outputs are generated columns.
func compileAggregate(n *plan.Aggregate, tables map[string]*schema.Table) (state, error) {
	st, err := compile(n.Input, tables)
	if err != nil {
		return state{}, err
	}
	// Aggregates observe row counts; placeholder rows of a virtual
	// table must not be counted.
	st = suppressNullRows(st)

	group := bson.D{}
	groupCols := make([]*schema.Column, 0, len(n.GroupBy))
	for _, name := range n.GroupBy {
		col, err := st.column(name)
		if err != nil {
			return state{}, err
		}
		groupCols = append(groupCols, col)
	}

	// Group key: the field itself for a single key, an aliased
	// document for compound keys, null for a full-table aggregate.
	switch len(groupCols) {
	case 0:
		group = append(group, bson.E{Key: "_id", Value: nil})
	case 1:
		group = append(group, bson.E{Key: "_id", Value: "$" + groupCols[0].Path})
	default:
		keyDoc := make(bson.D, 0, len(groupCols))
		for _, col := range groupCols {
			keyDoc = append(keyDoc, bson.E{Key: col.SQLName, Value: "$" + col.Path})
		}
		group = append(group, bson.E{Key: "_id", Value: keyDoc})
	}

	type distinctCall struct {
		call plan.AggregateCall
		tmp  string
	}
	var distincts []distinctCall

	for _, call := range n.Calls {
		acc, err := accumulator(st, call)
		if err != nil {
			return state{}, err
		}
		if call.Distinct {
			// Set-then-reduce: collect the distinct values now, reduce
			// them in the follow-up projection.
			tmp := "dct_set_" + call.Name
			group = append(group, bson.E{Key: tmp, Value: acc})
			distincts = append(distincts, distinctCall{call: call, tmp: tmp})
			continue
		}
		group = append(group, bson.E{Key: call.Name, Value: acc})
	}

	st = st.appendStage(bson.D{{Key: "$group", Value: group}})

	needProject := len(groupCols) > 0 || len(distincts) > 0
	if needProject {
		project := bson.D{{Key: "_id", Value: 0}}
		switch len(groupCols) {
		case 0:
		case 1:
			project = append(project, bson.E{Key: groupCols[0].SQLName, Value: "$_id"})
		default:
			for _, col := range groupCols {
				project = append(project, bson.E{Key: col.SQLName, Value: "$_id." + col.SQLName})
			}
		}
		for _, call := range n.Calls {
			if !call.Distinct {
				project = append(project, bson.E{Key: call.Name, Value: 1})
			}
		}
		for _, d := range distincts {
			project = append(project, bson.E{Key: d.call.Name, Value: reduceDistinct(d.call, d.tmp)})
		}
		st = st.appendStage(bson.D{{Key: "$project", Value: project}})
	}

	out := schema.NewTable(st.table.SQLName, st.table.Collection)
	out.ID = st.table.ID
	out.FieldPath = st.table.FieldPath
	// The unpack projection moved each group key out of _id to a field
	// named after the column, so its Path is now that output name and
	// the column counts as synthesized for every later operator.
	for _, col := range groupCols {
		cp := col.Clone()
		cp.Path = cp.SQLName
		cp.Generated = true
		cp.PrimaryKey = false
		cp.ForeignKeyOrder = 0
		if err := out.Add(cp); err != nil {
			return state{}, translateErrf(ErrCodeUnsupportedExpr, "aggregate: %v", err)
		}
	}
	for _, call := range n.Calls {
		gen := &schema.Column{
			Path:      call.Name,
			SQLName:   call.Name,
			SQLType:   aggregateType(st, call),
			Generated: true,
		}
		if err := out.Add(gen); err != nil {
			return state{}, translateErrf(ErrCodeUnsupportedExpr, "aggregate: %v", err)
		}
	}
	st.table = out
	return st, nil
}

// accumulator renders the group-stage accumulator for one call.
func accumulator(s state, call plan.AggregateCall) (bson.D, error) {
	if call.Kind == plan.AggCount && call.Column == "" {
		if call.Distinct {
			return nil, translateErrf(ErrCodeUnsupportedExpr, "COUNT(DISTINCT *) is not valid")
		}
		// COUNT(*): a literal-1 sum.
		return bson.D{{Key: "$sum", Value: int32(1)}}, nil
	}

	col, err := s.column(call.Column)
	if err != nil {
		return nil, err
	}
	field := "$" + col.Path

	if call.Distinct {
		return bson.D{{Key: "$addToSet", Value: field}}, nil
	}

	switch call.Kind {
	case plan.AggCount:
		// COUNT(x) counts present, non-null values.
		return bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$gt", Value: bson.A{field, nil}}},
			int32(1),
			int32(0),
		}}}}}, nil
	case plan.AggSum:
		return bson.D{{Key: "$sum", Value: field}}, nil
	case plan.AggMin:
		return bson.D{{Key: "$min", Value: field}}, nil
	case plan.AggMax:
		return bson.D{{Key: "$max", Value: field}}, nil
	case plan.AggAvg:
		return bson.D{{Key: "$avg", Value: field}}, nil
	default:
		return nil, translateErrf(ErrCodeUnsupportedExpr, "aggregate %s is not supported", call.Kind)
	}
}

// reduceDistinct turns a collected value set into the final aggregate
// in the follow-up projection.
func reduceDistinct(call plan.AggregateCall, tmp string) bson.D {
	set := "$" + tmp
	switch call.Kind {
	case plan.AggCount:
		return bson.D{{Key: "$size", Value: set}}
	case plan.AggSum:
		return bson.D{{Key: "$sum", Value: set}}
	case plan.AggAvg:
		return bson.D{{Key: "$avg", Value: set}}
	case plan.AggMin:
		return bson.D{{Key: "$min", Value: set}}
	default: // AggMax
		return bson.D{{Key: "$max", Value: set}}
	}
}

// aggregateType gives the relational type of an aggregate output.
func aggregateType(s state, call plan.AggregateCall) doctype.SQLType {
	if call.Kind == plan.AggCount {
		return doctype.SQLBigInt
	}
	if call.Kind == plan.AggAvg {
		return doctype.SQLDouble
	}
	if col, ok := s.table.Column(call.Column); ok {
		return col.SQLType
	}
	return doctype.SQLDouble
}
