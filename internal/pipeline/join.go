package pipeline

import (
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"doctable/internal/plan"
	"doctable/internal/schema"
)

// compileJoin compiles both inputs into independent states, then picks
// a strategy: tables of one collection are denormalized in place (the
// branches describe one document forest), tables of different
// collections go through a native lookup stage.
//
// RIGHT and FULL joins are rejected outright.
func compileJoin(n *plan.Join, tables map[string]*schema.Table) (state, error) {
	if n.Type == plan.JoinRight || n.Type == plan.JoinFull {
		return state{}, translateErrf(ErrCodeUnsupportedJoin, "%s JOIN is not supported", n.Type)
	}

	left, err := compile(n.Left, tables)
	if err != nil {
		return state{}, err
	}
	right, err := compile(n.Right, tables)
	if err != nil {
		return state{}, err
	}

	if left.source.Collection == right.source.Collection {
		return joinSameCollection(n, left, right)
	}
	return joinLookup(n, left, right)
}

// joinSameCollection recognizes the parent/virtual-table join produced
// by one document: both branches read the same collection, so the
// right branch's stages are concatenated onto the left's and the rows
// never leave the pipeline.
//
// The only supported condition is an equality conjunction covering the
// complete foreign-key set linking the two tables; this operator does
// not implement general self-joins.
func joinSameCollection(n *plan.Join, left, right state) (state, error) {
	required := sharedKeyNames(left.table, right.table)
	if len(required) == 0 {
		return state{}, translateErrf(ErrCodeUnsupportedJoin,
			"tables %s and %s of collection %s share no key columns",
			left.table.SQLName, right.table.SQLName, left.source.Collection)
	}
	if err := validateKeyEquality(n.Condition, required); err != nil {
		return state{}, err
	}

	st := left
	for _, stage := range right.stages {
		st = st.appendStage(stage)
	}

	// Null-row suppression keyed by join type: INNER drops placeholder
	// rows of both virtual tables, LEFT only the left's.
	leftFiltered := left.nullFiltered
	if !leftFiltered && left.source.Virtual() {
		if match := existenceMatch(left.table); match != nil {
			st = st.appendStage(bson.D{{Key: "$match", Value: match}})
		}
		leftFiltered = true
	}
	if n.Type == plan.JoinInner && !right.nullFiltered && right.source.Virtual() {
		if match := existenceMatch(right.table); match != nil {
			st = st.appendStage(bson.D{{Key: "$match", Value: match}})
		}
	}

	merged, dup, err := mergeColumns(left.table, right.table, required, n.Type)
	if err != nil {
		return state{}, err
	}
	if dup != nil {
		st = st.appendStage(bson.D{{Key: "$addFields", Value: dup}})
	}
	st.table = merged
	// The join decided suppression for both sides; later consumers
	// must not filter the merged shape again.
	st.nullFiltered = true
	return st, nil
}

// sharedKeyNames collects the key columns present in both row shapes:
// the foreign-key set a virtual-table join must close over.
func sharedKeyNames(left, right *schema.Table) map[string]bool {
	shared := make(map[string]bool)
	for _, col := range left.Columns() {
		if !col.PrimaryKey && !col.ForeignKey() {
			continue
		}
		other, ok := right.Column(col.SQLName)
		if !ok {
			continue
		}
		if other.PrimaryKey || other.ForeignKey() {
			shared[col.SQLName] = true
		}
	}
	return shared
}

// validateKeyEquality checks that the condition is exactly an equality
// conjunction over every required key column.
func validateKeyEquality(cond plan.Expr, required map[string]bool) error {
	matched := make(map[string]bool)
	if err := collectKeyEqualities(cond, required, matched); err != nil {
		return err
	}
	for name := range required {
		if !matched[name] {
			return translateErrf(ErrCodeUnsupportedJoin,
				"join condition must cover the complete key set; %q is missing", name)
		}
	}
	return nil
}

func collectKeyEqualities(cond plan.Expr, required, matched map[string]bool) error {
	switch e := cond.(type) {
	case *plan.And:
		for _, sub := range e.Exprs {
			if err := collectKeyEqualities(sub, required, matched); err != nil {
				return err
			}
		}
		return nil
	case *plan.Compare:
		if e.Op != plan.CmpEQ {
			return translateErrf(ErrCodeUnsupportedJoin,
				"only equality joins are supported between tables of one collection")
		}
		l, lok := e.Left.(*plan.ColumnRef)
		r, rok := e.Right.(*plan.ColumnRef)
		if !lok || !rok || l.Name != r.Name || !required[l.Name] {
			return translateErrf(ErrCodeUnsupportedJoin,
				"join condition must equate the shared key columns of both tables")
		}
		matched[l.Name] = true
		return nil
	default:
		return translateErrf(ErrCodeUnsupportedJoin,
			"unsupported join condition %T between tables of one collection", cond)
	}
}

// mergeColumns combines the two row shapes. The right branch's copy of
// a shared key column stays a distinct output column under a
// uniquified name, materialized from the single document field both
// copies read; unrelated collisions just get the uniquified suffix.
//
// The returned document, when non-nil, is an $addFields payload that
// writes those right-side key copies. Under a LEFT join the copy goes
// null when the right branch contributed no row, so the value is
// guarded by the right table's own-field existence test in expression
// form.
func mergeColumns(left, right *schema.Table, shared map[string]bool, joinType plan.JoinType) (*schema.Table, bson.D, error) {
	out := schema.NewTable(left.SQLName, left.Collection)
	out.ID = left.ID
	out.FieldPath = left.FieldPath
	for _, col := range left.Columns() {
		if err := out.Add(col.Clone()); err != nil {
			return nil, nil, translateErrf(ErrCodeUnsupportedJoin, "merge: %v", err)
		}
	}
	var dup bson.D
	for _, col := range right.Columns() {
		cp := col.Clone()
		if shared[cp.SQLName] {
			value := any("$" + cp.Path)
			if joinType == plan.JoinLeft {
				if exists := existenceExpr(right); exists != nil {
					value = bson.D{{Key: "$cond", Value: bson.A{exists, value, nil}}}
				}
			}
			cp.SQLName = uniquifyName(out, cp.SQLName)
			cp.Path = cp.SQLName
			cp.Generated = true
			cp.PrimaryKey = false
			cp.ForeignKeyOrder = 0
			dup = append(dup, bson.E{Key: cp.Path, Value: value})
			if err := out.Add(cp); err != nil {
				return nil, nil, translateErrf(ErrCodeUnsupportedJoin, "merge: %v", err)
			}
			continue
		}
		if existing, ok := out.Column(cp.SQLName); ok {
			if existing.Path == cp.Path && cp.Path != "" {
				continue
			}
			cp.SQLName = uniquifyName(out, cp.SQLName)
		}
		if _, ok := out.ColumnByPath(cp.Path); ok && cp.Path != "" {
			// Two columns reading the same field under different
			// names; keep one mapping per path.
			cp.Path = ""
			cp.Generated = true
		}
		if err := out.Add(cp); err != nil {
			return nil, nil, translateErrf(ErrCodeUnsupportedJoin, "merge: %v", err)
		}
	}
	return out, dup, nil
}

// existenceExpr is existenceMatch rendered as an aggregation
// expression, for contexts where $exists is unavailable. An absent
// field reports $type "missing"; an explicit null stays a present
// field, exactly as $exists sees it.
func existenceExpr(t *schema.Table) bson.D {
	var clauses bson.A
	for _, col := range t.Columns() {
		if col.PrimaryKey || col.ForeignKey() || col.Generated || col.IsArrayIndex {
			continue
		}
		typeOf := bson.D{{Key: "$type", Value: "$" + col.Path}}
		clauses = append(clauses, bson.D{{Key: "$ne", Value: bson.A{typeOf, "missing"}}})
	}
	if clauses == nil {
		return nil
	}
	return bson.D{{Key: "$or", Value: clauses}}
}

func uniquifyName(t *schema.Table, name string) string {
	for i := 1; ; i++ {
		candidate := name + strconv.Itoa(i)
		if _, taken := t.Column(candidate); !taken {
			return candidate
		}
	}
}

// joinLookup compiles a cross-collection join into one lookup stage:
// left-side fields are passed by reference through let bindings, the
// right branch's full stage list becomes the nested pipeline, and a
// final match renders the join predicate in $expr form. An unwind
// flattens the joined array, dropping (INNER) or preserving (LEFT)
// unmatched outer rows.
//
// Only a single equality condition is supported.
func joinLookup(n *plan.Join, left, right state) (state, error) {
	cmp, ok := n.Condition.(*plan.Compare)
	if !ok || cmp.Op != plan.CmpEQ {
		return state{}, translateErrf(ErrCodeUnsupportedJoin,
			"cross-collection joins support a single equality condition only")
	}

	// Placeholder rows must not cross the lookup boundary.
	left = suppressNullRows(left)
	right = suppressNullRows(right)

	leftCol, _, err := splitJoinSides(cmp, left, right)
	if err != nil {
		return state{}, err
	}

	letVar := letVarName(leftCol.SQLName)
	lets := bson.D{{Key: letVar, Value: "$" + leftCol.Path}}

	matchExpr, err := translateLookupExpr(n.Condition, left, right, map[string]string{
		leftCol.SQLName: letVar,
	})
	if err != nil {
		return state{}, err
	}

	nested := make(bson.A, 0, len(right.stages)+1)
	for _, stage := range right.stages {
		nested = append(nested, stage)
	}
	nested = append(nested, bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: matchExpr}}}})

	asField := lookupFieldName(left.table, right.table.SQLName)

	st := left.appendStage(bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: right.source.Collection},
		{Key: "let", Value: lets},
		{Key: "pipeline", Value: nested},
		{Key: "as", Value: asField},
	}}})

	st = st.appendStage(bson.D{{Key: "$unwind", Value: bson.D{
		{Key: "path", Value: "$" + asField},
		{Key: "preserveNullAndEmptyArrays", Value: n.Type == plan.JoinLeft},
	}}})

	// Right-side columns now live under the lookup field.
	merged := schema.NewTable(left.table.SQLName, left.table.Collection)
	merged.ID = left.table.ID
	merged.FieldPath = left.table.FieldPath
	for _, col := range left.table.Columns() {
		if err := merged.Add(col.Clone()); err != nil {
			return state{}, translateErrf(ErrCodeUnsupportedJoin, "merge: %v", err)
		}
	}
	for _, col := range right.table.Columns() {
		cp := col.Clone()
		cp.Path = asField + "." + cp.Path
		if _, taken := merged.Column(cp.SQLName); taken {
			cp.SQLName = uniquifyName(merged, cp.SQLName)
		}
		if err := merged.Add(cp); err != nil {
			return state{}, translateErrf(ErrCodeUnsupportedJoin, "merge: %v", err)
		}
	}
	st.table = merged
	st.nullFiltered = true
	return st, nil
}

// splitJoinSides assigns the comparison operands to the left and right
// branches by looking the referenced columns up in each row shape.
func splitJoinSides(cmp *plan.Compare, left, right state) (*schema.Column, *schema.Column, error) {
	lRef, lok := cmp.Left.(*plan.ColumnRef)
	rRef, rok := cmp.Right.(*plan.ColumnRef)
	if !lok || !rok {
		return nil, nil, translateErrf(ErrCodeUnsupportedJoin,
			"cross-collection join condition must compare two columns")
	}
	if lCol, ok := left.table.Column(lRef.Name); ok {
		if rCol, ok := right.table.Column(rRef.Name); ok {
			return lCol, rCol, nil
		}
	}
	if lCol, ok := left.table.Column(rRef.Name); ok {
		if rCol, ok := right.table.Column(lRef.Name); ok {
			return lCol, rCol, nil
		}
	}
	return nil, nil, translateErrf(ErrCodeUnsupportedJoin,
		"join condition references columns outside both inputs")
}

// translateLookupExpr renders the join predicate for the nested
// pipeline's final match: left columns become let-variable references,
// right columns become field references. The fragment covers
// and/or composition, comparisons, and column/literal leaves;
// anything else is rejected.
func translateLookupExpr(expr plan.Expr, left, right state, letVars map[string]string) (any, error) {
	switch e := expr.(type) {
	case *plan.And:
		return translateLookupList("$and", e.Exprs, left, right, letVars)
	case *plan.Or:
		return translateLookupList("$or", e.Exprs, left, right, letVars)
	case *plan.Compare:
		op, ok := exprOps[e.Op]
		if !ok {
			return nil, translateErrf(ErrCodeUnsupportedJoin, "comparison %s in join condition", e.Op)
		}
		lhs, err := translateLookupLeaf(e.Left, left, right, letVars)
		if err != nil {
			return nil, err
		}
		rhs, err := translateLookupLeaf(e.Right, left, right, letVars)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: op, Value: bson.A{lhs, rhs}}}, nil
	default:
		return nil, translateErrf(ErrCodeUnsupportedJoin,
			"join condition %T has no $expr form", expr)
	}
}

func translateLookupList(op string, exprs []plan.Expr, left, right state, letVars map[string]string) (any, error) {
	clauses := make(bson.A, 0, len(exprs))
	for _, e := range exprs {
		clause, err := translateLookupExpr(e, left, right, letVars)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	return bson.D{{Key: op, Value: clauses}}, nil
}

func translateLookupLeaf(expr plan.Expr, left, right state, letVars map[string]string) (any, error) {
	switch e := expr.(type) {
	case *plan.Literal:
		return literalValue(e), nil
	case *plan.ColumnRef:
		if v, ok := letVars[e.Name]; ok {
			return "$$" + v, nil
		}
		if col, ok := right.table.Column(e.Name); ok {
			return "$" + col.Path, nil
		}
		if col, ok := left.table.Column(e.Name); ok {
			// Left columns outside the let bindings cannot be seen
			// from the nested pipeline.
			return nil, translateErrf(ErrCodeUnsupportedJoin,
				"left column %q is not bound into the lookup", col.SQLName)
		}
		return nil, translateErrf(ErrCodeUnknownColumn, "column %q not in either join input", e.Name)
	default:
		return nil, translateErrf(ErrCodeUnsupportedJoin, "join leaf %T has no $expr form", expr)
	}
}

// letVarName derives a legal lookup variable name from a column name:
// lowercase start, alphanumerics and underscores only.
func letVarName(column string) string {
	var b strings.Builder
	b.WriteString("l_")
	for _, r := range strings.ToLower(column) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// lookupFieldName picks the field the joined documents land under,
// avoiding the left row shape's existing paths.
func lookupFieldName(left *schema.Table, rightName string) string {
	name := rightName
	for i := 1; ; i++ {
		conflict := false
		for _, col := range left.Columns() {
			if col.Path == name || strings.HasPrefix(col.Path, name+".") {
				conflict = true
				break
			}
		}
		if !conflict {
			return name
		}
		name = rightName + strconv.Itoa(i)
	}
}
