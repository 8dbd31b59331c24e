package pipeline

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"doctable/internal/doctype"
	"doctable/internal/plan"
)

// matchOps maps comparison operators to match-language operators.
var matchOps = map[plan.CompareOp]string{
	plan.CmpEQ: "$eq",
	plan.CmpNE: "$ne",
	plan.CmpLT: "$lt",
	plan.CmpLE: "$lte",
	plan.CmpGT: "$gt",
	plan.CmpGE: "$gte",
}

// negatedOps inverts a comparison, used to push NOT down to the leaves
// since the match language has no general negation.
var negatedOps = map[plan.CompareOp]plan.CompareOp{
	plan.CmpEQ: plan.CmpNE,
	plan.CmpNE: plan.CmpEQ,
	plan.CmpLT: plan.CmpGE,
	plan.CmpLE: plan.CmpGT,
	plan.CmpGT: plan.CmpLE,
	plan.CmpGE: plan.CmpLT,
}

// translateMatch renders a predicate tree in the match language:
// conjunctions, disjunctions and column-versus-literal comparisons.
// Anything else is outside the fragment and raises a translation
// error.
func translateMatch(s state, expr plan.Expr, negate bool) (bson.D, error) {
	switch e := expr.(type) {
	case *plan.And:
		op := "$and"
		if negate {
			op = "$or"
		}
		return translateMatchList(s, op, e.Exprs, negate)
	case *plan.Or:
		op := "$or"
		if negate {
			op = "$and"
		}
		return translateMatchList(s, op, e.Exprs, negate)
	case *plan.Not:
		return translateMatch(s, e.Expr, !negate)
	case *plan.Compare:
		return translateMatchCompare(s, e, negate)
	default:
		return nil, translateErrf(ErrCodeUnsupportedExpr, "predicate %T has no match-language form", expr)
	}
}

func translateMatchList(s state, op string, exprs []plan.Expr, negate bool) (bson.D, error) {
	clauses := make(bson.A, 0, len(exprs))
	for _, e := range exprs {
		clause, err := translateMatch(s, e, negate)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	return bson.D{{Key: op, Value: clauses}}, nil
}

// translateMatchCompare renders one comparison. The match language
// compares fields against literals only; a comparison of two columns
// needs $expr, which only the lookup sub-translator emits.
func translateMatchCompare(s state, cmp *plan.Compare, negate bool) (bson.D, error) {
	ref, lit, flipped, err := splitComparison(cmp)
	if err != nil {
		return nil, err
	}
	op := cmp.Op
	if flipped {
		op = flipOp(op)
	}
	if negate {
		op = negatedOps[op]
	}

	col, err := s.column(ref.Name)
	if err != nil {
		return nil, err
	}

	// An identifier column compared with a string literal matches both
	// the raw string and its decoded object-identifier form: stored
	// identifiers and opaque strings are indistinguishable at the type
	// level.
	if col.SourceType == doctype.BsonObjectID {
		if str, ok := lit.Value.(string); ok && (op == plan.CmpEQ || op == plan.CmpNE) {
			values := bson.A{str}
			if oid, err := primitive.ObjectIDFromHex(str); err == nil {
				values = append(values, oid)
			}
			setOp := "$in"
			if op == plan.CmpNE {
				setOp = "$nin"
			}
			return bson.D{{Key: col.Path, Value: bson.D{{Key: setOp, Value: values}}}}, nil
		}
	}

	return bson.D{{Key: col.Path, Value: bson.D{{Key: matchOps[op], Value: lit.Value}}}}, nil
}

// splitComparison pulls the column reference and the literal out of a
// comparison, reporting whether the operands were flipped.
func splitComparison(cmp *plan.Compare) (*plan.ColumnRef, *plan.Literal, bool, error) {
	if ref, ok := cmp.Left.(*plan.ColumnRef); ok {
		if lit, ok := cmp.Right.(*plan.Literal); ok {
			return ref, lit, false, nil
		}
	}
	if ref, ok := cmp.Right.(*plan.ColumnRef); ok {
		if lit, ok := cmp.Left.(*plan.Literal); ok {
			return ref, lit, true, nil
		}
	}
	return nil, nil, false, translateErrf(ErrCodeUnsupportedExpr,
		"comparison must pair a column with a literal")
}

func flipOp(op plan.CompareOp) plan.CompareOp {
	switch op {
	case plan.CmpLT:
		return plan.CmpGT
	case plan.CmpLE:
		return plan.CmpGE
	case plan.CmpGT:
		return plan.CmpLT
	case plan.CmpGE:
		return plan.CmpLE
	default:
		return op
	}
}

// callOps maps computed-expression operators to their aggregation
// operators.
var callOps = map[plan.CallOp]string{
	plan.OpAdd:    "$add",
	plan.OpSub:    "$subtract",
	plan.OpMul:    "$multiply",
	plan.OpDiv:    "$divide",
	plan.OpMod:    "$mod",
	plan.OpConcat: "$concat",
}

// translateValue renders an expression in the aggregation expression
// language, with column references resolved to field paths of the
// current row shape.
func translateValue(s state, expr plan.Expr) (any, error) {
	switch e := expr.(type) {
	case *plan.ColumnRef:
		col, err := s.column(e.Name)
		if err != nil {
			return nil, err
		}
		return "$" + col.Path, nil
	case *plan.Literal:
		return literalValue(e), nil
	case *plan.Call:
		op, ok := callOps[e.Op]
		if !ok {
			return nil, translateErrf(ErrCodeUnsupportedExpr, "operator %s has no pipeline form", e.Op)
		}
		args := make(bson.A, 0, len(e.Args))
		for _, arg := range e.Args {
			v, err := translateValue(s, arg)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		return bson.D{{Key: op, Value: args}}, nil
	case *plan.Compare:
		op, ok := exprOps[e.Op]
		if !ok {
			return nil, translateErrf(ErrCodeUnsupportedExpr, "comparison %s has no pipeline form", e.Op)
		}
		left, err := translateValue(s, e.Left)
		if err != nil {
			return nil, err
		}
		right, err := translateValue(s, e.Right)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: op, Value: bson.A{left, right}}}, nil
	default:
		return nil, translateErrf(ErrCodeUnsupportedExpr, "expression %T has no pipeline form", expr)
	}
}

// literalValue encodes a literal respecting its relational type. A
// string literal wraps to $literal so values starting with '$' are
// never read as field references.
func literalValue(lit *plan.Literal) any {
	if str, ok := lit.Value.(string); ok && strings.HasPrefix(str, "$") {
		return bson.D{{Key: "$literal", Value: str}}
	}
	return lit.Value
}

// exprOps maps comparison operators to $expr-compatible operators.
var exprOps = map[plan.CompareOp]string{
	plan.CmpEQ: "$eq",
	plan.CmpNE: "$ne",
	plan.CmpLT: "$lt",
	plan.CmpLE: "$lte",
	plan.CmpGT: "$gt",
	plan.CmpGE: "$gte",
}
