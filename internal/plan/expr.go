package plan

import "doctable/internal/doctype"

// Expr is a scalar expression over the current row shape.
//
// Expr types: ColumnRef, Literal, Compare, And, Or, Not, Call.
type Expr interface {
	exprNode() // marker method, seals the interface to this package
}

// ColumnRef references a column of the operator's input by SQL name.
type ColumnRef struct {
	Name string
}

// Literal is a constant carrying its relational type, so the compiler
// can encode it faithfully (identifier-typed strings, timestamps).
type Literal struct {
	Value any
	Type  doctype.SQLType
}

// CompareOp enumerates comparison operators.
type CompareOp int

const (
	CmpEQ CompareOp = iota
	CmpNE
	CmpLT
	CmpLE
	CmpGT
	CmpGE
)

func (op CompareOp) String() string {
	switch op {
	case CmpEQ:
		return "="
	case CmpNE:
		return "<>"
	case CmpLT:
		return "<"
	case CmpLE:
		return "<="
	case CmpGT:
		return ">"
	case CmpGE:
		return ">="
	default:
		return "?"
	}
}

// Compare is a binary comparison.
type Compare struct {
	Op    CompareOp
	Left  Expr
	Right Expr
}

// And is a conjunction of two or more predicates.
type And struct {
	Exprs []Expr
}

// Or is a disjunction of two or more predicates.
type Or struct {
	Exprs []Expr
}

// Not negates a predicate.
type Not struct {
	Expr Expr
}

// CallOp enumerates the computed-expression operators Project
// supports.
type CallOp int

const (
	OpAdd CallOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpConcat
)

func (op CallOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpConcat:
		return "||"
	default:
		return "?"
	}
}

// Call applies an operator to its arguments.
type Call struct {
	Op   CallOp
	Args []Expr
}

func (*ColumnRef) exprNode() {}
func (*Literal) exprNode()   {}
func (*Compare) exprNode()   {}
func (*And) exprNode()       {}
func (*Or) exprNode()        {}
func (*Not) exprNode()       {}
func (*Call) exprNode()      {}
