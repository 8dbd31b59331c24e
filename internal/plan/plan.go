// Package plan defines the relational operator tree the pipeline
// compiler consumes. An upstream SQL planner produces these nodes; the
// compiler only walks them.
//
// Node and Expr are sealed interfaces: the marker-method pattern keeps
// the variant sets closed so the compiler's type switches stay
// exhaustive.
package plan

// Node is one relational operator. Scan sits at the leaves; every
// other node holds its input(s).
//
// Node types: Scan, Project, Filter, Sort, Aggregate, Join.
type Node interface {
	planNode() // marker method, seals the interface to this package
}

// Scan reads one table of the generated schema: either a collection's
// base table or a virtual table derived from it.
type Scan struct {
	// Table is the SQL name of the scanned table.
	Table string
}

// Project computes the output row from its input: plain column
// references (possibly renamed) and computed expressions.
type Project struct {
	Input Node
	Exprs []ProjectExpr
}

// ProjectExpr is one output of a projection. Name is the output
// column; Expr is a ColumnRef for a reference/rename, anything else
// for a computed column.
type ProjectExpr struct {
	Name string
	Expr Expr
}

// Filter keeps the input rows satisfying the predicate.
type Filter struct {
	Input     Node
	Predicate Expr
}

// SortKey is one collation key. Descending flips the direction;
// explicit NULLS FIRST/LAST is not supported by the target pipeline
// and is rejected at compile time.
type SortKey struct {
	Column     string
	Descending bool
	NullsFirst *bool // nil = no explicit placement requested
}

// Sort orders the input, optionally skipping Offset rows and keeping
// at most Fetch rows. Zero or negative values mean no offset/fetch.
type Sort struct {
	Input  Node
	Keys   []SortKey
	Offset int64
	Fetch  int64
}

// Aggregate groups the input by the named columns and evaluates the
// aggregate calls per group. An empty GroupBy aggregates the whole
// input into one row.
type Aggregate struct {
	Input   Node
	GroupBy []string
	Calls   []AggregateCall
}

// AggregateCall is one aggregate output column.
type AggregateCall struct {
	Name     string
	Kind     AggKind
	Column   string // empty for COUNT(*)
	Distinct bool
}

// AggKind enumerates the supported aggregate functions.
type AggKind int

const (
	AggCount AggKind = iota
	AggSum
	AggMin
	AggMax
	AggAvg
)

func (k AggKind) String() string {
	switch k {
	case AggCount:
		return "COUNT"
	case AggSum:
		return "SUM"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	case AggAvg:
		return "AVG"
	default:
		return "UNKNOWN"
	}
}

// JoinType enumerates SQL join kinds. Right and Full appear in plans
// but are always rejected by the compiler.
type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinFull
)

func (t JoinType) String() string {
	switch t {
	case JoinInner:
		return "INNER"
	case JoinLeft:
		return "LEFT"
	case JoinRight:
		return "RIGHT"
	case JoinFull:
		return "FULL"
	default:
		return "UNKNOWN"
	}
}

// Join combines two inputs on a condition. The compiler distinguishes
// joins among tables of one collection (denormalization of a document
// forest) from cross-collection joins (a native lookup stage).
type Join struct {
	Left      Node
	Right     Node
	Type      JoinType
	Condition Expr
}

func (*Scan) planNode()      {}
func (*Project) planNode()   {}
func (*Filter) planNode()    {}
func (*Sort) planNode()      {}
func (*Aggregate) planNode() {}
func (*Join) planNode()      {}
