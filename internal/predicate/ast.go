package predicate

// Expression is the interface for all expression nodes.
type Expression interface {
	expr()
}

// BinaryExpr represents a logical connective or a comparison.
type BinaryExpr struct {
	Left     Expression
	Operator string
	Right    Expression
	Column   int
}

// UnaryExpr represents a negation.
type UnaryExpr struct {
	Operator string
	Operand  Expression
	Column   int
}

// IdentifierExpr references a binding, e.g. resourceLabels or params.arch.
type IdentifierExpr struct {
	Name   string
	Column int
}

// LiteralExpr represents a string, number or boolean literal.
type LiteralExpr struct {
	Value  any
	Column int
}

// CallExpr represents a built-in operator with function semantics
// (contains, matches).
type CallExpr struct {
	Function string
	Args     []Expression
	Column   int
}

// ListExpr represents a list literal.
type ListExpr struct {
	Elements []Expression
	Column   int
}

func (*BinaryExpr) expr()     {}
func (*UnaryExpr) expr()      {}
func (*IdentifierExpr) expr() {}
func (*LiteralExpr) expr()    {}
func (*CallExpr) expr()       {}
func (*ListExpr) expr()       {}
