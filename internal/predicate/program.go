package predicate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Evaluation errors.
var (
	// ErrSyntax indicates the source could not be tokenized or parsed.
	ErrSyntax = errors.New("predicate syntax error")

	// ErrUnknownIdentifier indicates a reference to a binding that does not exist.
	ErrUnknownIdentifier = errors.New("unknown identifier")

	// ErrType indicates an operand of the wrong type.
	ErrType = errors.New("type mismatch")
)

// Program is a compiled predicate. It is immutable and safe for concurrent use.
type Program struct {
	source   string
	root     Expression
	patterns map[*CallExpr]*regexp.Regexp
}

// Compile parses source into a Program. Regular expressions given as
// literals are compiled up front.
func Compile(source string) (*Program, error) {
	tokens, err := NewLexer(source).Tokenize()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	root, err := NewParser(tokens).Parse()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	p := &Program{source: source, root: root, patterns: make(map[*CallExpr]*regexp.Regexp)}
	if err := p.precompile(root); err != nil {
		return nil, err
	}
	return p, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(source string) *Program {
	p, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Program) precompile(e Expression) error {
	switch n := e.(type) {
	case *BinaryExpr:
		if err := p.precompile(n.Left); err != nil {
			return err
		}
		return p.precompile(n.Right)
	case *UnaryExpr:
		return p.precompile(n.Operand)
	case *CallExpr:
		for _, arg := range n.Args {
			if err := p.precompile(arg); err != nil {
				return err
			}
		}
		if n.Function != "matches" {
			return nil
		}
		lit, ok := n.Args[1].(*LiteralExpr)
		if !ok {
			return nil
		}
		pattern, ok := lit.Value.(string)
		if !ok {
			return fmt.Errorf("%w: pattern at column %d must be a string", ErrSyntax, n.Column)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: invalid regex pattern at column %d: %v", ErrSyntax, n.Column, err)
		}
		p.patterns[n] = re
	}
	return nil
}

// Source returns the text the program was compiled from.
func (p *Program) Source() string {
	return p.source
}

// Evaluate runs the program and returns its raw result, which need not be
// a boolean.
func (p *Program) Evaluate(ctx context.Context, bindings map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.eval(p.root, bindings)
}

// Eval runs the program and requires a boolean result.
func (p *Program) Eval(bindings map[string]any) (bool, error) {
	v, err := p.eval(p.root, bindings)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: result %v (%T) is not a boolean", ErrType, v, v)
	}
	return b, nil
}

func (p *Program) eval(e Expression, bindings map[string]any) (any, error) {
	switch n := e.(type) {
	case *LiteralExpr:
		return n.Value, nil

	case *IdentifierExpr:
		v, ok := lookup(bindings, n.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownIdentifier, n.Name)
		}
		return v, nil

	case *ListExpr:
		out := make([]any, 0, len(n.Elements))
		for _, elem := range n.Elements {
			v, err := p.eval(elem, bindings)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case *UnaryExpr:
		b, err := p.evalBool(n.Operand, bindings)
		if err != nil {
			return nil, err
		}
		return !b, nil

	case *BinaryExpr:
		return p.evalBinary(n, bindings)

	case *CallExpr:
		return p.evalCall(n, bindings)
	}
	return nil, fmt.Errorf("%w: unsupported expression %T", ErrSyntax, e)
}

func (p *Program) evalBool(e Expression, bindings map[string]any) (bool, error) {
	v, err := p.eval(e, bindings)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %v (%T) is not a boolean", ErrType, v, v)
	}
	return b, nil
}

func (p *Program) evalBinary(n *BinaryExpr, bindings map[string]any) (any, error) {
	switch n.Operator {
	case "and":
		left, err := p.evalBool(n.Left, bindings)
		if err != nil || !left {
			return false, err
		}
		return p.evalBool(n.Right, bindings)
	case "or":
		left, err := p.evalBool(n.Left, bindings)
		if err != nil || left {
			return left, err
		}
		return p.evalBool(n.Right, bindings)
	}

	left, err := p.eval(n.Left, bindings)
	if err != nil {
		return nil, err
	}
	right, err := p.eval(n.Right, bindings)
	if err != nil {
		return nil, err
	}

	switch n.Operator {
	case "eq":
		return valuesEqual(left, right), nil
	case "ne":
		return !valuesEqual(left, right), nil
	case "gt":
		return compareNumeric(left, right, func(a, b float64) bool { return a > b })
	case "lt":
		return compareNumeric(left, right, func(a, b float64) bool { return a < b })
	case "gte":
		return compareNumeric(left, right, func(a, b float64) bool { return a >= b })
	case "lte":
		return compareNumeric(left, right, func(a, b float64) bool { return a <= b })
	case "in":
		return valueIn(left, right)
	}
	return nil, fmt.Errorf("%w: unsupported operator %s", ErrSyntax, n.Operator)
}

func (p *Program) evalCall(n *CallExpr, bindings map[string]any) (any, error) {
	left, err := p.eval(n.Args[0], bindings)
	if err != nil {
		return nil, err
	}
	right, err := p.eval(n.Args[1], bindings)
	if err != nil {
		return nil, err
	}

	switch n.Function {
	case "contains":
		return valueContains(left, right)
	case "matches":
		str, ok := left.(string)
		if !ok {
			return nil, fmt.Errorf("%w: matches needs a string, got %T", ErrType, left)
		}
		re := p.patterns[n]
		if re == nil {
			pattern, ok := right.(string)
			if !ok {
				return nil, fmt.Errorf("%w: pattern must be a string", ErrType)
			}
			if re, err = regexp.Compile(pattern); err != nil {
				return nil, fmt.Errorf("%w: invalid regex pattern: %v", ErrType, err)
			}
		}
		return re.MatchString(str), nil
	}
	return nil, fmt.Errorf("%w: unsupported function %s", ErrSyntax, n.Function)
}
