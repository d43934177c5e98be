package predicate

import (
	"fmt"
	"strings"
)

// Parser parses predicate tokens into an expression tree.
type Parser struct {
	tokens  []Token
	pos     int
	current Token
}

// NewParser creates a new parser for the given tokens.
func NewParser(tokens []Token) *Parser {
	p := &Parser{tokens: tokens}
	if len(tokens) > 0 {
		p.current = tokens[0]
	}
	return p
}

// Parse parses a complete expression. Trailing tokens are an error.
func (p *Parser) Parse() (Expression, error) {
	if p.current.Type == TokenEOF {
		return nil, p.error("empty expression")
	}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenEOF {
		return nil, p.error("unexpected %s after expression", p.current.Type)
	}
	return expr, nil
}

func (p *Parser) parseExpression() (Expression, error) {
	return p.parseOrExpr()
}

func (p *Parser) parseOrExpr() (Expression, error) {
	left, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}

	for p.current.Type == TokenOr {
		col := p.current.Column
		p.advance()

		right, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Operator: "or", Right: right, Column: col}
	}

	return left, nil
}

func (p *Parser) parseAndExpr() (Expression, error) {
	left, err := p.parseNotExpr()
	if err != nil {
		return nil, err
	}

	for p.current.Type == TokenAnd {
		col := p.current.Column
		p.advance()

		right, err := p.parseNotExpr()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Operator: "and", Right: right, Column: col}
	}

	return left, nil
}

func (p *Parser) parseNotExpr() (Expression, error) {
	if p.current.Type == TokenNot {
		col := p.current.Column
		p.advance()

		operand, err := p.parseNotExpr()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Operator: "not", Operand: operand, Column: col}, nil
	}

	return p.parseComparisonExpr()
}

func (p *Parser) parseComparisonExpr() (Expression, error) {
	left, err := p.parsePrimaryExpr()
	if err != nil {
		return nil, err
	}

	switch p.current.Type {
	case TokenEq, TokenNe, TokenGt, TokenLt, TokenGte, TokenLte:
		op := p.current.Value
		col := p.current.Column
		p.advance()

		right, err := p.parsePrimaryExpr()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Left: left, Operator: normalizeOperator(op), Right: right, Column: col}, nil

	case TokenIn:
		col := p.current.Column
		p.advance()

		var right Expression
		if p.current.Type == TokenLParen {
			right, err = p.parseList(TokenLParen, TokenRParen)
		} else {
			right, err = p.parsePrimaryExpr()
		}
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Left: left, Operator: "in", Right: right, Column: col}, nil

	case TokenContains, TokenMatches:
		fn := p.current.Value
		col := p.current.Column
		p.advance()

		right, err := p.parsePrimaryExpr()
		if err != nil {
			return nil, err
		}
		return &CallExpr{Function: fn, Args: []Expression{left, right}, Column: col}, nil
	}

	return left, nil
}

func (p *Parser) parsePrimaryExpr() (Expression, error) {
	switch p.current.Type {
	case TokenLParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return expr, nil

	case TokenLBracket:
		return p.parseList(TokenLBracket, TokenRBracket)

	case TokenIdent:
		ident := &IdentifierExpr{Name: p.current.Value, Column: p.current.Column}
		p.advance()
		return ident, nil

	case TokenString, TokenNumber, TokenBool:
		lit := &LiteralExpr{Value: p.current.Literal, Column: p.current.Column}
		p.advance()
		return lit, nil

	default:
		return nil, p.error("unexpected token in expression: %s", p.current.Type)
	}
}

func (p *Parser) parseList(open, closing TokenType) (Expression, error) {
	list := &ListExpr{Column: p.current.Column}
	if err := p.expect(open); err != nil {
		return nil, err
	}

	for p.current.Type != closing && p.current.Type != TokenEOF {
		elem, err := p.parsePrimaryExpr()
		if err != nil {
			return nil, err
		}
		list.Elements = append(list.Elements, elem)

		if p.current.Type != TokenComma {
			break
		}
		p.advance()
	}

	if err := p.expect(closing); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *Parser) advance() {
	p.pos++
	if p.pos < len(p.tokens) {
		p.current = p.tokens[p.pos]
	} else {
		p.current = Token{Type: TokenEOF}
	}
}

func (p *Parser) expect(t TokenType) error {
	if p.current.Type != t {
		return p.error("expected %s, got %s", t, p.current.Type)
	}
	p.advance()
	return nil
}

func (p *Parser) error(format string, args ...any) error {
	return fmt.Errorf("parse error at column %d: %s", p.current.Column, fmt.Sprintf(format, args...))
}

func normalizeOperator(op string) string {
	switch strings.ToLower(op) {
	case "==":
		return "eq"
	case "!=":
		return "ne"
	case ">":
		return "gt"
	case "<":
		return "lt"
	case ">=":
		return "gte"
	case "<=":
		return "lte"
	default:
		return op
	}
}
