package predicate

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Lexer tokenizes a predicate expression.
type Lexer struct {
	input  string
	pos    int
	start  int
	column int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize returns all tokens from the input.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok := l.NextToken()
		if tok.Type == TokenError {
			return nil, fmt.Errorf("lexer error at column %d: %s", tok.Column, tok.Value)
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}
	return tokens, nil
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Column: l.pos + 1}
	}

	l.start = l.pos
	l.column = l.pos + 1
	ch := l.input[l.pos]

	if ch == '"' || ch == '\'' {
		return l.scanString(ch)
	}

	if isDigit(ch) || (ch == '.' && isDigit(l.peek())) {
		return l.scanNumber()
	}

	if isLetter(ch) || ch == '_' {
		return l.scanIdentifier()
	}

	if l.pos+1 < len(l.input) {
		two := l.input[l.pos : l.pos+2]
		var typ TokenType
		switch two {
		case "==":
			typ = TokenEq
		case "!=":
			typ = TokenNe
		case ">=":
			typ = TokenGte
		case "<=":
			typ = TokenLte
		case "&&":
			typ = TokenAnd
		case "||":
			typ = TokenOr
		}
		if typ != TokenEOF {
			l.pos += 2
			return Token{Type: typ, Value: two, Column: l.column}
		}
	}

	l.pos++
	switch ch {
	case '(':
		return Token{Type: TokenLParen, Value: "(", Column: l.column}
	case ')':
		return Token{Type: TokenRParen, Value: ")", Column: l.column}
	case '[':
		return Token{Type: TokenLBracket, Value: "[", Column: l.column}
	case ']':
		return Token{Type: TokenRBracket, Value: "]", Column: l.column}
	case ',':
		return Token{Type: TokenComma, Value: ",", Column: l.column}
	case '>':
		return Token{Type: TokenGt, Value: ">", Column: l.column}
	case '<':
		return Token{Type: TokenLt, Value: "<", Column: l.column}
	case '!':
		return Token{Type: TokenNot, Value: "!", Column: l.column}
	}

	return Token{
		Type:   TokenError,
		Value:  fmt.Sprintf("unexpected character: %c", ch),
		Column: l.column,
	}
}

func (l *Lexer) peek() byte {
	if l.pos+1 >= len(l.input) {
		return 0
	}
	return l.input[l.pos+1]
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

func (l *Lexer) scanString(quote byte) Token {
	l.pos++ // opening quote
	var sb strings.Builder

	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == quote:
			l.pos++
			return Token{Type: TokenString, Value: sb.String(), Column: l.column, Literal: sb.String()}
		case ch == '\\' && l.pos+1 < len(l.input):
			next := l.input[l.pos+1]
			l.pos += 2
			switch next {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '"', '\'', '\\':
				sb.WriteByte(next)
			default:
				sb.WriteByte('\\')
				sb.WriteByte(next)
			}
		default:
			sb.WriteByte(ch)
			l.pos++
		}
	}

	return Token{Type: TokenError, Value: "unterminated string", Column: l.column}
}

func (l *Lexer) scanNumber() Token {
	hasDecimal := false
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if isDigit(ch) {
			l.pos++
		} else if ch == '.' && !hasDecimal {
			hasDecimal = true
			l.pos++
		} else {
			break
		}
	}

	value := l.input[l.start:l.pos]
	var literal any
	var err error
	if hasDecimal {
		literal, err = strconv.ParseFloat(value, 64)
	} else {
		literal, err = strconv.ParseInt(value, 10, 64)
	}
	if err != nil {
		return Token{Type: TokenError, Value: fmt.Sprintf("invalid number: %s", value), Column: l.column}
	}
	return Token{Type: TokenNumber, Value: value, Column: l.column, Literal: literal}
}

func (l *Lexer) scanIdentifier() Token {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if isLetter(ch) || isDigit(ch) || ch == '_' || ch == '.' {
			l.pos++
		} else {
			break
		}
	}

	value := l.input[l.start:l.pos]
	tok := Token{Type: LookupKeyword(value), Value: value, Column: l.column}
	if tok.Type == TokenBool {
		tok.Literal = value == "true"
	}
	return tok
}

func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
