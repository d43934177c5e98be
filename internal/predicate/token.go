// Package predicate implements the small expression language used to match
// lockable resources:
//
//	"linux" in resourceLabels AND resourceName matches "^rig-[0-9]+$"
//	resourceLabels contains "gpu" || NOT (resourceNote == "broken")
//	arch in ["arm64", "amd64"]
//
// Identifiers resolve against the bindings supplied at evaluation time.
// Dotted identifiers walk nested maps.
package predicate

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenIdent  // resourceName, build.params.arch
	TokenString // "quoted" or 'quoted'
	TokenNumber // 123, 0.5
	TokenBool   // true, false

	// Operators
	TokenAnd      // AND, &&
	TokenOr       // OR, ||
	TokenNot      // NOT, !
	TokenEq       // ==
	TokenNe       // !=
	TokenGt       // >
	TokenLt       // <
	TokenGte      // >=
	TokenLte      // <=
	TokenIn       // in
	TokenContains // contains
	TokenMatches  // matches

	// Delimiters
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenComma    // ,
)

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Value   string
	Column  int
	Literal any // parsed literal value for numbers and bools
}

var tokenNames = map[TokenType]string{
	TokenEOF:      "EOF",
	TokenError:    "ERROR",
	TokenIdent:    "IDENT",
	TokenString:   "STRING",
	TokenNumber:   "NUMBER",
	TokenBool:     "BOOL",
	TokenAnd:      "AND",
	TokenOr:       "OR",
	TokenNot:      "NOT",
	TokenEq:       "==",
	TokenNe:       "!=",
	TokenGt:       ">",
	TokenLt:       "<",
	TokenGte:      ">=",
	TokenLte:      "<=",
	TokenIn:       "in",
	TokenContains: "contains",
	TokenMatches:  "matches",
	TokenLParen:   "(",
	TokenRParen:   ")",
	TokenLBracket: "[",
	TokenRBracket: "]",
	TokenComma:    ",",
}

// String returns the token type name.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

var keywords = map[string]TokenType{
	"AND":      TokenAnd,
	"and":      TokenAnd,
	"OR":       TokenOr,
	"or":       TokenOr,
	"NOT":      TokenNot,
	"not":      TokenNot,
	"in":       TokenIn,
	"contains": TokenContains,
	"matches":  TokenMatches,
	"true":     TokenBool,
	"false":    TokenBool,
}

// LookupKeyword returns the token type for an identifier.
func LookupKeyword(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TokenIdent
}
