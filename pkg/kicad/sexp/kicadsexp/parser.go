package kicadsexp

import (
	"io"

	"gitlab.com/tozd/go/errors"
)

// Parser reads top-level S-expressions one at a time from a lexer. Lists
// are built with an explicit stack, so deeply nested symbol graphics do
// not grow the goroutine stack.
type Parser struct {
	lexer *Lexer
}

// NewParser creates a new parser from an io.Reader
func NewParser(r io.Reader) *Parser {
	return &Parser{lexer: NewLexer(r)}
}

// Next returns the next top-level expression, or io.EOF once the input is
// exhausted.
func (p *Parser) Next() (Sexp, error) {
	type frame struct {
		line     int
		elements []Sexp
	}
	var stack []frame

	for {
		tok, err := p.lexer.NextToken()
		if err != nil {
			return nil, err
		}

		var expr Sexp
		switch tok.Type {
		case TokenEOF:
			if len(stack) == 0 {
				return nil, io.EOF
			}
			return nil, errors.Errorf("line %d: unexpected EOF in list opened on line %d", tok.Line, stack[len(stack)-1].line)

		case TokenLeftParen:
			stack = append(stack, frame{line: tok.Line})
			continue

		case TokenRightParen:
			if len(stack) == 0 {
				return nil, errors.Errorf("line %d: unexpected ')'", tok.Line)
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			expr = NewList(top.elements...)

		case TokenSymbol, TokenString:
			expr = Symbol(tok.Value)

		default:
			return nil, errors.Errorf("line %d: unexpected token type: %v", tok.Line, tok.Type)
		}

		if len(stack) == 0 {
			return expr, nil
		}
		stack[len(stack)-1].elements = append(stack[len(stack)-1].elements, expr)
	}
}

// ParseAll parses all top-level S-expressions from the input
func (p *Parser) ParseAll() ([]Sexp, error) {
	var result []Sexp
	for {
		expr, err := p.Next()
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return nil, err
		}
		result = append(result, expr)
	}
}
