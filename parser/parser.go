// Package parser builds the cons-cell AST (ast.Node) from a token
// stream.
//
// Grounded on the teacher's parser/parser.go (recursive descent,
// current/previous token bookkeeping, a synchronize-on-error recovery
// loop) and on original_source/include/parser/parser.h (the
// parser{current, next, panic_mode} shape this package's two-token
// lookahead directly mirrors).
package parser

import (
	"fmt"

	"scheme-go/ast"
	"scheme-go/token"
)

// ParseError is a single diagnostic produced while parsing, carrying the
// source position of the offending token.
type ParseError struct {
	Line, Column int
	Message      string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%d:%d: error: %s", e.Line, e.Column, e.Message)
}

// Parser is an LL(1) recursive-descent parser with two-token lookahead
// (current, next) over a pre-scanned token stream.
type Parser struct {
	tokens   []token.Token
	position int // index of the token after `next`; next = tokens[position-1], current = tokens[position-2]

	current token.Token
	next    token.Token

	// panicMode silences further diagnostics until synchronize() finds a
	// plausible restart point, so one malformed form doesn't cascade
	// into a wall of spurious errors.
	panicMode bool
	errors    []error
}

// New creates a Parser over a complete token stream (as produced by
// lexer.Scan, including the trailing EOF token).
func New(tokens []token.Token) *Parser {
	p := &Parser{tokens: tokens}
	p.advance()
	p.advance()
	return p
}

// Make is an alias for New, matching the teacher's constructor name.
func Make(tokens []token.Token) *Parser { return New(tokens) }

func (p *Parser) advance() token.Token {
	prev := p.current
	p.current = p.next
	if p.position < len(p.tokens) {
		p.next = p.tokens[p.position]
		p.position++
	} else {
		p.next = token.CreateToken(token.EOF, "", p.current.Line, p.current.Column)
	}
	return prev
}

func (p *Parser) isAtEnd() bool {
	return p.current.TokenType == token.EOF
}

func (p *Parser) check(typ token.TokenType) bool {
	return p.current.TokenType == typ
}

func (p *Parser) match(typ token.TokenType) bool {
	if !p.check(typ) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(typ token.TokenType, message string) (token.Token, bool) {
	if p.check(typ) {
		return p.advance(), true
	}
	p.errorAt(p.current, message)
	return token.Token{}, false
}

func (p *Parser) errorAt(tok token.Token, message string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.errors = append(p.errors, ParseError{Line: tok.Line, Column: tok.Column, Message: message})
}

// synchronize advances past tokens until it reaches a position where a
// new top-level form plausibly begins: either just past a RPA that
// closes back to depth zero, or at an LPA.
func (p *Parser) synchronize() {
	p.panicMode = false
	depth := 0
	for !p.isAtEnd() {
		switch p.current.TokenType {
		case token.LPA:
			if depth == 0 {
				return
			}
			depth++
		case token.RPA:
			if depth == 0 {
				p.advance()
				return
			}
			depth--
		}
		p.advance()
	}
}

// Parse repeatedly parses top-level expressions until the token stream
// is exhausted, synchronizing after each error so later forms can still
// be reported on. It returns every successfully parsed form and every
// diagnostic recorded along the way.
func (p *Parser) Parse() ([]*ast.Node, []error) {
	var forms []*ast.Node
	for !p.isAtEnd() {
		node := p.expression()
		if p.panicMode {
			p.synchronize()
			continue
		}
		if node != nil {
			forms = append(forms, node)
		}
	}
	return forms, p.errors
}

// expression := atom | list | quoted
func (p *Parser) expression() *ast.Node {
	switch p.current.TokenType {
	case token.LPA:
		return p.list()
	case token.QUOTEMARK:
		return p.quoted()
	case token.RPA:
		p.errorAt(p.current, "unexpected ')'")
		return nil
	case token.DOT:
		p.errorAt(p.current, "unexpected '.'")
		return nil
	case token.EOF:
		p.errorAt(p.current, "unexpected end of file")
		return nil
	default:
		return p.atom()
	}
}

// quoted := "'" expression, desugared to (quote expression).
func (p *Parser) quoted() *ast.Node {
	mark := p.advance() // consume "'"
	inner := p.expression()
	if p.panicMode {
		return nil
	}
	head := ast.NewAtom(token.CreateToken(token.QUOTE, "quote", mark.Line, mark.Column))
	tail := ast.NewList(inner, ast.Nil, mark.Line, mark.Column)
	return ast.NewList(head, tail, mark.Line, mark.Column)
}

// list := "(" expression* ("." expression)? ")"
func (p *Parser) list() *ast.Node {
	open := p.advance() // consume "("
	if p.match(token.RPA) {
		return ast.Nil
	}

	var elems []*ast.Node
	var dotTail *ast.Node = ast.Nil

	for !p.check(token.RPA) && !p.isAtEnd() {
		if p.check(token.DOT) {
			if len(elems) == 0 {
				p.errorAt(p.current, "'.' must follow at least one list element")
				return nil
			}
			p.advance() // consume "."
			dotTail = p.expression()
			if p.panicMode {
				return nil
			}
			break
		}
		elem := p.expression()
		if p.panicMode {
			return nil
		}
		elems = append(elems, elem)
	}

	if _, ok := p.expect(token.RPA, "expected ')'"); !ok {
		return nil
	}

	result := dotTail
	for i := len(elems) - 1; i >= 0; i-- {
		result = ast.NewList(elems[i], result, open.Line, open.Column)
	}
	return result
}

// atom := identifier | number | string | keyword | #t | #f | symbol
func (p *Parser) atom() *ast.Node {
	switch p.current.TokenType {
	case token.IDENTIFIER, token.DECIMAL, token.REAL, token.STRING,
		token.TRUE, token.FALSE, token.SYMBOL,
		token.IF, token.DEFINE, token.LAMBDA, token.LET, token.LET_STAR,
		token.LETREC, token.LETREC_STAR, token.COND, token.CASE,
		token.AND, token.OR, token.BEGIN, token.WHEN, token.UNLESS,
		token.DO, token.DELAY, token.SET, token.QUOTE, token.QUASIQUOTE,
		token.UNQUOTE, token.ELSE:
		tok := p.advance()
		return ast.NewAtom(tok)
	default:
		p.errorAt(p.current, fmt.Sprintf("unexpected token %q", p.current.Lexeme))
		return nil
	}
}
