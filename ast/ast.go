// Package ast defines the S-expression abstract syntax tree produced by
// the parser: every node is an Atom, a List (cons cell), or Nil.
//
// Grounded on original_source/include/parser/parser.h's ast_node, which
// uses the identical three-way tag (NODE_ATOM, NODE_LIST, NODE_NIL) with
// car/cdr pointers; adapted into a single Go struct rather than the
// teacher's heterogeneous Expression/Stmt visitor hierarchy (ast/
// expressions.go, ast/statements.go in the teacher), since a homogeneous
// cons-cell tree has no family of node *kinds* for a visitor to dispatch
// on — only one recursive shape.
package ast

import (
	"fmt"
	"strings"

	"scheme-go/token"
)

// Kind tags which of the three node shapes a Node is.
type Kind int

const (
	KindAtom Kind = iota
	KindList
	KindNil
)

// Node is an S-expression: an Atom wrapping a token, a List cons cell
// (Car . Cdr), or Nil (the empty list). Every node carries the source
// position of its first constituent token.
type Node struct {
	Kind Kind
	Tok  token.Token // valid when Kind == KindAtom
	Car  *Node       // valid when Kind == KindList
	Cdr  *Node       // valid when Kind == KindList
	Line int
	Col  int
}

// Nil is the shared representation of the empty list. It is safe to
// compare Nodes against Nil by pointer since the parser always returns
// this exact value for "()".
var Nil = &Node{Kind: KindNil}

// NewAtom wraps a single token as a leaf node.
func NewAtom(tok token.Token) *Node {
	return &Node{Kind: KindAtom, Tok: tok, Line: tok.Line, Col: tok.Column}
}

// NewList builds a single cons cell. If car is nil, its position is
// inherited from the resulting list's own position arguments.
func NewList(car, cdr *Node, line, col int) *Node {
	return &Node{Kind: KindList, Car: car, Cdr: cdr, Line: line, Col: col}
}

func (n *Node) IsNil() bool  { return n == nil || n.Kind == KindNil }
func (n *Node) IsAtom() bool { return n != nil && n.Kind == KindAtom }
func (n *Node) IsList() bool { return n != nil && n.Kind == KindList }

// FromSlice builds a proper cons chain "(e1 e2 ... en)" terminated by Nil,
// the inverse of ToSlice. Used by the compiler's desugaring helpers to
// construct lists from already-realized elements.
func FromSlice(elems []*Node, line, col int) *Node {
	result := Nil
	for i := len(elems) - 1; i >= 0; i-- {
		result = NewList(elems[i], result, line, col)
	}
	return result
}

// ToSlice walks the Car/Cdr chain of a proper list and returns its
// elements. It stops (without error) at the first non-list Cdr, so
// callers that need to detect an improper (dotted) list should inspect
// the returned tail via Tail instead.
func (n *Node) ToSlice() []*Node {
	var out []*Node
	cur := n
	for cur.IsList() {
		out = append(out, cur.Car)
		cur = cur.Cdr
	}
	return out
}

// Tail returns the final Cdr reached by walking a list chain: Nil for a
// proper list, or the dotted tail value for an improper one.
func (n *Node) Tail() *Node {
	cur := n
	for cur.IsList() {
		cur = cur.Cdr
	}
	return cur
}

// Len returns the number of elements in a proper list chain.
func (n *Node) Len() int {
	count := 0
	cur := n
	for cur.IsList() {
		count++
		cur = cur.Cdr
	}
	return count
}

// String renders the node using Lisp surface syntax, primarily for
// diagnostics and the quote round-trip test (§8 of the specification).
func (n *Node) String() string {
	if n.IsNil() {
		return "()"
	}
	if n.IsAtom() {
		return n.Tok.Lexeme
	}
	var b strings.Builder
	b.WriteByte('(')
	cur := n
	first := true
	for cur.IsList() {
		if !first {
			b.WriteByte(' ')
		}
		first = false
		b.WriteString(cur.Car.String())
		cur = cur.Cdr
	}
	if !cur.IsNil() {
		b.WriteString(" . ")
		b.WriteString(cur.String())
	}
	b.WriteByte(')')
	return b.String()
}

func (n *Node) GoString() string {
	return fmt.Sprintf("ast.Node{%s}", n.String())
}
