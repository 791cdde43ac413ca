// Package value defines the runtime value representation shared by the
// compiler and the VM: Value, heap-allocated Pairs, and the
// Function/Closure/Upvalue objects that back callable values.
//
// Grounded on original_source/include/vm/value.h (the ValueType tag
// union: VAL_NUMBER/VAL_STRING/VAL_BOOL/VAL_NIL/VAL_PAIR/VAL_FUNCTION/
// VAL_CLOSURE) and on the teacher's preference for small tagged Go
// structs over `any` wherever the domain has a closed set of shapes
// (ast.Node, compiler.OpCodeDefinition) — unlike the teacher's own
// `Value any` (teacher's Stack is `[]any`), this system needs a closed,
// inspectable tag because the VM must type-switch on it every
// instruction.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags which variant of Value is populated.
type Kind int

const (
	KindNumber Kind = iota
	KindString
	KindBool
	KindNil
	KindPair
	KindFunction
	KindClosure
)

// Value is the tagged union of every runtime value the VM manipulates.
// Exactly one of the typed fields is meaningful, selected by Kind. Nil is
// its own Kind and is always falsy-distinct: only Bool(false) is falsy.
type Value struct {
	Kind Kind

	Number float64
	Str    string
	Bool   bool
	Pair   *Pair
	Fn     *Function
	Clo    *Closure
}

func Number(n float64) Value  { return Value{Kind: KindNumber, Number: n} }
func String(s string) Value   { return Value{Kind: KindString, Str: s} }
func Bool_(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func PairVal(p *Pair) Value   { return Value{Kind: KindPair, Pair: p} }
func FuncVal(f *Function) Value  { return Value{Kind: KindFunction, Fn: f} }
func ClosureVal(c *Closure) Value { return Value{Kind: KindClosure, Clo: c} }

var Nil = Value{Kind: KindNil}

func (v Value) IsNumber() bool   { return v.Kind == KindNumber }
func (v Value) IsString() bool   { return v.Kind == KindString }
func (v Value) IsBool() bool     { return v.Kind == KindBool }
func (v Value) IsNil() bool      { return v.Kind == KindNil }
func (v Value) IsPair() bool     { return v.Kind == KindPair }
func (v Value) IsFunction() bool { return v.Kind == KindFunction }
func (v Value) IsClosure() bool  { return v.Kind == KindClosure }
func (v Value) IsCallable() bool { return v.Kind == KindClosure }

// Truthy implements the language's truthiness rule: only Bool(false) is
// falsy, Nil and 0 are both truthy.
func (v Value) Truthy() bool {
	return !(v.Kind == KindBool && !v.Bool)
}

// Equal implements the numeric/structural equality used by OP_EQUAL and
// OP_NOT_EQUAL (and so by `=`, `zero?`, `eq?` and `equal?`): numbers and strings compare by value,
// booleans by value, Nil equals only Nil, pairs compare structurally,
// and closures/functions compare by identity.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNumber:
		return a.Number == b.Number
	case KindString:
		return a.Str == b.Str
	case KindBool:
		return a.Bool == b.Bool
	case KindNil:
		return true
	case KindPair:
		return Equal(a.Pair.Car, b.Pair.Car) && Equal(a.Pair.Cdr, b.Pair.Cdr)
	case KindFunction:
		return a.Fn == b.Fn
	case KindClosure:
		return a.Clo == b.Clo
	}
	return false
}

// Pair is a heap-allocated cons cell. Its fields are set once at CONS
// time and never mutated afterward (per the spec's resource model).
type Pair struct {
	Car Value
	Cdr Value
}

// UpvalueDesc records, for one upvalue captured by a function, whether
// it refers to a local slot of the immediately enclosing function
// (IsLocal) or to one of that enclosing function's own upvalues.
type UpvalueDesc struct {
	Index   int
	IsLocal bool
}

// Function is the immutable, compiled code of a lambda: its arity, the
// upvalues it needs wired up when a Closure is created from it, its
// bytecode chunk (typed as `any` here to avoid an import cycle with
// package compiler; the VM and compiler both hold it as
// *compiler.Bytecode), and an optional name for diagnostics.
type Function struct {
	Arity        int
	UpvalueCount int
	Chunk        any
	Name         string
	Upvalues     []UpvalueDesc
}

// Closure pairs a Function with its captured upvalues. One Closure is
// created per OP_CLOSURE execution; several closures may share the same
// underlying Function.
type Closure struct {
	Function  *Function
	Upvalues  []*Upvalue
}

// Upvalue is either open (Location points into a live stack slot) or
// closed (Closed holds the value after the frame that owned the slot
// returned). Next threads the VM's open-upvalues list, kept sorted by
// descending stack slot so captures of the same slot can be shared.
type Upvalue struct {
	// Location points at the stack slot this upvalue refers to while
	// open. Once closed, Location is nil and Closed holds the value.
	Location *Value
	Closed   Value
	IsClosed bool
	Slot     int
	Next     *Upvalue
}

func (u *Upvalue) Get() Value {
	if u.IsClosed {
		return u.Closed
	}
	return *u.Location
}

func (u *Upvalue) Set(v Value) {
	if u.IsClosed {
		u.Closed = v
		return
	}
	*u.Location = v
}

// Close moves the value out of the stack slot into the upvalue's own
// storage and marks it closed, detaching it from the stack it used to
// point into.
func (u *Upvalue) Close() {
	u.Closed = *u.Location
	u.IsClosed = true
	u.Location = nil
}

// Print renders v using the canonical printer the DISPLAY opcode uses:
// numbers in short decimal notation, strings verbatim, booleans as
// #t/#f, Nil as (), and pairs in Lisp list notation with a dotted tail
// when the list is improper.
func Print(v Value) string {
	switch v.Kind {
	case KindNumber:
		return formatNumber(v.Number)
	case KindString:
		return v.Str
	case KindBool:
		if v.Bool {
			return "#t"
		}
		return "#f"
	case KindNil:
		return "()"
	case KindPair:
		return printPair(v)
	case KindFunction:
		name := v.Fn.Name
		if name == "" {
			name = "anonymous"
		}
		return fmt.Sprintf("#<function %s>", name)
	case KindClosure:
		name := v.Clo.Function.Name
		if name == "" {
			name = "anonymous"
		}
		return fmt.Sprintf("#<closure %s>", name)
	}
	return "#<unknown>"
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	s := strconv.FormatFloat(n, 'g', -1, 64)
	return s
}

func printPair(v Value) string {
	var b strings.Builder
	b.WriteByte('(')
	cur := v
	first := true
	for cur.IsPair() {
		if !first {
			b.WriteByte(' ')
		}
		first = false
		b.WriteString(Print(cur.Pair.Car))
		cur = cur.Pair.Cdr
	}
	if !cur.IsNil() {
		b.WriteString(" . ")
		b.WriteString(Print(cur))
	}
	b.WriteByte(')')
	return b.String()
}
