package vm_test

import (
	"bytes"
	"strings"
	"testing"

	"scheme-go/compiler"
	"scheme-go/lexer"
	"scheme-go/parser"
	"scheme-go/vm"
)

// run compiles and executes src on a fresh VM, returning everything
// written to stdout and any runtime error encountered. A lex, parse or
// compile error fails the test immediately.
func run(t *testing.T, src string) (string, error) {
	t.Helper()
	lex := lexer.New(src)
	tokens, lexErrs := lex.Scan()
	if len(lexErrs) > 0 {
		t.Fatalf("lex errors: %v", lexErrs)
	}
	p := parser.New(tokens)
	forms, parseErrs := p.Parse()
	if len(parseErrs) > 0 {
		t.Fatalf("parse errors: %v", parseErrs)
	}
	fn, compErrs := compiler.New().Compile(forms)
	if len(compErrs) > 0 {
		t.Fatalf("compile errors: %v", compErrs)
	}
	var out bytes.Buffer
	machine := vm.New()
	machine.SetOutput(&out)
	err := machine.Run(fn)
	return out.String(), err
}

func TestDisplaySimpleArithmetic(t *testing.T) {
	out, err := run(t, `(display (+ 1 2))`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "3" {
		t.Errorf("output = %q, want %q", out, "3")
	}
}

func TestFactorialRecursion(t *testing.T) {
	out, err := run(t, `
		(define fact
		  (lambda (n)
		    (if (= n 0) 1 (* n (fact (- n 1))))))
		(display (fact 5))
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "120" {
		t.Errorf("output = %q, want %q", out, "120")
	}
}

// TestClosureCounterMutation is spec.md §8's closure upvalue capture and
// mutation scenario: three calls to a counter closure must observe the
// mutation made by the previous call, proving upvalues stay shared (not
// copied) across calls and that internal `define` redefines rather than
// shadows.
func TestClosureCounterMutation(t *testing.T) {
	out, err := run(t, `
		(define make-counter
		  (lambda ()
		    (define n 0)
		    (lambda ()
		      (define n (+ n 1))
		      n)))
		(define counter (make-counter))
		(display (counter))
		(newline)
		(display (counter))
		(newline)
		(display (counter))
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "1\n2\n3" {
		t.Errorf("output = %q, want %q", out, "1\\n2\\n3")
	}
}

func TestShortCircuitAnd(t *testing.T) {
	out, err := run(t, `
		(define calls 0)
		(define side-effect (lambda () (set! calls (+ calls 1)) #t))
		(and #f (side-effect))
		(display calls)
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "0" {
		t.Errorf("and did not short-circuit: calls displayed %q, want %q", out, "0")
	}
}

func TestShortCircuitOr(t *testing.T) {
	out, err := run(t, `
		(define calls 0)
		(define side-effect (lambda () (set! calls (+ calls 1)) #t))
		(or #t (side-effect))
		(display calls)
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "0" {
		t.Errorf("or did not short-circuit: calls displayed %q, want %q", out, "0")
	}
}

func TestDivisionByZeroIsRuntimeError(t *testing.T) {
	_, err := run(t, `(display (/ 1 0))`)
	if err == nil {
		t.Fatalf("expected a runtime error, got nil")
	}
	if !strings.Contains(err.Error(), "division by zero") {
		t.Errorf("error = %v, want it to mention division by zero", err)
	}
}

func TestUndefinedVariableIsRuntimeError(t *testing.T) {
	_, err := run(t, `(display undefined-name)`)
	if err == nil {
		t.Fatalf("expected a runtime error, got nil")
	}
	if !strings.Contains(err.Error(), "undefined variable") {
		t.Errorf("error = %v, want it to mention an undefined variable", err)
	}
}

func TestVariadicArithmeticBoundaryCases(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{`(display (+))`, "0"},
		{`(display (*))`, "1"},
		{`(display (- 5))`, "-5"},
		{`(display (/ 4))`, "0.25"},
	}
	for _, c := range cases {
		out, err := run(t, c.src)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", c.src, err)
		}
		if out != c.want {
			t.Errorf("%s = %q, want %q", c.src, out, c.want)
		}
	}
}

func TestIfWithoutElseYieldsNil(t *testing.T) {
	out, err := run(t, `(display (if #f 1))`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "()" {
		t.Errorf("output = %q, want %q", out, "()")
	}
}

func TestConsCarCdr(t *testing.T) {
	out, err := run(t, `(display (car (cons 1 2)))(display (cdr (cons 1 2)))`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "12" {
		t.Errorf("output = %q, want %q", out, "12")
	}
}

func TestCondWithElse(t *testing.T) {
	out, err := run(t, `
		(define classify
		  (lambda (n)
		    (cond ((< n 0) "negative")
		          ((= n 0) "zero")
		          (else "positive"))))
		(display (classify -5))
		(display (classify 0))
		(display (classify 5))
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "negativezeropositive" {
		t.Errorf("output = %q, want %q", out, "negativezeropositive")
	}
}

func TestLetBindingsDoNotSeeEachOther(t *testing.T) {
	out, err := run(t, `
		(define x 10)
		(display (let ((x 1) (y x)) y))
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "10" {
		t.Errorf("output = %q, want %q (y should see the outer x, not the sibling binding)", out, "10")
	}
}

func TestLetStarBindingsSeeEachOther(t *testing.T) {
	out, err := run(t, `(display (let* ((x 1) (y (+ x 1))) y))`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "2" {
		t.Errorf("output = %q, want %q", out, "2")
	}
}

func TestLetrecMutualRecursion(t *testing.T) {
	out, err := run(t, `
		(display
		  (letrec ((even? (lambda (n) (if (= n 0) #t (odd? (- n 1)))))
		           (odd? (lambda (n) (if (= n 0) #f (even? (- n 1))))))
		    (even? 10)))
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "#t" {
		t.Errorf("output = %q, want %q", out, "#t")
	}
}

func TestListBuiltins(t *testing.T) {
	out, err := run(t, `
		(display (length (list 1 2 3)))
		(display (reverse (list 1 2 3)))
		(display (append (list 1 2) (list 3 4)))
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "3(3 2 1)(1 2 3 4)" {
		t.Errorf("output = %q, want %q", out, "3(3 2 1)(1 2 3 4)")
	}
}

func TestAbsMaxMin(t *testing.T) {
	out, err := run(t, `
		(display (abs -5))
		(display (max 1 9 3))
		(display (min 1 9 3))
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "591" {
		t.Errorf("output = %q, want %q", out, "591")
	}
}

func TestDisplayQuotedSymbolStripsSigil(t *testing.T) {
	out, err := run(t, `(display 'foo)`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "foo" {
		t.Errorf("output = %q, want %q", out, "foo")
	}
}

func TestDisplayQuotedListWithNestedSymbolStripsSigil(t *testing.T) {
	out, err := run(t, `(display '(a 'b c))`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "(a b c)" {
		t.Errorf("output = %q, want %q", out, "(a b c)")
	}
}

func TestDeepRecursionIsFrameOverflow(t *testing.T) {
	_, err := run(t, `
		(define loop (lambda (n) (+ 1 (loop (+ n 1)))))
		(loop 0)
	`)
	if err == nil {
		t.Fatalf("expected a frame overflow error, got nil")
	}
}
