package compiler

import (
	"scheme-go/ast"
	"scheme-go/token"
)

// Synthetic AST builders used to desugar supplemented builtins (list,
// length, append, reverse, abs, max, min) into lambda, if, begin and
// set! plus other builtins (cons, car, cdr, null?, +, -, <, >), so
// none of them needs an opcode of its own. Names prefixed "#:" can never collide with a name the lexer
// would ever produce from real source (a bare '#' is only ever followed
// by 't' or 'f'; anything else is a lexical error), so they're safe
// hygienic temporaries.

func identNode(name string) *ast.Node {
	return ast.NewAtom(token.CreateToken(token.IDENTIFIER, name, 0, 0))
}

func keywordNode(kind token.TokenType, lexeme string) *ast.Node {
	return ast.NewAtom(token.CreateToken(kind, lexeme, 0, 0))
}

func numNode(n int64) *ast.Node {
	return ast.NewAtom(token.CreateLiteralToken(token.DECIMAL, n, "", 0, 0))
}

func listFrom(elems ...*ast.Node) *ast.Node {
	return ast.FromSlice(elems, 0, 0)
}

func lambdaNode(params []*ast.Node, body []*ast.Node) *ast.Node {
	elems := append([]*ast.Node{keywordNode(token.LAMBDA, "lambda"), listFrom(params...)}, body...)
	return listFrom(elems...)
}

func callNode(fn *ast.Node, args ...*ast.Node) *ast.Node {
	elems := append([]*ast.Node{fn}, args...)
	return listFrom(elems...)
}

func ifNode(cond, then, els *ast.Node) *ast.Node {
	return listFrom(keywordNode(token.IF, "if"), cond, then, els)
}

func beginNode(body []*ast.Node) *ast.Node {
	elems := append([]*ast.Node{keywordNode(token.BEGIN, "begin")}, body...)
	return listFrom(elems...)
}

func setNode(name, val *ast.Node) *ast.Node {
	return listFrom(keywordNode(token.SET, "set!"), name, val)
}

// letNode builds the immediately-invoked-lambda form `let` itself
// lowers to: `((lambda (n1 n2 ...) body...) v1 v2 ...)`. All vi are
// evaluated in the surrounding scope before the call, matching plain
// `let`'s "bindings can't see each other" semantics. This builds the
// lambda/call primitives directly (not a synthetic `let` node) so
// compileLet can use it without recursing back into itself.
func letNode(names, values []*ast.Node, body []*ast.Node) *ast.Node {
	return callNode(lambdaNode(names, body), values...)
}

// letrecNode builds `((lambda (n1 n2 ...) (set! n1 v1) (set! n2 v2)
// ... body...) nil nil ...)`: every name is a local in the new frame
// before any vi is compiled, so mutually recursive lambdas among the
// bindings can see each other. Internal `define` does not go through
// this builder; compileDefine declares its local directly.
func letrecNode(names, values []*ast.Node, body []*ast.Node) *ast.Node {
	sets := make([]*ast.Node, len(names))
	placeholders := make([]*ast.Node, len(names))
	for i := range names {
		sets[i] = setNode(names[i], values[i])
		placeholders[i] = ast.Nil
	}
	fullBody := append(append([]*ast.Node{}, sets...), body...)
	return callNode(lambdaNode(names, fullBody), placeholders...)
}

// builtinCallNode builds (name args...) for a builtin/keyword identifier
// already recognized by compileBuiltin/compileSpecialForm.
func builtinCallNode(name string, args ...*ast.Node) *ast.Node {
	elems := append([]*ast.Node{identNode(name)}, args...)
	return listFrom(elems...)
}

// synthAbs desugars (abs x) to (let ((#:t x)) (if (< #:t 0) (- #:t) #:t))
// so x is evaluated exactly once regardless of side effects.
func synthAbs(x *ast.Node) *ast.Node {
	t := identNode("#:abs-tmp")
	body := ifNode(
		builtinCallNode("<", t, numNode(0)),
		builtinCallNode("-", t),
		t,
	)
	return letNode([]*ast.Node{t}, []*ast.Node{x}, []*ast.Node{body})
}

// synthMinMax folds (max a b c ...) / (min a b c ...) pairwise using a
// hygienic temp per comparison so each argument is evaluated exactly
// once: (max a b) => (let ((#:x a) (#:y b)) (if (> #:x #:y) #:x #:y)).
func synthMinMax(args []*ast.Node, greater bool) *ast.Node {
	acc := args[0]
	for _, next := range args[1:] {
		x := identNode("#:mm-x")
		y := identNode("#:mm-y")
		op := "<"
		if greater {
			op = ">"
		}
		body := ifNode(builtinCallNode(op, x, y), x, y)
		acc = letNode([]*ast.Node{x, y}, []*ast.Node{acc, next}, []*ast.Node{body})
	}
	return acc
}

// synthList desugars (list a b c) to (cons a (cons b (cons c '()))).
func synthList(args []*ast.Node) *ast.Node {
	if len(args) == 0 {
		return ast.Nil
	}
	return builtinCallNode("cons", args[0], synthList(args[1:]))
}

// synthLength desugars (length lst) to a self-recursive loop built from
// null?/cdr/+ only:
//
//	(letrec ((#:len-loop (lambda (l n) (if (null? l) n (#:len-loop (cdr l) (+ n 1))))))
//	  (#:len-loop lst 0))
func synthLength(lst *ast.Node) *ast.Node {
	loop := identNode("#:len-loop")
	l := identNode("#:len-l")
	n := identNode("#:len-n")
	body := ifNode(
		builtinCallNode("null?", l),
		n,
		callNode(loop, builtinCallNode("cdr", l), builtinCallNode("+", n, numNode(1))),
	)
	fn := lambdaNode([]*ast.Node{l, n}, []*ast.Node{body})
	return letrecNode([]*ast.Node{loop}, []*ast.Node{fn}, []*ast.Node{callNode(loop, lst, numNode(0))})
}

// synthReverse desugars (reverse lst) similarly, accumulating with cons.
func synthReverse(lst *ast.Node) *ast.Node {
	loop := identNode("#:rev-loop")
	l := identNode("#:rev-l")
	acc := identNode("#:rev-acc")
	body := ifNode(
		builtinCallNode("null?", l),
		acc,
		callNode(loop, builtinCallNode("cdr", l), builtinCallNode("cons", builtinCallNode("car", l), acc)),
	)
	fn := lambdaNode([]*ast.Node{l, acc}, []*ast.Node{body})
	return letrecNode([]*ast.Node{loop}, []*ast.Node{fn}, []*ast.Node{callNode(loop, lst, ast.Nil)})
}

// synthAppend desugars (append a b) to a self-recursive walk of `a`
// that conses its elements onto `b`, captured as an upvalue by the
// inner loop closure.
func synthAppend(a, b *ast.Node) *ast.Node {
	loop := identNode("#:app-loop")
	l := identNode("#:app-l")
	bTmp := identNode("#:app-b")
	body := ifNode(
		builtinCallNode("null?", l),
		bTmp,
		builtinCallNode("cons", builtinCallNode("car", l), callNode(loop, builtinCallNode("cdr", l))),
	)
	fn := lambdaNode([]*ast.Node{l}, []*ast.Node{body})
	inner := letrecNode([]*ast.Node{loop}, []*ast.Node{fn}, []*ast.Node{callNode(loop, a)})
	return letNode([]*ast.Node{bTmp}, []*ast.Node{b}, []*ast.Node{inner})
}
