package compiler

import (
	"fmt"

	"scheme-go/ast"
	"scheme-go/token"
	"scheme-go/value"
)

// Local represents one local variable slot in the function currently
// being compiled. Grounded on the teacher's compiler.Local (name/
// initialized/slot); unlike the teacher, there is no `depth` field,
// because every local here lives for the whole function (block scopes
// like `let`/`let*`/`letrec` are desugared to immediately-invoked
// lambdas, so a local's lifetime always ends at the enclosing
// function's RETURN, which the VM already unwinds automatically).
type Local struct {
	name        string
	slot        int
	initialized bool
}

// Compiler compiles one function body (the top-level script, or one
// lambda) to bytecode. Nested lambdas push a new Compiler chained via
// enclosing, exactly as spec.md §4.4's "linked stack of Compiler
// frames".
type Compiler struct {
	enclosing *Compiler

	function *value.Function
	chunk    *Bytecode

	locals       []Local
	upvalueNames []string

	nameConstants map[string]int

	errors []error
}

// New creates the root Compiler for a top-level script: an anonymous,
// zero-arity function whose local slot 0 (reserved for the executing
// closure, per spec.md §3) is never otherwise addressed.
func New() *Compiler {
	chunk := &Bytecode{}
	fn := &value.Function{Name: "<script>", Chunk: chunk}
	return &Compiler{
		function:      fn,
		chunk:         chunk,
		locals:        []Local{{name: "", slot: 0, initialized: true}},
		nameConstants: map[string]int{},
	}
}

func newChild(enclosing *Compiler, name string, arity int) *Compiler {
	chunk := &Bytecode{}
	fn := &value.Function{Name: name, Arity: arity, Chunk: chunk}
	return &Compiler{
		enclosing:     enclosing,
		function:      fn,
		chunk:         chunk,
		locals:        []Local{{name: "", slot: 0, initialized: true}},
		nameConstants: map[string]int{},
	}
}

// Compile compiles every top-level form, continuing past a form that
// errors so later forms can still be checked (spec.md §4.4's "compiler
// continues so more diagnostics can be reported"). It returns the
// compiled script function and every diagnostic collected.
func (c *Compiler) Compile(forms []*ast.Node) (*value.Function, []error) {
	for _, form := range forms {
		c.compileTopLevel(form)
	}
	c.emit(OP_HALT)
	return c.function, c.errors
}

// compileTopLevel compiles one top-level form as a statement: its
// value is computed then discarded. A CompileError/DeveloperError
// raised deep in the recursive descent is caught here so one malformed
// form doesn't prevent compiling the rest of the file.
func (c *Compiler) compileTopLevel(form *ast.Node) {
	defer func() {
		if r := recover(); r != nil {
			switch e := r.(type) {
			case CompileError:
				c.errors = append(c.errors, e)
			case DeveloperError:
				c.errors = append(c.errors, e)
			default:
				panic(r)
			}
		}
	}()
	c.compileExpr(form)
	c.emit(OP_POP)
}

func (c *Compiler) fail(node *ast.Node, format string, args ...any) {
	line, col := 0, 0
	if node != nil {
		line, col = node.Line, node.Col
	}
	panic(CompileError{Line: line, Column: col, Message: fmt.Sprintf(format, args...)})
}

// --- emit helpers -----------------------------------------------------

func (c *Compiler) emit(op Opcode, operand ...uint16) int {
	var o uint16
	if len(operand) > 0 {
		o = operand[0]
	}
	c.chunk.Instructions = append(c.chunk.Instructions, Instruction{Opcode: op, Operand: o})
	return len(c.chunk.Instructions) - 1
}

// emitRaw appends a pseudo-instruction without going through the usual
// opcode table; used only for the CLOSURE upvalue descriptors, which
// the VM reads positionally rather than dispatching.
func (c *Compiler) emitRaw(isLocal bool, index uint16) {
	var flag Opcode
	if isLocal {
		flag = 1
	}
	c.chunk.Instructions = append(c.chunk.Instructions, Instruction{Opcode: flag, Operand: index})
}

// emitPlaceholderJump emits a jump with a zero operand and returns its
// index so patchJump (or the jump-chain technique) can fill in the
// real target later.
func (c *Compiler) emitPlaceholderJump(op Opcode) int {
	return c.emit(op, 0)
}

// patchJump sets the jump instruction at jumpPos to target the next
// instruction to be emitted.
func (c *Compiler) patchJump(jumpPos int) {
	target := len(c.chunk.Instructions)
	if target > 0xFFFF {
		panic(DeveloperError{Message: "jump target exceeds 16-bit instruction index"})
	}
	c.chunk.Instructions[jumpPos].Operand = uint16(target)
}

func (c *Compiler) addConstant(v value.Value) uint16 {
	c.chunk.Constants = append(c.chunk.Constants, v)
	idx := len(c.chunk.Constants) - 1
	if idx > 0xFFFF {
		panic(DeveloperError{Message: "constant pool exceeds 16-bit index"})
	}
	return uint16(idx)
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emit(OP_CONSTANT, c.addConstant(v))
}

// nameConstant interns name as a string constant, deduplicating so
// repeated references to the same global share one pool slot.
func (c *Compiler) nameConstant(name string) uint16 {
	if idx, ok := c.nameConstants[name]; ok {
		return uint16(idx)
	}
	idx := c.addConstant(value.String(name))
	c.nameConstants[name] = int(idx)
	return idx
}

// --- locals & variable resolution -----------------------------------------

// declareLocal registers name as occupying the next local slot. No
// opcode is emitted here: the value that becomes that slot is the one
// already on the stack (a parameter pushed by the caller) or the one
// pushed next (an internal define compiles its value expression right
// after declaring the name, so that expression can refer to it).
func (c *Compiler) declareLocal(node *ast.Node, name string) int {
	slot := len(c.locals)
	c.locals = append(c.locals, Local{name: name, slot: slot, initialized: true})
	return slot
}

type varTarget struct {
	kind  int
	index int
}

const (
	targetLocal = iota
	targetUpvalue
	targetGlobal
)

func (c *Compiler) resolveLocal(name string) (int, bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name && c.locals[i].initialized {
			return c.locals[i].slot, true
		}
	}
	return 0, false
}

// declaresNewLocal reports whether node is a `(define name expr)` that
// will claim a fresh local slot in this function, as opposed to a
// global define or a redefinition of a name that already resolves (as a
// local or an upvalue), both of which leave a discardable Nil on the
// stack. compileSequence must call this before compiling node: compiling
// a genuinely new define mutates c.locals, so checking afterward would
// always see the name as already resolved.
func (c *Compiler) declaresNewLocal(node *ast.Node) bool {
	if c.enclosing == nil || !node.IsList() || !node.Car.IsAtom() {
		return false
	}
	if node.Car.Tok.TokenType != token.DEFINE {
		return false
	}
	parts := node.Cdr.ToSlice()
	if len(parts) != 2 || !parts[0].IsAtom() || parts[0].Tok.TokenType != token.IDENTIFIER {
		return false
	}
	name := parts[0].Tok.Lexeme
	if _, ok := c.resolveLocal(name); ok {
		return false
	}
	if _, ok := c.resolveUpvalue(name); ok {
		return false
	}
	return true
}

func (c *Compiler) resolveUpvalue(name string) (int, bool) {
	if c.enclosing == nil {
		return 0, false
	}
	if slot, ok := c.enclosing.resolveLocal(name); ok {
		return c.addUpvalue(name, slot, true), true
	}
	if idx, ok := c.enclosing.resolveUpvalue(name); ok {
		return c.addUpvalue(name, idx, false), true
	}
	return 0, false
}

func (c *Compiler) addUpvalue(name string, index int, isLocal bool) int {
	for i, n := range c.upvalueNames {
		if n == name {
			return i
		}
	}
	c.upvalueNames = append(c.upvalueNames, name)
	c.function.Upvalues = append(c.function.Upvalues, value.UpvalueDesc{Index: index, IsLocal: isLocal})
	c.function.UpvalueCount = len(c.function.Upvalues)
	return len(c.function.Upvalues) - 1
}

func (c *Compiler) resolveVariable(name string) varTarget {
	if slot, ok := c.resolveLocal(name); ok {
		return varTarget{targetLocal, slot}
	}
	if idx, ok := c.resolveUpvalue(name); ok {
		return varTarget{targetUpvalue, idx}
	}
	return varTarget{targetGlobal, int(c.nameConstant(name))}
}

func (c *Compiler) emitLoad(t varTarget) {
	switch t.kind {
	case targetLocal:
		c.emit(OP_GET_LOCAL, uint16(t.index))
	case targetUpvalue:
		c.emit(OP_GET_UPVALUE, uint16(t.index))
	default:
		c.emit(OP_GET_GLOBAL, uint16(t.index))
	}
}

func (c *Compiler) emitStore(t varTarget) {
	switch t.kind {
	case targetLocal:
		c.emit(OP_SET_LOCAL, uint16(t.index))
	case targetUpvalue:
		c.emit(OP_SET_UPVALUE, uint16(t.index))
	default:
		c.emit(OP_SET_GLOBAL, uint16(t.index))
	}
}

// --- expression compilation ----------------------------------------------

var specialForms = map[token.TokenType]bool{
	token.IF: true, token.DEFINE: true, token.LAMBDA: true,
	token.LET: true, token.LET_STAR: true, token.LETREC: true,
	token.COND: true, token.AND: true, token.OR: true,
	token.BEGIN: true, token.WHEN: true, token.UNLESS: true,
	token.SET: true, token.QUOTE: true,
}

var builtinNames = map[string]bool{
	"+": true, "-": true, "*": true, "/": true,
	"=": true, "<": true, ">": true, "<=": true, ">=": true, "!=": true,
	"display": true, "newline": true, "read": true, "read-line": true,
	"cons": true, "car": true, "cdr": true,
	"not": true, "null?": true, "pair?": true, "number?": true,
	"string?": true, "procedure?": true, "zero?": true,
	"list": true, "length": true, "append": true, "reverse": true,
	"eq?": true, "equal?": true, "mod": true, "modulo": true,
	"abs": true, "max": true, "min": true,
}

// compileExpr compiles node as an rvalue: executing the resulting
// fragment increases the value stack by exactly one, per spec.md §8's
// stack-balance invariant.
func (c *Compiler) compileExpr(node *ast.Node) {
	switch {
	case node.IsNil():
		c.emitConstant(value.Nil)
	case node.IsAtom():
		c.compileAtom(node)
	case node.IsList():
		c.compileList(node)
	}
}

func (c *Compiler) compileAtom(node *ast.Node) {
	tok := node.Tok
	switch tok.TokenType {
	case token.DECIMAL:
		c.emitConstant(value.Number(float64(tok.Literal.(int64))))
	case token.REAL:
		c.emitConstant(value.Number(tok.Literal.(float64)))
	case token.STRING:
		c.emitConstant(value.String(tok.Literal.(string)))
	case token.TRUE:
		c.emitConstant(value.Bool_(true))
	case token.FALSE:
		c.emitConstant(value.Bool_(false))
	case token.SYMBOL:
		c.emitConstant(value.String(tok.Literal.(string)))
	case token.IDENTIFIER:
		c.emitLoad(c.resolveVariable(tok.Lexeme))
	case token.ELSE:
		c.fail(node, "'else' is only valid as the last clause of 'cond'")
	default:
		c.fail(node, "'%s' is a special form and cannot be used as a value", tok.Lexeme)
	}
}

func (c *Compiler) compileList(node *ast.Node) {
	head := node.Car
	if head.IsAtom() {
		if specialForms[head.Tok.TokenType] {
			c.compileSpecialForm(head.Tok.TokenType, node)
			return
		}
		if head.Tok.TokenType == token.IDENTIFIER && builtinNames[head.Tok.Lexeme] {
			// A local parameter named e.g. `list` shadows the builtin;
			// upvalues are not checked here since shadowing a builtin via
			// a captured binding is not a scenario this language needs to
			// support, only direct locals are.
			if _, shadowed := c.resolveLocal(head.Tok.Lexeme); !shadowed {
				c.compileBuiltin(head.Tok.Lexeme, node)
				return
			}
		}
	}
	c.compileCall(node)
}

func (c *Compiler) compileCall(node *ast.Node) {
	args := node.Cdr.ToSlice()
	c.compileExpr(node.Car)
	for _, a := range args {
		c.compileExpr(a)
	}
	if len(args) > 0xFFFF {
		c.fail(node, "too many call arguments")
	}
	c.emit(OP_CALL, uint16(len(args)))
}

// compileSequence compiles a body of expressions left-to-right,
// inserting POP between all but the last so only the final value
// remains on the stack; an empty body pushes Nil. A non-last form that
// declares a new local (declaresNewLocal) is exempted from the POP: its
// value isn't a discardable statement result, it's the slot the rest of
// the body will address by index, so popping it would shift every
// local after it down by one.
func (c *Compiler) compileSequence(node *ast.Node) {
	exprs := node.ToSlice()
	if len(exprs) == 0 {
		c.emitConstant(value.Nil)
		return
	}
	for i, e := range exprs {
		newLocal := c.declaresNewLocal(e)
		c.compileExpr(e)
		if i < len(exprs)-1 && !newLocal {
			c.emit(OP_POP)
		}
	}
}

func (c *Compiler) compileSpecialForm(kind token.TokenType, node *ast.Node) {
	switch kind {
	case token.IF:
		c.compileIf(node)
	case token.DEFINE:
		c.compileDefine(node)
	case token.LAMBDA:
		c.compileLambda(node, "")
	case token.LET:
		c.compileLet(node)
	case token.LET_STAR:
		c.compileLetStar(node)
	case token.LETREC:
		c.compileLetrec(node)
	case token.COND:
		c.compileCond(node)
	case token.AND:
		c.compileAnd(node)
	case token.OR:
		c.compileOr(node)
	case token.BEGIN:
		c.compileSequence(node.Cdr)
	case token.WHEN:
		c.compileWhen(node)
	case token.UNLESS:
		c.compileUnless(node)
	case token.SET:
		c.compileSet(node)
	case token.QUOTE:
		c.compileQuote(node)
	}
}

// --- if / cond / and / or / when / unless ---------------------------------

func (c *Compiler) compileIf(node *ast.Node) {
	parts := node.Cdr.ToSlice()
	if len(parts) < 2 || len(parts) > 3 {
		c.fail(node, "'if' expects (if cond then [else]), got %d parts", len(parts))
	}
	c.compileExpr(parts[0])
	j1 := c.emitPlaceholderJump(OP_JUMP_IF_FALSE)
	c.compileExpr(parts[1])
	j2 := c.emitPlaceholderJump(OP_JUMP)
	c.patchJump(j1)
	if len(parts) == 3 {
		c.compileExpr(parts[2])
	} else {
		c.emitConstant(value.Nil)
	}
	c.patchJump(j2)
}

func (c *Compiler) compileWhen(node *ast.Node) {
	parts := node.Cdr
	if parts.IsNil() {
		c.fail(node, "'when' expects a condition")
	}
	c.compileExpr(ifNode(parts.Car, beginNode(parts.Cdr.ToSlice()), ast.Nil))
}

func (c *Compiler) compileUnless(node *ast.Node) {
	parts := node.Cdr
	if parts.IsNil() {
		c.fail(node, "'unless' expects a condition")
	}
	c.compileExpr(ifNode(parts.Car, ast.Nil, beginNode(parts.Cdr.ToSlice())))
}

// compileCond lowers each clause to an if-pattern, threading a chain of
// exit jumps via the reused-operand technique: each exit jump's operand
// temporarily stores the index of the previous jump in the chain (or
// -1), then the chain is walked backward patching each to the final
// target and reading the next link from the old operand first.
func (c *Compiler) compileCond(node *ast.Node) {
	clauses := node.Cdr.ToSlice()
	exitChain := -1
	sawElse := false
	for i, clause := range clauses {
		if !clause.IsList() {
			c.fail(clause, "'cond' clause must be a list")
		}
		test := clause.Car
		body := clause.Cdr

		if test.IsAtom() && test.Tok.TokenType == token.ELSE {
			if i != len(clauses)-1 {
				c.fail(clause, "'else' clause must be last in 'cond'")
			}
			sawElse = true
			c.compileSequence(body)
			break
		}

		c.compileExpr(test)
		jfalse := c.emitPlaceholderJump(OP_JUMP_IF_FALSE)
		c.compileSequence(body)
		exitJump := c.emit(OP_JUMP, encodeLink(exitChain))
		c.patchJump(jfalse)
		exitChain = exitJump
	}
	if !sawElse {
		c.emitConstant(value.Nil)
	}
	c.patchJumpChain(exitChain)
}

// encodeLink/decodeLink store a "previous jump in the chain" index (or
// -1 for none) inside a jump instruction's own uint16 operand field,
// the reused-operand technique spec.md's cond/and/or lowering relies on.
func encodeLink(prev int) uint16 { return uint16(int16(prev)) }
func decodeLink(operand uint16) int { return int(int16(operand)) }

// patchJumpChain walks a chain of jump instructions linked through
// their own operand field and patches every link to the instruction
// index following the chain, reading each link's next pointer before
// overwriting it.
func (c *Compiler) patchJumpChain(head int) {
	target := len(c.chunk.Instructions)
	for head != -1 {
		next := decodeLink(c.chunk.Instructions[head].Operand)
		c.chunk.Instructions[head].Operand = uint16(target)
		head = next
	}
}

func (c *Compiler) compileAnd(node *ast.Node) {
	exprs := node.Cdr.ToSlice()
	if len(exprs) == 0 {
		c.emitConstant(value.Bool_(true))
		return
	}
	exitChain := -1
	for i, e := range exprs {
		c.compileExpr(e)
		if i == len(exprs)-1 {
			break
		}
		exitChain = c.emit(OP_JUMP_IF_FALSE_OR_POP, encodeLink(exitChain))
	}
	c.patchJumpChain(exitChain)
}

func (c *Compiler) compileOr(node *ast.Node) {
	exprs := node.Cdr.ToSlice()
	if len(exprs) == 0 {
		c.emitConstant(value.Bool_(false))
		return
	}
	exitChain := -1
	for i, e := range exprs {
		c.compileExpr(e)
		if i == len(exprs)-1 {
			break
		}
		exitChain = c.emit(OP_JUMP_IF_TRUE_OR_POP, encodeLink(exitChain))
	}
	c.patchJumpChain(exitChain)
}

// --- define / set! / lambda ----------------------------------------------

func (c *Compiler) compileDefine(node *ast.Node) {
	parts := node.Cdr.ToSlice()
	if len(parts) != 2 || !parts[0].IsAtom() || parts[0].Tok.TokenType != token.IDENTIFIER {
		c.fail(node, "'define' expects (define name expr)")
	}
	name := parts[0].Tok.Lexeme
	if c.enclosing == nil {
		c.compileExprNamed(parts[1], name)
		c.emit(OP_DEFINE_GLOBAL, c.nameConstant(name))
		c.emitConstant(value.Nil)
		return
	}
	// Internal define: Scheme's letrec-equivalent semantics (spec.md §9's
	// open question) — a redefinition of an already-declared local, or of
	// a variable captured from an enclosing function, mutates it in
	// place rather than shadowing. This is what lets the returned lambda
	// in `(define (make-counter) (define n 0) (lambda () (define n (+ n
	// 1)) n))` mutate the same n across calls instead of shadowing it
	// with a fresh local on every invocation.
	if slot, ok := c.resolveLocal(name); ok {
		c.compileExprNamed(parts[1], name)
		c.emit(OP_SET_LOCAL, uint16(slot))
		c.emitConstant(value.Nil)
		return
	}
	if idx, ok := c.resolveUpvalue(name); ok {
		c.compileExprNamed(parts[1], name)
		c.emit(OP_SET_UPVALUE, uint16(idx))
		c.emitConstant(value.Nil)
		return
	}
	c.declareLocal(node, name)
	c.compileExprNamed(parts[1], name)
}

// compileExprNamed compiles expr as the right-hand side of a define,
// passing the binding's name through so a `(lambda ...)` RHS is named
// for diagnostics and disassembly.
func (c *Compiler) compileExprNamed(expr *ast.Node, name string) {
	if expr.IsList() && expr.Car.IsAtom() && expr.Car.Tok.TokenType == token.LAMBDA {
		c.compileLambda(expr, name)
		return
	}
	c.compileExpr(expr)
}

func (c *Compiler) compileSet(node *ast.Node) {
	parts := node.Cdr.ToSlice()
	if len(parts) != 2 || !parts[0].IsAtom() || parts[0].Tok.TokenType != token.IDENTIFIER {
		c.fail(node, "'set!' expects (set! name expr)")
	}
	name := parts[0].Tok.Lexeme
	target := c.resolveVariable(name)
	c.compileExpr(parts[1])
	c.emitStore(target)
	c.emitConstant(value.Nil)
}

func (c *Compiler) compileLambda(node *ast.Node, name string) {
	parts := node.Cdr
	if parts.IsNil() {
		c.fail(node, "'lambda' expects (lambda (params...) body...)")
	}
	paramsNode := parts.Car
	bodyNode := parts.Cdr

	var params []string
	cur := paramsNode
	for cur.IsList() {
		if !cur.Car.IsAtom() || cur.Car.Tok.TokenType != token.IDENTIFIER {
			c.fail(cur, "lambda parameter must be an identifier")
		}
		params = append(params, cur.Car.Tok.Lexeme)
		cur = cur.Cdr
	}
	if !cur.IsNil() {
		c.fail(paramsNode, "variadic parameter lists are not supported")
	}

	child := newChild(c, name, len(params))
	for _, p := range params {
		child.declareLocal(paramsNode, p)
	}
	child.compileSequence(bodyNode)
	child.emit(OP_RETURN)
	c.errors = append(c.errors, child.errors...)

	fnIdx := c.addConstant(value.FuncVal(child.function))
	c.emit(OP_CLOSURE, fnIdx)
	for _, desc := range child.function.Upvalues {
		c.emitRaw(desc.IsLocal, uint16(desc.Index))
	}
}

// --- let / let* / letrec, desugared to immediately-invoked lambdas -------
//
// `let`'s own bindings therefore live and die inside a real call frame:
// CALL pushes the frame, RETURN resets stack_top to base_slot and closes
// any upvalues captured from it, exactly per spec.md §4.5. No separate
// block-scope bookkeeping is needed in the compiler.

type binding struct {
	name *ast.Node
	expr *ast.Node
}

func parseBindings(node *ast.Node) []binding {
	var out []binding
	for _, b := range node.ToSlice() {
		if !b.IsList() {
			continue
		}
		parts := b.ToSlice()
		if len(parts) != 2 {
			continue
		}
		out = append(out, binding{name: parts[0], expr: parts[1]})
	}
	return out
}

func (c *Compiler) compileLet(node *ast.Node) {
	parts := node.Cdr
	if parts.IsNil() {
		c.fail(node, "'let' expects (let (bindings...) body...)")
	}
	bindings := parseBindings(parts.Car)
	names := make([]*ast.Node, len(bindings))
	values := make([]*ast.Node, len(bindings))
	for i, b := range bindings {
		if !b.name.IsAtom() || b.name.Tok.TokenType != token.IDENTIFIER {
			c.fail(b.name, "'let' binding name must be an identifier")
		}
		names[i] = b.name
		values[i] = b.expr
	}
	c.compileExpr(letNode(names, values, parts.Cdr.ToSlice()))
}

// compileLetStar desugars to nested immediately-invoked lambdas, one
// per binding, so each value expression can see the bindings before it.
func (c *Compiler) compileLetStar(node *ast.Node) {
	parts := node.Cdr
	if parts.IsNil() {
		c.fail(node, "'let*' expects (let* (bindings...) body...)")
	}
	bindings := parseBindings(parts.Car)
	body := parts.Cdr.ToSlice()
	c.compileExpr(buildLetStar(bindings, body))
}

func buildLetStar(bindings []binding, body []*ast.Node) *ast.Node {
	if len(bindings) == 0 {
		return beginNode(body)
	}
	b := bindings[0]
	inner := buildLetStar(bindings[1:], body)
	return letNode([]*ast.Node{b.name}, []*ast.Node{b.expr}, []*ast.Node{inner})
}

func (c *Compiler) compileLetrec(node *ast.Node) {
	parts := node.Cdr
	if parts.IsNil() {
		c.fail(node, "'letrec' expects (letrec (bindings...) body...)")
	}
	bindings := parseBindings(parts.Car)
	body := parts.Cdr.ToSlice()

	names := make([]*ast.Node, len(bindings))
	values := make([]*ast.Node, len(bindings))
	for i, b := range bindings {
		if !b.name.IsAtom() || b.name.Tok.TokenType != token.IDENTIFIER {
			c.fail(b.name, "'letrec' binding name must be an identifier")
		}
		names[i] = b.name
		values[i] = b.expr
	}
	c.compileExpr(letrecNode(names, values, body))
}

// --- quote -----------------------------------------------------------------

func (c *Compiler) compileQuote(node *ast.Node) {
	parts := node.Cdr
	if !parts.IsList() || !parts.Cdr.IsNil() {
		c.fail(node, "'quote' expects exactly one argument")
	}
	c.emitConstant(astToValue(parts.Car))
}

// astToValue recursively converts quoted AST into the literal Value it
// denotes: atoms become their literal kind (numbers, strings, booleans)
// or an interned symbol string for identifiers/keywords, lists become
// chains of heap pairs, Nil maps to Nil.
func astToValue(node *ast.Node) value.Value {
	switch {
	case node.IsNil():
		return value.Nil
	case node.IsAtom():
		tok := node.Tok
		switch tok.TokenType {
		case token.DECIMAL:
			return value.Number(float64(tok.Literal.(int64)))
		case token.REAL:
			return value.Number(tok.Literal.(float64))
		case token.STRING:
			return value.String(tok.Literal.(string))
		case token.TRUE:
			return value.Bool_(true)
		case token.FALSE:
			return value.Bool_(false)
		case token.SYMBOL:
			return value.String(tok.Literal.(string))
		default:
			return value.String(tok.Lexeme)
		}
	default:
		return value.PairVal(&value.Pair{Car: astToValue(node.Car), Cdr: astToValue(node.Cdr)})
	}
}

// --- builtins --------------------------------------------------------------

func (c *Compiler) compileBuiltin(name string, node *ast.Node) {
	args := node.Cdr.ToSlice()
	switch name {
	case "+":
		c.compileFold(node, args, OP_ADD, value.Number(0))
	case "*":
		c.compileFold(node, args, OP_MUL, value.Number(1))
	case "-":
		c.compileSubOrDiv(node, args, OP_SUB, true)
	case "/":
		c.compileSubOrDiv(node, args, OP_DIV, false)
	case "=":
		c.compileComparison(node, args, OP_EQUAL)
	case "<":
		c.compileComparison(node, args, OP_LESS)
	case ">":
		c.compileComparison(node, args, OP_GREATER)
	case "<=":
		c.compileComparison(node, args, OP_LESS_EQUAL)
	case ">=":
		c.compileComparison(node, args, OP_GREATER_EQUAL)
	case "!=":
		c.compileComparison(node, args, OP_NOT_EQUAL)
	case "mod", "modulo":
		c.compileComparison(node, args, OP_MOD)
	case "display":
		c.compileUnaryOp(node, args, OP_DISPLAY)
	case "newline":
		c.requireArity(node, args, 0)
		c.emit(OP_NEWLINE)
		c.emitConstant(value.Nil)
	case "read":
		c.requireArity(node, args, 0)
		c.emit(OP_READ)
	case "read-line":
		c.requireArity(node, args, 0)
		c.emit(OP_READ_LINE)
	case "cons":
		c.requireArity(node, args, 2)
		c.compileExpr(args[0])
		c.compileExpr(args[1])
		c.emit(OP_CONS)
	case "car":
		c.compileUnaryOp(node, args, OP_CAR)
	case "cdr":
		c.compileUnaryOp(node, args, OP_CDR)
	case "not":
		c.compileUnaryOp(node, args, OP_NOT)
	case "null?":
		c.compileUnaryOp(node, args, OP_IS_NULL)
	case "pair?":
		c.compileUnaryOp(node, args, OP_IS_PAIR)
	case "number?":
		c.compileUnaryOp(node, args, OP_IS_NUMBER)
	case "string?":
		c.compileUnaryOp(node, args, OP_IS_STRING)
	case "procedure?":
		c.compileUnaryOp(node, args, OP_IS_PROCEDURE)
	case "zero?":
		c.requireArity(node, args, 1)
		c.compileExpr(args[0])
		c.emitConstant(value.Number(0))
		c.emit(OP_EQUAL)
	case "eq?", "equal?":
		c.requireArity(node, args, 2)
		c.compileExpr(args[0])
		c.compileExpr(args[1])
		c.emit(OP_EQUAL)
	case "abs":
		c.requireArity(node, args, 1)
		c.compileExpr(synthAbs(args[0]))
	case "max":
		if len(args) == 0 {
			c.fail(node, "'max' expects at least 1 argument")
		}
		c.compileExpr(synthMinMax(args, true))
	case "min":
		if len(args) == 0 {
			c.fail(node, "'min' expects at least 1 argument")
		}
		c.compileExpr(synthMinMax(args, false))
	case "list":
		c.compileExpr(synthList(args))
	case "length":
		c.requireArity(node, args, 1)
		c.compileExpr(synthLength(args[0]))
	case "append":
		c.requireArity(node, args, 2)
		c.compileExpr(synthAppend(args[0], args[1]))
	case "reverse":
		c.requireArity(node, args, 1)
		c.compileExpr(synthReverse(args[0]))
	}
}

func (c *Compiler) requireArity(node *ast.Node, args []*ast.Node, n int) {
	if len(args) != n {
		c.fail(node, "expects exactly %d argument(s), got %d", n, len(args))
	}
}

func (c *Compiler) compileUnaryOp(node *ast.Node, args []*ast.Node, op Opcode) {
	c.requireArity(node, args, 1)
	c.compileExpr(args[0])
	c.emit(op)
}

func (c *Compiler) compileFold(node *ast.Node, args []*ast.Node, op Opcode, identity value.Value) {
	if len(args) == 0 {
		c.emitConstant(identity)
		return
	}
	c.compileExpr(args[0])
	for _, a := range args[1:] {
		c.compileExpr(a)
		c.emit(op)
	}
}

func (c *Compiler) compileSubOrDiv(node *ast.Node, args []*ast.Node, op Opcode, isSub bool) {
	switch {
	case len(args) == 0:
		c.fail(node, "expects at least 1 argument")
	case len(args) == 1:
		if isSub {
			c.emitConstant(value.Number(0))
		} else {
			c.emitConstant(value.Number(1))
		}
		c.compileExpr(args[0])
		c.emit(op)
	default:
		c.compileExpr(args[0])
		for _, a := range args[1:] {
			c.compileExpr(a)
			c.emit(op)
		}
	}
}

func (c *Compiler) compileComparison(node *ast.Node, args []*ast.Node, op Opcode) {
	c.requireArity(node, args, 2)
	c.compileExpr(args[0])
	c.compileExpr(args[1])
	c.emit(op)
}
