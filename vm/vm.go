package vm

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"scheme-go/compiler"
	"scheme-go/value"
)

// framesMax bounds the call-frame stack; spec.md §4.5 suggests 64 and
// requires deeper recursion to be reported as a runtime error rather
// than overflowing the Go stack.
const framesMax = 64

// frame is one call-frame entry: the running closure, where to resume
// in the caller on RETURN, and the value-stack slot the callee's own
// locals are indexed relative to. Grounded on spec.md §3's "Call frame"
// data model.
type frame struct {
	closure     *value.Closure
	returnIP    int
	returnChunk *compiler.Bytecode
	baseSlot    int
}

// VM is a stack based virtual-machine. It is the runtime environment
// where compiled bytecode gets executed: a fetch-decode-execute loop
// over (chunk, ip), a value stack, a call-frame stack, an open-upvalues
// list, and a persistent globals table.
//
// Grounded on the teacher's vm.VM (stack + ip + debug fields, `Run`
// entry point), generalized from the teacher's single-instruction
// OP_CONSTANT/OP_END loop to the full opcode set and call-frame model
// spec.md §4.5 requires.
type VM struct {
	stack        Stack
	frames       [framesMax]frame
	frameCount   int
	openUpvalues *value.Upvalue

	globals *value.Table

	chunk *compiler.Bytecode
	ip    int

	debug bool

	out io.Writer
	in  *bufio.Reader
}

// New creates a VM with an empty globals table, stdout for DISPLAY/
// NEWLINE, and stdin for READ/READ_LINE. A single VM is meant to be
// reused across successive Run calls the way the teacher's REPL reuses
// one `vm.New()` across lines, so that `globals` persists.
func New() *VM {
	return &VM{
		globals: value.NewTable(),
		out:     os.Stdout,
		in:      bufio.NewReader(os.Stdin),
	}
}

// SetOutput redirects DISPLAY/NEWLINE output, primarily for tests.
func (vm *VM) SetOutput(w io.Writer) { vm.out = w }

// SetInput redirects READ/READ_LINE input, primarily for tests.
func (vm *VM) SetInput(r io.Reader) { vm.in = bufio.NewReader(r) }

// SetTrace enables the optional execution trace spec.md §4.5 describes:
// before each instruction, the current stack contents and the
// disassembled instruction are printed.
func (vm *VM) SetTrace(trace bool) { vm.debug = trace }

// Run executes one compiled top-level function to completion, called
// with zero arguments exactly as a `(lambda () ...)` would be. The
// value stack and frame stack are reset at the start of each Run so
// successive REPL lines don't leak stack slots into each other, but
// globals persist on the VM, matching the teacher's reused-vm REPL loop.
func (vm *VM) Run(function *value.Function) error {
	vm.stack = Stack{}
	vm.frameCount = 0
	vm.openUpvalues = nil

	closure := &value.Closure{Function: function}
	if err := vm.stack.Push(value.ClosureVal(closure)); err != nil {
		return err
	}
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	_, err := vm.run()
	return err
}

func (vm *VM) runtimeError(format string, args ...any) error {
	return RuntimeError{InstructionIndex: vm.ip, Message: fmt.Sprintf(format, args...)}
}

func (vm *VM) currentFrame() *frame { return &vm.frames[vm.frameCount-1] }

// call pushes a new frame for closure, validating its arity against
// argc exactly as spec.md §4.5's CALL semantics requires (no optional
// or rest parameters).
func (vm *VM) call(closure *value.Closure, argc int) error {
	if closure.Function.Arity != argc {
		return vm.runtimeError("procedure %s expects %d argument(s), got %d", describeFunction(closure.Function), closure.Function.Arity, argc)
	}
	if vm.frameCount >= framesMax {
		return vm.runtimeError("frame overflow: too much recursion")
	}
	chunk, ok := closure.Function.Chunk.(*compiler.Bytecode)
	if !ok {
		return vm.runtimeError("internal: function %s has no compiled chunk", describeFunction(closure.Function))
	}
	vm.frames[vm.frameCount] = frame{
		closure:     closure,
		returnIP:    vm.ip,
		returnChunk: vm.chunk,
		baseSlot:    vm.stack.Len() - argc - 1,
	}
	vm.frameCount++
	vm.chunk = chunk
	vm.ip = 0
	return nil
}

// callValue dispatches a general CALL: the callee must be a closure
// (functions are only ever reachable wrapped in a closure at runtime).
func (vm *VM) callValue(callee value.Value, argc int) error {
	if !callee.IsClosure() {
		return vm.runtimeError("cannot call non-procedure value %s", value.Print(callee))
	}
	return vm.call(callee.Clo, argc)
}

func describeFunction(fn *value.Function) string {
	if fn.Name == "" {
		return "anonymous"
	}
	return fn.Name
}

// run is the fetch-decode-execute loop. It returns once OP_HALT is
// reached or the outermost frame (the one Run itself pushed) returns,
// or a runtime error aborts
// execution, per spec.md §4.5 and §7's failure policy: execution stops
// and no further side effects occur.
func (vm *VM) run() (value.Value, error) {
	for {
		if vm.debug {
			vm.trace()
		}
		if vm.ip >= len(vm.chunk.Instructions) {
			return value.Nil, vm.runtimeError("instruction pointer ran past the end of the chunk")
		}
		instr := vm.chunk.Instructions[vm.ip]
		vm.ip++

		switch instr.Opcode {
		case compiler.OP_CONSTANT:
			if err := vm.stack.Push(vm.chunk.Constants[instr.Operand]); err != nil {
				return value.Nil, err
			}

		case compiler.OP_POP:
			vm.stack.Pop()

		case compiler.OP_ADD:
			if err := vm.binaryNumeric(func(a, b float64) (float64, error) { return a + b, nil }); err != nil {
				return value.Nil, err
			}
		case compiler.OP_SUB:
			if err := vm.binaryNumeric(func(a, b float64) (float64, error) { return a - b, nil }); err != nil {
				return value.Nil, err
			}
		case compiler.OP_MUL:
			if err := vm.binaryNumeric(func(a, b float64) (float64, error) { return a * b, nil }); err != nil {
				return value.Nil, err
			}
		case compiler.OP_DIV:
			if err := vm.binaryNumeric(func(a, b float64) (float64, error) {
				if b == 0 {
					return 0, vm.runtimeError("division by zero")
				}
				return a / b, nil
			}); err != nil {
				return value.Nil, err
			}
		case compiler.OP_MOD:
			if err := vm.binaryNumeric(func(a, b float64) (float64, error) {
				if b == 0 {
					return 0, vm.runtimeError("division by zero")
				}
				return math.Mod(a, b), nil
			}); err != nil {
				return value.Nil, err
			}

		case compiler.OP_EQUAL:
			b, _ := vm.stack.Pop()
			a, _ := vm.stack.Pop()
			if err := vm.stack.Push(value.Bool_(value.Equal(a, b))); err != nil {
				return value.Nil, err
			}
		case compiler.OP_NOT_EQUAL:
			b, _ := vm.stack.Pop()
			a, _ := vm.stack.Pop()
			if err := vm.stack.Push(value.Bool_(!value.Equal(a, b))); err != nil {
				return value.Nil, err
			}
		case compiler.OP_LESS:
			if err := vm.comparison(func(a, b float64) bool { return a < b }); err != nil {
				return value.Nil, err
			}
		case compiler.OP_GREATER:
			if err := vm.comparison(func(a, b float64) bool { return a > b }); err != nil {
				return value.Nil, err
			}
		case compiler.OP_LESS_EQUAL:
			if err := vm.comparison(func(a, b float64) bool { return a <= b }); err != nil {
				return value.Nil, err
			}
		case compiler.OP_GREATER_EQUAL:
			if err := vm.comparison(func(a, b float64) bool { return a >= b }); err != nil {
				return value.Nil, err
			}

		case compiler.OP_JUMP:
			vm.ip = int(instr.Operand)
		case compiler.OP_JUMP_IF_FALSE:
			v, _ := vm.stack.Pop()
			if !v.Truthy() {
				vm.ip = int(instr.Operand)
			}
		case compiler.OP_JUMP_IF_TRUE_OR_POP:
			v, _ := vm.stack.Peek()
			if v.Truthy() {
				vm.ip = int(instr.Operand)
			} else {
				vm.stack.Pop()
			}
		case compiler.OP_JUMP_IF_FALSE_OR_POP:
			v, _ := vm.stack.Peek()
			if !v.Truthy() {
				vm.ip = int(instr.Operand)
			} else {
				vm.stack.Pop()
			}

		case compiler.OP_DEFINE_GLOBAL:
			name := vm.chunk.Constants[instr.Operand].Str
			v, _ := vm.stack.Pop()
			vm.globals.Set(name, v)
		case compiler.OP_GET_GLOBAL:
			name := vm.chunk.Constants[instr.Operand].Str
			v, ok := vm.globals.Get(name)
			if !ok {
				return value.Nil, vm.runtimeError("undefined variable %q", name)
			}
			if err := vm.stack.Push(v); err != nil {
				return value.Nil, err
			}
		case compiler.OP_SET_GLOBAL:
			name := vm.chunk.Constants[instr.Operand].Str
			if !vm.globals.Has(name) {
				return value.Nil, vm.runtimeError("cannot set! undefined variable %q", name)
			}
			v, _ := vm.stack.Pop()
			vm.globals.Set(name, v)

		case compiler.OP_GET_LOCAL:
			f := vm.currentFrame()
			if err := vm.stack.Push(vm.stack.Get(f.baseSlot + int(instr.Operand))); err != nil {
				return value.Nil, err
			}
		case compiler.OP_SET_LOCAL:
			f := vm.currentFrame()
			v, _ := vm.stack.Pop()
			vm.stack.Set(f.baseSlot+int(instr.Operand), v)

		case compiler.OP_GET_UPVALUE:
			f := vm.currentFrame()
			if err := vm.stack.Push(f.closure.Upvalues[instr.Operand].Get()); err != nil {
				return value.Nil, err
			}
		case compiler.OP_SET_UPVALUE:
			f := vm.currentFrame()
			v, _ := vm.stack.Pop()
			f.closure.Upvalues[instr.Operand].Set(v)
		case compiler.OP_CLOSE_UPVALUE:
			vm.closeUpvalues(vm.stack.Len() - 1)
			vm.stack.Pop()

		case compiler.OP_CONS:
			cdr, _ := vm.stack.Pop()
			car, _ := vm.stack.Pop()
			if err := vm.stack.Push(value.PairVal(&value.Pair{Car: car, Cdr: cdr})); err != nil {
				return value.Nil, err
			}
		case compiler.OP_CAR:
			v, _ := vm.stack.Pop()
			if !v.IsPair() {
				return value.Nil, vm.runtimeError("car: not a pair: %s", value.Print(v))
			}
			if err := vm.stack.Push(v.Pair.Car); err != nil {
				return value.Nil, err
			}
		case compiler.OP_CDR:
			v, _ := vm.stack.Pop()
			if !v.IsPair() {
				return value.Nil, vm.runtimeError("cdr: not a pair: %s", value.Print(v))
			}
			if err := vm.stack.Push(v.Pair.Cdr); err != nil {
				return value.Nil, err
			}

		case compiler.OP_DISPLAY:
			v, _ := vm.stack.Pop()
			fmt.Fprint(vm.out, value.Print(v))
			if err := vm.stack.Push(value.Nil); err != nil {
				return value.Nil, err
			}
		case compiler.OP_NEWLINE:
			fmt.Fprint(vm.out, "\n")
			if err := vm.stack.Push(value.Nil); err != nil {
				return value.Nil, err
			}
		case compiler.OP_READ:
			v, err := vm.readNumber()
			if err != nil {
				return value.Nil, err
			}
			if err := vm.stack.Push(v); err != nil {
				return value.Nil, err
			}
		case compiler.OP_READ_LINE:
			line, err := vm.in.ReadString('\n')
			if err != nil && err != io.EOF {
				return value.Nil, vm.runtimeError("read-line: %s", err)
			}
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			if err := vm.stack.Push(value.String(line)); err != nil {
				return value.Nil, err
			}

		case compiler.OP_CLOSURE:
			fn := vm.chunk.Constants[instr.Operand].Fn
			closure := &value.Closure{Function: fn, Upvalues: make([]*value.Upvalue, fn.UpvalueCount)}
			f := vm.currentFrame()
			for i := 0; i < fn.UpvalueCount; i++ {
				desc := vm.chunk.Instructions[vm.ip]
				vm.ip++
				isLocal := desc.Opcode == 1
				index := int(desc.Operand)
				if isLocal {
					closure.Upvalues[i] = vm.captureUpvalue(f.baseSlot + index)
				} else {
					closure.Upvalues[i] = f.closure.Upvalues[index]
				}
			}
			if err := vm.stack.Push(value.ClosureVal(closure)); err != nil {
				return value.Nil, err
			}

		case compiler.OP_CALL:
			argc := int(instr.Operand)
			callee := vm.stack.PeekN(argc)
			if err := vm.callValue(callee, argc); err != nil {
				return value.Nil, err
			}

		case compiler.OP_RETURN:
			result, _ := vm.stack.Pop()
			f := vm.currentFrame()
			vm.closeUpvalues(f.baseSlot)
			vm.stack.Truncate(f.baseSlot)
			vm.frameCount--
			if vm.frameCount == 0 {
				return result, nil
			}
			vm.ip = f.returnIP
			vm.chunk = f.returnChunk
			if err := vm.stack.Push(result); err != nil {
				return value.Nil, err
			}

		case compiler.OP_HALT:
			v, _ := vm.stack.Peek()
			return v, nil

		case compiler.OP_NOT:
			v, _ := vm.stack.Pop()
			if err := vm.stack.Push(value.Bool_(!v.Truthy())); err != nil {
				return value.Nil, err
			}
		case compiler.OP_IS_NULL:
			v, _ := vm.stack.Pop()
			if err := vm.stack.Push(value.Bool_(v.IsNil())); err != nil {
				return value.Nil, err
			}
		case compiler.OP_IS_PAIR:
			v, _ := vm.stack.Pop()
			if err := vm.stack.Push(value.Bool_(v.IsPair())); err != nil {
				return value.Nil, err
			}
		case compiler.OP_IS_NUMBER:
			v, _ := vm.stack.Pop()
			if err := vm.stack.Push(value.Bool_(v.IsNumber())); err != nil {
				return value.Nil, err
			}
		case compiler.OP_IS_STRING:
			v, _ := vm.stack.Pop()
			if err := vm.stack.Push(value.Bool_(v.IsString())); err != nil {
				return value.Nil, err
			}
		case compiler.OP_IS_PROCEDURE:
			v, _ := vm.stack.Pop()
			if err := vm.stack.Push(value.Bool_(v.IsCallable())); err != nil {
				return value.Nil, err
			}

		default:
			return value.Nil, vm.runtimeError("unknown opcode %v", instr.Opcode)
		}
	}
}

func (vm *VM) binaryNumeric(op func(a, b float64) (float64, error)) error {
	b, _ := vm.stack.Pop()
	a, _ := vm.stack.Pop()
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("arithmetic on non-number: %s, %s", value.Print(a), value.Print(b))
	}
	r, err := op(a.Number, b.Number)
	if err != nil {
		return err
	}
	return vm.stack.Push(value.Number(r))
}

func (vm *VM) comparison(op func(a, b float64) bool) error {
	b, _ := vm.stack.Pop()
	a, _ := vm.stack.Pop()
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("comparison on non-number: %s, %s", value.Print(a), value.Print(b))
	}
	return vm.stack.Push(value.Bool_(op(a.Number, b.Number)))
}

func (vm *VM) readNumber() (value.Value, error) {
	line, err := vm.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return value.Nil, vm.runtimeError("read: %s", err)
	}
	line = strings.TrimSpace(line)
	n, perr := strconv.ParseFloat(line, 64)
	if perr != nil {
		return value.Nil, vm.runtimeError("read: %q is not a number", line)
	}
	return value.Number(n), nil
}

// captureUpvalue finds or creates an open upvalue pointing at the given
// stack slot, inserting into the open-upvalues list in descending-slot
// order so the list can be shared and closed in one linear pass,
// exactly per spec.md §4.5's capture_upvalue.
func (vm *VM) captureUpvalue(slot int) *value.Upvalue {
	var prev *value.Upvalue
	cur := vm.openUpvalues
	for cur != nil && cur.Slot > slot {
		prev = cur
		cur = cur.Next
	}
	if cur != nil && cur.Slot == slot {
		return cur
	}
	created := &value.Upvalue{Location: vm.stack.SlotRef(slot), Slot: slot, Next: cur}
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue whose slot is at or above
// threshold, per spec.md §4.5's close_upvalues.
func (vm *VM) closeUpvalues(threshold int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= threshold {
		vm.openUpvalues.Close()
		vm.openUpvalues = vm.openUpvalues.Next
	}
}

// trace prints the value stack and the about-to-execute instruction,
// the optional observability spec.md §4.5 describes for trace_execution.
func (vm *VM) trace() {
	fmt.Fprint(os.Stdout, "          ")
	for i := 0; i < vm.stack.Len(); i++ {
		fmt.Fprintf(os.Stdout, "[ %s ]", value.Print(vm.stack.Get(i)))
	}
	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, vm.chunk.DisassembleInstruction(vm.ip))
}
