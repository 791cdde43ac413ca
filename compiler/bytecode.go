// Package compiler walks the AST produced by package parser and emits
// bytecode for the VM, resolving lexical scope (locals, upvalues,
// globals) and lowering special forms to jump patterns in a single pass.
package compiler

import (
	"fmt"

	"scheme-go/value"
)

// Opcode identifies one VM instruction. Grounded on the opcode table of
// spec.md's §4.3, with OP_ names matching the teacher's
// compiler/code.go naming convention (OP_CONSTANT, OP_ADD, ...).
type Opcode byte

const (
	OP_CONSTANT Opcode = iota
	OP_POP

	OP_ADD
	OP_SUB
	OP_MUL
	OP_DIV
	OP_MOD

	OP_EQUAL
	OP_LESS
	OP_GREATER
	OP_LESS_EQUAL
	OP_GREATER_EQUAL
	OP_NOT_EQUAL

	OP_JUMP
	OP_JUMP_IF_FALSE
	OP_JUMP_IF_TRUE_OR_POP
	OP_JUMP_IF_FALSE_OR_POP

	OP_DEFINE_GLOBAL
	OP_GET_GLOBAL
	OP_SET_GLOBAL

	OP_GET_LOCAL
	OP_SET_LOCAL

	OP_GET_UPVALUE
	OP_SET_UPVALUE
	OP_CLOSE_UPVALUE

	OP_CONS
	OP_CAR
	OP_CDR

	OP_DISPLAY
	OP_NEWLINE
	OP_READ
	OP_READ_LINE

	OP_CLOSURE
	OP_CALL
	OP_RETURN
	OP_HALT

	// OP_NOT, OP_IS_NULL, OP_IS_PAIR, OP_IS_NUMBER, OP_IS_STRING and
	// OP_IS_PROCEDURE back the predicate builtins (not/null?/pair?/
	// number?/string?/procedure?) that spec.md's original distillation
	// dropped; list/length/append/reverse/eq?/equal? need no opcodes of
	// their own, they compile to sequences of existing opcodes
	// (length/reverse/append also use OP_IS_NULL).
	OP_NOT
	OP_IS_NULL
	OP_IS_PAIR
	OP_IS_NUMBER
	OP_IS_STRING
	OP_IS_PROCEDURE
)

// upvalue descriptor pseudo-instructions reuse the Instruction shape:
// Opcode holds 1 for is_local, 0 otherwise, Operand holds the index.
// They are never dispatched by the VM's main switch; OP_CLOSURE's
// handler consumes exactly function.UpvalueCount of them immediately
// following itself.

// OpCodeDefinition names an opcode for disassembly, matching the
// teacher's OpCodeDefinition in compiler/code.go (Name + operand
// description), simplified since every operand here is a single
// uint16 rather than a variable-width byte sequence.
type OpCodeDefinition struct {
	Name       string
	HasOperand bool
}

var definitions = map[Opcode]*OpCodeDefinition{
	OP_CONSTANT:             {"OP_CONSTANT", true},
	OP_POP:                  {"OP_POP", false},
	OP_ADD:                  {"OP_ADD", false},
	OP_SUB:                  {"OP_SUB", false},
	OP_MUL:                  {"OP_MUL", false},
	OP_DIV:                  {"OP_DIV", false},
	OP_MOD:                  {"OP_MOD", false},
	OP_EQUAL:                {"OP_EQUAL", false},
	OP_LESS:                 {"OP_LESS", false},
	OP_GREATER:              {"OP_GREATER", false},
	OP_LESS_EQUAL:           {"OP_LESS_EQUAL", false},
	OP_GREATER_EQUAL:        {"OP_GREATER_EQUAL", false},
	OP_NOT_EQUAL:            {"OP_NOT_EQUAL", false},
	OP_JUMP:                 {"OP_JUMP", true},
	OP_JUMP_IF_FALSE:        {"OP_JUMP_IF_FALSE", true},
	OP_JUMP_IF_TRUE_OR_POP:  {"OP_JUMP_IF_TRUE_OR_POP", true},
	OP_JUMP_IF_FALSE_OR_POP: {"OP_JUMP_IF_FALSE_OR_POP", true},
	OP_DEFINE_GLOBAL:        {"OP_DEFINE_GLOBAL", true},
	OP_GET_GLOBAL:           {"OP_GET_GLOBAL", true},
	OP_SET_GLOBAL:           {"OP_SET_GLOBAL", true},
	OP_GET_LOCAL:            {"OP_GET_LOCAL", true},
	OP_SET_LOCAL:            {"OP_SET_LOCAL", true},
	OP_GET_UPVALUE:          {"OP_GET_UPVALUE", true},
	OP_SET_UPVALUE:          {"OP_SET_UPVALUE", true},
	OP_CLOSE_UPVALUE:        {"OP_CLOSE_UPVALUE", false},
	OP_CONS:                 {"OP_CONS", false},
	OP_CAR:                  {"OP_CAR", false},
	OP_CDR:                  {"OP_CDR", false},
	OP_DISPLAY:              {"OP_DISPLAY", false},
	OP_NEWLINE:              {"OP_NEWLINE", false},
	OP_READ:                 {"OP_READ", false},
	OP_READ_LINE:            {"OP_READ_LINE", false},
	OP_CLOSURE:              {"OP_CLOSURE", true},
	OP_CALL:                 {"OP_CALL", true},
	OP_RETURN:               {"OP_RETURN", false},
	OP_HALT:                 {"OP_HALT", false},
	OP_NOT:                  {"OP_NOT", false},
	OP_IS_NULL:              {"OP_IS_NULL", false},
	OP_IS_PAIR:              {"OP_IS_PAIR", false},
	OP_IS_NUMBER:            {"OP_IS_NUMBER", false},
	OP_IS_STRING:            {"OP_IS_STRING", false},
	OP_IS_PROCEDURE:         {"OP_IS_PROCEDURE", false},
}

// Get looks up an opcode's definition, mirroring the teacher's
// compiler.Get(op).
func Get(op Opcode) (*OpCodeDefinition, error) {
	def, ok := definitions[op]
	if !ok {
		return nil, fmt.Errorf("opcode: %d undefined", op)
	}
	return def, nil
}

// Instruction is `{opcode, operand}` per spec.md §3/§4.3, addressed by
// 0-based index in Bytecode.Instructions — a struct array rather than
// the teacher's byte-packed/BigEndian-encoded Instructions, because
// spec.md's jumps are absolute instruction indices, not byte offsets.
type Instruction struct {
	Opcode  Opcode
	Operand uint16
}

// Bytecode is one compiled chunk: its instruction array and constant
// pool, shared by reference among every closure built from the same
// function.
type Bytecode struct {
	Instructions []Instruction
	Constants    []value.Value
}

// Disassemble renders a full chunk as a human-readable listing, one
// instruction per line, grounded on the teacher's DiassembleBytecode.
func (b *Bytecode) Disassemble(name string) string {
	out := fmt.Sprintf("== %s ==\n", name)
	for ip := range b.Instructions {
		out += b.DisassembleInstruction(ip) + "\n"
	}
	return out
}

// DisassembleInstruction renders the single instruction at ip.
func (b *Bytecode) DisassembleInstruction(ip int) string {
	instr := b.Instructions[ip]
	def, err := Get(instr.Opcode)
	if err != nil {
		return fmt.Sprintf("%04d ERROR %s", ip, err)
	}
	if !def.HasOperand {
		return fmt.Sprintf("%04d %s", ip, def.Name)
	}
	switch instr.Opcode {
	case OP_CONSTANT, OP_DEFINE_GLOBAL, OP_GET_GLOBAL, OP_SET_GLOBAL, OP_CLOSURE:
		var rendered string
		if int(instr.Operand) < len(b.Constants) {
			rendered = value.Print(b.Constants[instr.Operand])
		}
		return fmt.Sprintf("%04d %-24s %4d ; %s", ip, def.Name, instr.Operand, rendered)
	default:
		return fmt.Sprintf("%04d %-24s %4d", ip, def.Name, instr.Operand)
	}
}
