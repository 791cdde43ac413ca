package compiler

import (
	"strings"
	"testing"

	"scheme-go/value"
)

func TestDisassembleRendersConstantOperand(t *testing.T) {
	chunk := &Bytecode{
		Instructions: []Instruction{{Opcode: OP_CONSTANT, Operand: 0}, {Opcode: OP_HALT}},
		Constants:    []value.Value{value.Number(42)},
	}
	out := chunk.Disassemble("test")
	if !strings.Contains(out, "OP_CONSTANT") || !strings.Contains(out, "42") {
		t.Errorf("Disassemble() = %q, want it to mention OP_CONSTANT and 42", out)
	}
}

func TestDisassembleInstructionUnknownOpcode(t *testing.T) {
	chunk := &Bytecode{Instructions: []Instruction{{Opcode: Opcode(255)}}}
	out := chunk.DisassembleInstruction(0)
	if !strings.Contains(out, "ERROR") {
		t.Errorf("DisassembleInstruction() = %q, want an ERROR marker for an unknown opcode", out)
	}
}

func TestGetReturnsDefinitionForKnownOpcode(t *testing.T) {
	def, err := Get(OP_ADD)
	if err != nil {
		t.Fatalf("Get(OP_ADD) returned error: %v", err)
	}
	if def.Name != "OP_ADD" || def.HasOperand {
		t.Errorf("Get(OP_ADD) = %+v, want name OP_ADD with no operand", def)
	}
}
