package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"scheme-go/compiler"
	"scheme-go/lexer"
	"scheme-go/parser"
)

func compileSrc(t *testing.T, src string) (*compiler.Bytecode, []error) {
	t.Helper()
	tokens, lexErrs := lexer.New(src).Scan()
	require.Empty(t, lexErrs)
	forms, parseErrs := parser.New(tokens).Parse()
	require.Empty(t, parseErrs)
	fn, errs := compiler.New().Compile(forms)
	return fn.Chunk.(*compiler.Bytecode), errs
}

func opcodes(chunk *compiler.Bytecode) []compiler.Opcode {
	out := make([]compiler.Opcode, len(chunk.Instructions))
	for i, instr := range chunk.Instructions {
		out[i] = instr.Opcode
	}
	return out
}

func TestCompileArithmeticFoldsOverFirstArgument(t *testing.T) {
	chunk, errs := compileSrc(t, "(+ 1 2 3)")
	require.Empty(t, errs)
	require.Equal(t, []compiler.Opcode{
		compiler.OP_CONSTANT, compiler.OP_CONSTANT, compiler.OP_ADD,
		compiler.OP_CONSTANT, compiler.OP_ADD,
		compiler.OP_POP, compiler.OP_HALT,
	}, opcodes(chunk))
}

func TestCompileVariadicSubtractionSingleArgNegates(t *testing.T) {
	chunk, errs := compileSrc(t, "(- 5)")
	require.Empty(t, errs)
	require.Equal(t, []compiler.Opcode{
		compiler.OP_CONSTANT, compiler.OP_CONSTANT, compiler.OP_SUB,
		compiler.OP_POP, compiler.OP_HALT,
	}, opcodes(chunk))
}

func TestCompileIfEmitsConditionalJumps(t *testing.T) {
	chunk, errs := compileSrc(t, "(if #t 1 2)")
	require.Empty(t, errs)
	ops := opcodes(chunk)
	require.Contains(t, ops, compiler.OP_JUMP_IF_FALSE)
	require.Contains(t, ops, compiler.OP_JUMP)
}

func TestCompileDefineAtTopLevelEmitsDefineGlobal(t *testing.T) {
	chunk, errs := compileSrc(t, "(define x 5)")
	require.Empty(t, errs)
	require.Contains(t, opcodes(chunk), compiler.OP_DEFINE_GLOBAL)
}

func TestCompileLambdaEmitsClosureAndReturn(t *testing.T) {
	chunk, errs := compileSrc(t, "(define f (lambda (n) n))")
	require.Empty(t, errs)
	require.Contains(t, opcodes(chunk), compiler.OP_CLOSURE)

	// The lambda's own chunk, reachable through the constant pool, ends
	// in OP_RETURN.
	var found bool
	for _, c := range chunk.Constants {
		if c.IsFunction() {
			inner := c.Fn.Chunk.(*compiler.Bytecode)
			last := inner.Instructions[len(inner.Instructions)-1]
			require.Equal(t, compiler.OP_RETURN, last.Opcode)
			found = true
		}
	}
	require.True(t, found, "expected a compiled lambda constant")
}

func TestCompileMalformedDefineReportsErrorAndContinues(t *testing.T) {
	tokens, _ := lexer.New("(define) (define y 2)").Scan()
	forms, parseErrs := parser.New(tokens).Parse()
	require.Empty(t, parseErrs)

	fn, errs := compiler.New().Compile(forms)
	require.NotEmpty(t, errs, "malformed first define should be reported")

	chunk := fn.Chunk.(*compiler.Bytecode)
	require.Contains(t, opcodes(chunk), compiler.OP_DEFINE_GLOBAL,
		"compiler should continue past the error and still compile the second form")
}

func TestCompileElseOutsideCondIsAnError(t *testing.T) {
	tokens, _ := lexer.New("else").Scan()
	forms, parseErrs := parser.New(tokens).Parse()
	require.Empty(t, parseErrs)
	_, errs := compiler.New().Compile(forms)
	require.NotEmpty(t, errs)
}

func TestCompileQuoteProducesAPairConstant(t *testing.T) {
	chunk, errs := compileSrc(t, "'(1 2)")
	require.Empty(t, errs)
	require.Equal(t, []compiler.Opcode{compiler.OP_CONSTANT, compiler.OP_POP, compiler.OP_HALT}, opcodes(chunk))
	require.True(t, chunk.Constants[0].IsPair())
}
