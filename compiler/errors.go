package compiler

import "fmt"

// CompileError carries the source position of an AST node alongside a
// diagnostic message, matching the teacher's SemanticError/
// DeveloperError pattern but positioned like parser.ParseError since
// every compile error in this system traces back to an AST node.
type CompileError struct {
	Line, Column int
	Message      string
}

func (e CompileError) Error() string {
	return fmt.Sprintf("💥 CompileError: %d:%d: %s", e.Line, e.Column, e.Message)
}

// DeveloperError marks a limit of the bytecode format being exceeded (a
// jump target or a constant-pool index that does not fit in the 16-bit
// operand); reported the same way the teacher reports its own
// internal-bug class of error.
type DeveloperError struct {
	Message string
}

func (e DeveloperError) Error() string {
	return fmt.Sprintf("🤖 DeveloperError: %s", e.Message)
}
