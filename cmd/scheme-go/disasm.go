package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"scheme-go/compiler"
	"scheme-go/lexer"
	"scheme-go/parser"
	"scheme-go/value"

	"github.com/google/subcommands"
)

// disasmCmd compiles a source file and prints its bytecode listing
// without running it, recursing into every nested lambda's own chunk.
type disasmCmd struct {
	outFile string
}

func (*disasmCmd) Name() string     { return "disasm" }
func (*disasmCmd) Synopsis() string { return "Compile a file and print its bytecode" }
func (*disasmCmd) Usage() string {
	return `disasm <file>:
  Compile a scheme-go source file and print its disassembled bytecode.
`
}

func (d *disasmCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&d.outFile, "o", "", "write the disassembly to this file instead of stdout")
}

func (d *disasmCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "💥 file not provided\n")
		return subcommands.ExitUsageError
	}
	filename := args[0]

	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 failed to read file: %v\n", err)
		return subcommands.ExitFailure
	}

	lex := lexer.New(string(data))
	tokens, lexErrs := lex.Scan()
	if len(lexErrs) > 0 {
		for _, e := range lexErrs {
			fmt.Fprintln(os.Stderr, e)
		}
		return subcommands.ExitFailure
	}

	p := parser.New(tokens)
	forms, parseErrs := p.Parse()
	if len(parseErrs) > 0 {
		for _, e := range parseErrs {
			fmt.Fprintln(os.Stderr, e)
		}
		return subcommands.ExitFailure
	}

	function, compileErrs := compiler.New().Compile(forms)
	if len(compileErrs) > 0 {
		for _, e := range compileErrs {
			fmt.Fprintln(os.Stderr, e)
		}
		return subcommands.ExitFailure
	}

	var listing strings.Builder
	disassembleFunction(&listing, function, filepath.Base(filename))

	if d.outFile != "" {
		if err := os.WriteFile(d.outFile, []byte(listing.String()), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "💥 failed to write disassembly: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	fmt.Print(listing.String())
	return subcommands.ExitSuccess
}

// disassembleFunction prints name's chunk, then recurses into every
// function constant in its pool so each nested lambda's body is listed
// after the whole listing of the chunk that creates it.
func disassembleFunction(out *strings.Builder, fn *value.Function, name string) {
	chunk := fn.Chunk.(*compiler.Bytecode)
	out.WriteString(chunk.Disassemble(name))
	for _, c := range chunk.Constants {
		if c.IsFunction() {
			childName := c.Fn.Name
			if childName == "" {
				childName = "<lambda>"
			}
			out.WriteString("\n")
			disassembleFunction(out, c.Fn, childName)
		}
	}
}
