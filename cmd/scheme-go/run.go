package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"scheme-go/compiler"
	"scheme-go/lexer"
	"scheme-go/parser"
	"scheme-go/vm"

	"github.com/google/subcommands"
)

// runCmd compiles and executes a single source file through the VM.
type runCmd struct {
	trace bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "Compile and execute a source file" }
func (*runCmd) Usage() string {
	return `run <file>:
  Compile and execute a scheme-go source file.
`
}

func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.trace, "trace", false, "print per-instruction execution trace to stdout")
}

func (r *runCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	machine := vm.New()
	machine.SetTrace(r.trace)
	if err := machine.Run(function); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	return subcommands.ExitSuccess
}
