package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"scheme-go/compiler"
	"scheme-go/lexer"
	"scheme-go/parser"
	"scheme-go/token"
	"scheme-go/vm"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"
)

// replCmd runs an interactive read-compile-execute loop. One VM is
// created for the whole session so globals defined on one line are
// visible to later lines.
type replCmd struct {
	trace bool
}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "Start an interactive REPL session" }
func (*replCmd) Usage() string {
	return `repl:
  Start an interactive read-compile-execute loop.
`
}

func (r *replCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.trace, "trace", false, "print per-instruction execution trace to stdout")
}

func (r *replCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     historyFilePath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 failed to start readline: %v\n", err)
		return subcommands.ExitFailure
	}
	defer rl.Close()

	fmt.Println("scheme-go interactive REPL. Type `exit` or press Ctrl-D to quit.")

	machine := vm.New()
	machine.SetTrace(r.trace)

	var buffer strings.Builder
	for {
		if buffer.Len() == 0 {
			rl.SetPrompt(">>> ")
		} else {
			rl.SetPrompt("... ")
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			buffer.Reset()
			continue
		}
		if err == io.EOF {
			return subcommands.ExitSuccess
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}

		if strings.TrimSpace(line) == "exit" && buffer.Len() == 0 {
			return subcommands.ExitSuccess
		}

		if buffer.Len() > 0 {
			buffer.WriteString("\n")
		}
		buffer.WriteString(line)
		source := buffer.String()

		lex := lexer.New(source)
		tokens, lexErrs := lex.Scan()
		if len(lexErrs) > 0 {
			for _, e := range lexErrs {
				fmt.Fprintln(os.Stderr, e)
			}
			buffer.Reset()
			continue
		}

		if !parensBalanced(tokens) {
			continue
		}

		p := parser.New(tokens)
		forms, parseErrs := p.Parse()
		if len(parseErrs) > 0 {
			for _, e := range parseErrs {
				fmt.Fprintln(os.Stderr, e)
			}
			buffer.Reset()
			continue
		}

		function, compileErrs := compiler.New().Compile(forms)
		if len(compileErrs) > 0 {
			for _, e := range compileErrs {
				fmt.Fprintln(os.Stderr, e)
			}
			buffer.Reset()
			continue
		}

		if err := machine.Run(function); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		buffer.Reset()
	}
}

// parensBalanced reports whether tokens contains no more `(` than `)`,
// the signal the REPL uses to decide whether to keep reading more
// lines before compiling what's been typed so far.
func parensBalanced(tokens []token.Token) bool {
	depth := 0
	for _, tok := range tokens {
		switch tok.TokenType {
		case token.LPA:
			depth++
		case token.RPA:
			depth--
		}
	}
	return depth <= 0
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scheme-go_history"
	}
	return home + "/.scheme-go_history"
}
