package parser_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"scheme-go/lexer"
	"scheme-go/parser"
)

func parseOne(t *testing.T, src string) (string, []error) {
	t.Helper()
	tokens, lexErrs := lexer.New(src).Scan()
	require.Empty(t, lexErrs)
	forms, errs := parser.New(tokens).Parse()
	if len(errs) > 0 || len(forms) == 0 {
		return "", errs
	}
	return forms[0].String(), errs
}

func TestParseRoundTripsSurfaceSyntax(t *testing.T) {
	cases := []string{
		"(+ 1 2)",
		"(define x 5)",
		"(lambda (n) (* n n))",
		"(if (= n 0) 1 0)",
		"()",
		"42",
		"x",
	}
	for _, src := range cases {
		t.Run(src, func(t *testing.T) {
			got, errs := parseOne(t, src)
			require.Empty(t, errs)
			require.Equal(t, src, got)
		})
	}
}

func TestParseQuoteDesugarsToQuoteForm(t *testing.T) {
	got, errs := parseOne(t, "'(1 2 3)")
	require.Empty(t, errs)
	require.Equal(t, "(quote (1 2 3))", got)
}

func TestParseDottedPair(t *testing.T) {
	got, errs := parseOne(t, "(1 . 2)")
	require.Empty(t, errs)
	require.Equal(t, "(1 . 2)", got)
}

func TestParseMultipleTopLevelForms(t *testing.T) {
	tokens, _ := lexer.New("(define x 1) (define y 2)").Scan()
	forms, errs := parser.New(tokens).Parse()
	require.Empty(t, errs)
	require.Len(t, forms, 2)
	require.Equal(t, "(define x 1)", forms[0].String())
	require.Equal(t, "(define y 2)", forms[1].String())
}

func TestParseUnmatchedCloseParenReportsErrorAndRecovers(t *testing.T) {
	tokens, _ := lexer.New(") (define ok 1)").Scan()
	forms, errs := parser.New(tokens).Parse()
	require.NotEmpty(t, errs)
	require.Len(t, forms, 1)
	require.Equal(t, "(define ok 1)", forms[0].String())
}

func TestParseUnterminatedListReportsError(t *testing.T) {
	tokens, _ := lexer.New("(+ 1 2").Scan()
	_, errs := parser.New(tokens).Parse()
	require.NotEmpty(t, errs)
}

func TestParseDotWithoutPrecedingElementReportsError(t *testing.T) {
	tokens, _ := lexer.New("(. 1)").Scan()
	_, errs := parser.New(tokens).Parse()
	require.NotEmpty(t, errs)
}
