package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"scheme-go/lexer"
	"scheme-go/token"
)

func tokenTypes(toks []token.Token) []token.TokenType {
	out := make([]token.TokenType, len(toks))
	for i, t := range toks {
		out[i] = t.TokenType
	}
	return out
}

func TestScanPunctuationAndKeywords(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want []token.TokenType
	}{
		{"empty list", "()", []token.TokenType{token.LPA, token.RPA, token.EOF}},
		{"define form", "(define x 5)", []token.TokenType{
			token.LPA, token.DEFINE, token.IDENTIFIER, token.DECIMAL, token.RPA, token.EOF,
		}},
		{"lambda keyword", "(lambda (n) n)", []token.TokenType{
			token.LPA, token.LAMBDA, token.LPA, token.IDENTIFIER, token.RPA, token.IDENTIFIER, token.RPA, token.EOF,
		}},
		{"booleans", "#t #f", []token.TokenType{token.TRUE, token.FALSE, token.EOF}},
		{"identifier with punctuation chars", "zero? eq? list->vector", []token.TokenType{
			token.IDENTIFIER, token.IDENTIFIER, token.IDENTIFIER, token.EOF,
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			l := lexer.New(c.src)
			toks, errs := l.Scan()
			require.Empty(t, errs)
			require.Equal(t, c.want, tokenTypes(toks))
		})
	}
}

func TestScanNumberLiterals(t *testing.T) {
	l := lexer.New("42 -7 3.14 -0.5")
	toks, errs := l.Scan()
	require.Empty(t, errs)
	require.Equal(t, []token.TokenType{token.DECIMAL, token.DECIMAL, token.REAL, token.REAL, token.EOF}, tokenTypes(toks))
	require.Equal(t, int64(42), toks[0].Literal)
	require.Equal(t, int64(-7), toks[1].Literal)
	require.Equal(t, 3.14, toks[2].Literal)
	require.Equal(t, -0.5, toks[3].Literal)
}

func TestScanStringLiteral(t *testing.T) {
	l := lexer.New(`"hello world"`)
	toks, errs := l.Scan()
	require.Empty(t, errs)
	require.Equal(t, token.STRING, toks[0].TokenType)
	require.Equal(t, "hello world", toks[0].Literal)
}

func TestScanUnterminatedStringReportsErrorAndContinues(t *testing.T) {
	l := lexer.New(`"unterminated
(define x 1)`)
	toks, errs := l.Scan()
	require.NotEmpty(t, errs)
	require.True(t, l.HadError())
	// scanning continues past the bad string, so the following form is
	// still tokenized
	require.Contains(t, tokenTypes(toks), token.DEFINE)
}

func TestScanQuoteMark(t *testing.T) {
	l := lexer.New("'(1 2 3)")
	toks, _ := l.Scan()
	require.Equal(t, token.QUOTEMARK, toks[0].TokenType)
}

func TestScanQuotedSymbol(t *testing.T) {
	l := lexer.New("'foo")
	toks, errs := l.Scan()
	require.Empty(t, errs)
	require.Equal(t, token.SYMBOL, toks[0].TokenType)
	require.Equal(t, "'foo", toks[0].Lexeme)
	require.Equal(t, "foo", toks[0].Literal)
}

func TestScanTracksLineAndColumn(t *testing.T) {
	l := lexer.New("(+ 1\n   2)")
	toks, _ := l.Scan()
	var two token.Token
	for _, tk := range toks {
		if tk.TokenType == token.DECIMAL && tk.Lexeme == "2" {
			two = tk
		}
	}
	require.Equal(t, 2, two.Line)
}

func TestScanUnexpectedCharacterReportsAndContinues(t *testing.T) {
	l := lexer.New("(+ 1 @ 2)")
	toks, errs := l.Scan()
	require.NotEmpty(t, errs)
	require.Contains(t, tokenTypes(toks), token.RPA)
}
