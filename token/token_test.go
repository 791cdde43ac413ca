package token

import (
	"testing"
)

func TestCreateToken(t *testing.T) {
	tok := CreateToken(LPA, "(", 1, 1)
	if tok.TokenType != LPA || tok.Lexeme != "(" || tok.Line != 1 || tok.Column != 1 {
		t.Errorf("CreateToken() = %+v, want LPA token at 1:1", tok)
	}
}

func TestCreateLiteralToken(t *testing.T) {
	tok := CreateLiteralToken(DECIMAL, int64(42), "42", 3, 10)
	if tok.TokenType != DECIMAL {
		t.Errorf("TokenType = %v, want DECIMAL", tok.TokenType)
	}
	if tok.Literal != int64(42) {
		t.Errorf("Literal = %v, want 42", tok.Literal)
	}
}

func TestKeyWordsLookup(t *testing.T) {
	if typ, ok := KeyWords["lambda"]; !ok || typ != LAMBDA {
		t.Errorf("expected 'lambda' to resolve to LAMBDA keyword")
	}
	if _, ok := KeyWords["not-a-keyword"]; ok {
		t.Errorf("expected 'not-a-keyword' to not be a keyword")
	}
}
