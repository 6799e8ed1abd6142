package textproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsProtected(t *testing.T) {
	for _, tok := range []string{"EBITDA", "ebitda", "P/E", "crore", "Million", "₹", "EPS(TTM)"} {
		assert.True(t, IsProtected(tok), tok)
	}
	for _, tok := range []string{"revenue", "company", "", "EPSX"} {
		assert.False(t, IsProtected(tok), tok)
	}
}

func TestIsNumericToken(t *testing.T) {
	tests := []struct {
		tok  string
		want bool
	}{
		{"2023", true},
		{"Q3", true},
		{"12.5", true},
		{"%", true},
		{"USD", true},
		{"$", true},
		{"usd", false},
		{"profit", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsNumericToken(tt.tok), tt.tok)
	}
}

func TestCountFinancialTerms(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"EBITDA and EPS improved", 2},
		{"The P/E ratio fell while revenues grew", 2},
		{"Filed a 10-K and a 10-Q", 2},
		{"profit profit profit", 3},
		{"prophets and epsilon", 0},
		{"", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CountFinancialTerms(tt.text), tt.text)
	}
}

func TestProtectedTokensIsACopy(t *testing.T) {
	tokens := ProtectedTokens()
	tokens[0] = "changed"
	assert.True(t, IsProtected("₹"))
	assert.NotEqual(t, "changed", ProtectedTokens()[0])
}
