package textproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "  Revenue   rose\t\tsharply \n", "Revenue rose sharply"},
		{"nfkc folds compatibility forms", "ｆｉｓｃａｌ ﬁrst", "fiscal first"},
		{"non-breaking space becomes space", "net\u00a0income", "net income"},
		{"drops zero-width and control runes", "EB\u200bITDA\x07 up", "EBITDA up"},
		{"line breaks separate words", "first line\nsecond line", "first line second line"},
		{"empty stays empty", " \t\n ", ""},
		{"keeps currency symbols", "₹ 5 crore", "₹ 5 crore"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestShortHash(t *testing.T) {
	h := ShortHash("Company X reported strong quarterly earnings.")
	assert.Len(t, h, 16)
	assert.Equal(t, h, ShortHash("Company X reported strong quarterly earnings."))
	assert.NotEqual(t, h, ShortHash("Company Y reported strong quarterly earnings."))

	// md5("abc") = 900150983cd24fb0d6963f7d28e17f72
	assert.Equal(t, "900150983cd24fb0", ShortHash("abc"))
}

func TestShortHashUsesRunePrefix(t *testing.T) {
	base := strings.Repeat("₹", HashPrefixRunes)
	assert.Equal(t, ShortHash(base), ShortHash(base+" tail that differs"))
	assert.NotEqual(t, ShortHash(base[:len(base)-len("₹")]), ShortHash(base))
}

func TestCleanHTMLLike(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "Profit  rose 5%", "Profit  rose 5%"},
		{"strips tags and unescapes", "<p>Q3 &amp; Q4</p>\n<b>margin</b>", "Q3 & Q4 margin"},
		{"xml prologue", "<?xml version=\"1.0\"?><doc>EPS up</doc>", "EPS up"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanHTMLLike(tt.in))
		})
	}
}

func TestTokenizeAndDetokenize(t *testing.T) {
	tokens := Tokenize("Revenue grew 12.5%, beating estimates (again)!")
	assert.Equal(t, []string{"Revenue", "grew", "12", ".", "5", "%", ",", "beating", "estimates", "(", "again", ")", "!"}, tokens)

	// punctuation glues left only; the heuristic does not rejoin decimals or brackets
	assert.Equal(t, "Revenue grew 12. 5%, beating estimates( again)!", Detokenize(tokens))
	assert.Equal(t, "Profit rose.", Detokenize([]string{"Profit", "rose", "."}))
	assert.Equal(t, "", Detokenize(nil))
}

func TestTokenizeUnicodeWords(t *testing.T) {
	assert.Equal(t, []string{"Société", "Générale", "₹", "500"}, Tokenize("Société Générale ₹500"))
}

func TestIsPunctAndIsWord(t *testing.T) {
	assert.True(t, IsPunct("."))
	assert.True(t, IsPunct("?!"))
	assert.False(t, IsPunct("a."))
	assert.False(t, IsPunct(""))

	assert.True(t, IsWord("earnings_call"))
	assert.False(t, IsWord("P/E"))
}

func TestLetterRatio(t *testing.T) {
	assert.Equal(t, 1.0, LetterRatio("abc def"))
	assert.Equal(t, 0.5, LetterRatio("ab12"))
	assert.Equal(t, 0.0, LetterRatio("   "))
}
