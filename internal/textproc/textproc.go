// Package textproc holds the text primitives shared by every pipeline stage:
// normalization, dedup hashing, tokenization and financial token protection.
package textproc

import (
	"crypto/md5"
	"encoding/hex"
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// HashPrefixRunes is how much of a text participates in the dedup hash
const HashPrefixRunes = 400

var (
	reTag        = regexp.MustCompile(`<[^>]+>`)
	reWhitespace = regexp.MustCompile(`\s+`)
	reToken      = regexp.MustCompile(`[\p{L}\p{N}\p{M}_]+|[^\p{L}\p{N}\p{M}_\s\p{Z}]`)
)

// NormalizeText applies NFKC, drops non-printable runes, collapses runs of
// whitespace to a single space and trims the result.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case r == utf8.RuneError || !unicode.IsPrint(r):
			continue
		default:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ShortHash returns the dedup key of a text: the first 16 hex digits of the
// MD5 of its first HashPrefixRunes runes.
func ShortHash(s string) string {
	prefix := s
	n := 0
	for i := range s {
		if n == HashPrefixRunes {
			prefix = s[:i]
			break
		}
		n++
	}
	sum := md5.Sum([]byte(prefix))
	return hex.EncodeToString(sum[:])[:16]
}

// LooksLikeMarkup reports whether s is an XML document or contains any tag
func LooksLikeMarkup(s string) bool {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "<?xml") {
		return true
	}
	return reTag.MatchString(s)
}

// CleanHTMLLike strips tags and unescapes entities when s looks like markup.
// Plain text is returned unchanged.
func CleanHTMLLike(s string) string {
	if !LooksLikeMarkup(s) {
		return s
	}
	cleaned := reTag.ReplaceAllString(s, " ")
	cleaned = html.UnescapeString(cleaned)
	cleaned = reWhitespace.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// Tokenize splits s into word tokens and single punctuation tokens
func Tokenize(s string) []string {
	return reToken.FindAllString(s, -1)
}

// Detokenize joins tokens with single spaces, attaching punctuation-only
// tokens to the preceding token.
func Detokenize(tokens []string) string {
	var b strings.Builder
	for _, tok := range tokens {
		if IsPunct(tok) {
			out := strings.TrimRight(b.String(), " ")
			b.Reset()
			b.WriteString(out)
		}
		b.WriteString(tok)
		b.WriteByte(' ')
	}
	return strings.TrimSpace(b.String())
}

// IsPunct reports whether tok is non-empty and holds no word or space runes
func IsPunct(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if isWordRune(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// IsWord reports whether every rune of tok is a word rune
func IsWord(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if !isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r)
}

// LetterRatio is the share of letters among the non-space runes of s
func LetterRatio(s string) float64 {
	letters, total := 0, 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(letters) / float64(total)
}
