// Package features computes per-record surface statistics and corpus
// token counts for a cleaned dataset.
package features

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"finsight/internal/textproc"
	"finsight/pkg/contracts/domain"
)

// sentence terminators followed by whitespace or the end of text
var reSentenceEnd = regexp.MustCompile(`[.!?]+(?:\s|$)`)

// Compute returns the linguistic features of one text
func Compute(index int, text string) domain.LinguisticFeatures {
	tokens := textproc.Tokenize(text)
	f := domain.LinguisticFeatures{
		Index:              index,
		TokenCount:         len(tokens),
		SentenceCount:      CountSentences(text),
		FinancialTermCount: textproc.CountFinancialTerms(text),
	}

	var letters, numeric int
	types := make(map[string]struct{})
	for _, tok := range tokens {
		if textproc.IsNumericToken(tok) {
			numeric++
		}
		if !textproc.IsWord(tok) {
			continue
		}
		f.WordCount++
		letters += utf8.RuneCountInString(tok)
		types[strings.ToLower(tok)] = struct{}{}
	}

	if f.WordCount > 0 {
		f.AvgWordLength = round(float64(letters) / float64(f.WordCount))
		f.TypeTokenRatio = round(float64(len(types)) / float64(f.WordCount))
	}
	if f.TokenCount > 0 {
		f.NumericRatio = round(float64(numeric) / float64(f.TokenCount))
	}
	return f
}

// CountSentences counts terminated sentences plus a trailing unterminated one
func CountSentences(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	ends := reSentenceEnd.FindAllStringIndex(text, -1)
	count := len(ends)
	if count == 0 || ends[count-1][1] < len(text) {
		count++
	}
	return count
}

func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// TokenCounter accumulates word counts and document frequencies
type TokenCounter struct {
	lowercase bool
	counts    map[string]int
	docFreq   map[string]int
	docs      int
}

// NewTokenCounter creates a counter. With lowercase set, tokens are
// folded before counting.
func NewTokenCounter(lowercase bool) *TokenCounter {
	return &TokenCounter{
		lowercase: lowercase,
		counts:    make(map[string]int),
		docFreq:   make(map[string]int),
	}
}

// Add counts the word tokens of one document
func (c *TokenCounter) Add(text string) {
	c.docs++
	seen := make(map[string]struct{})
	for _, tok := range textproc.Tokenize(text) {
		if !textproc.IsWord(tok) {
			continue
		}
		if c.lowercase {
			tok = strings.ToLower(tok)
		}
		c.counts[tok]++
		if _, ok := seen[tok]; !ok {
			seen[tok] = struct{}{}
			c.docFreq[tok]++
		}
	}
}

// Docs returns the number of documents added
func (c *TokenCounter) Docs() int {
	return c.docs
}

// Vocabulary returns the number of distinct tokens
func (c *TokenCounter) Vocabulary() int {
	return len(c.counts)
}

// Top returns the n most frequent tokens, by count descending then token.
// n <= 0 returns every token.
func (c *TokenCounter) Top(n int) []domain.TokenStat {
	stats := make([]domain.TokenStat, 0, len(c.counts))
	for tok, count := range c.counts {
		stats = append(stats, domain.TokenStat{Token: tok, Count: count, DocFreq: c.docFreq[tok]})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Token < stats[j].Token
	})
	if n > 0 && len(stats) > n {
		stats = stats[:n]
	}
	return stats
}
