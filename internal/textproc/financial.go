package textproc

import (
	"regexp"
	"strings"
	"unicode"
)

// protectedTokens are never deleted or replaced by augmentation
var protectedTokens = []string{
	"₹", "$", "INR", "USD", "EUR", "%", "percent", "percentage",
	"EBITDA", "EBIT", "P/E", "PE", "EPS", "EPS(TTM)", "BSE", "NSE",
	"NASDAQ", "NYSE", "SENSEX", "NIFTY", "₹crore", "crore", "lakh",
	"million", "billion", "trillion",
}

var protectedSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(protectedTokens))
	for _, t := range protectedTokens {
		m[strings.ToUpper(t)] = struct{}{}
	}
	return m
}()

// numeric symbols count as numeric tokens even without digits
var numericSymbols = map[string]struct{}{
	"%": {}, "$": {}, "₹": {}, "USD": {}, "INR": {},
}

// ProtectedTokens returns a copy of the protected financial token list
func ProtectedTokens() []string {
	out := make([]string, len(protectedTokens))
	copy(out, protectedTokens)
	return out
}

// IsProtected reports whether tok is a protected financial token (case-insensitive)
func IsProtected(tok string) bool {
	_, ok := protectedSet[strings.ToUpper(strings.TrimSpace(tok))]
	return ok
}

// IsNumericToken reports whether tok contains a digit or is a currency/percent symbol
func IsNumericToken(tok string) bool {
	tok = strings.TrimSpace(tok)
	if _, ok := numericSymbols[tok]; ok {
		return true
	}
	for _, r := range tok {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// financialTerms drive term counting in feature extraction
var financialTerms = []string{
	`EBITDA`, `EBIT`, `EPS`, `P/E`, `PE ratio`, `10-K`, `10-Q`, `PhraseBank`,
	`revenue`, `revenues`, `profit`, `profits`, `loss`, `losses`, `margin`,
	`dividend`, `dividends`, `earnings`, `market cap`, `market capitalization`,
	`IPO`, `merger`, `acquisition`, `shares`, `stock`, `equity`, `debt`,
	`net income`, `operating income`, `cash flow`, `guidance`, `quarter`,
	`fiscal`, `NASDAQ`, `NYSE`, `BSE`, `NSE`, `SENSEX`, `NIFTY`,
}

var reFinancialTerm = func() *regexp.Regexp {
	parts := make([]string, len(financialTerms))
	for i, t := range financialTerms {
		parts[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(` + strings.Join(parts, "|") + `)(?:$|[^\p{L}\p{N}])`)
}()

// CountFinancialTerms counts non-overlapping financial term mentions in s
func CountFinancialTerms(s string) int {
	count := 0
	for len(s) > 0 {
		loc := reFinancialTerm.FindStringSubmatchIndex(s)
		if loc == nil {
			break
		}
		count++
		// resume right after the term so a shared separator can start the next match
		s = s[loc[3]:]
	}
	return count
}
