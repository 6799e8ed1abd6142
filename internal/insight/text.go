package insight

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// sentence is a span of the analyzed text
type sentence struct {
	Text   string
	Offset int
}

var (
	reSentenceEnd = regexp.MustCompile(`[.!?]+["')\]]*\s+`)
	reLastWord    = regexp.MustCompile(`(\p{L}+)\.$`)
)

var abbreviations = map[string]bool{
	"rs": true, "inc": true, "ltd": true, "co": true, "corp": true, "mr": true,
	"mrs": true, "ms": true, "dr": true, "vs": true, "no": true, "st": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true, "jul": true,
	"aug": true, "sep": true, "sept": true, "oct": true, "nov": true, "dec": true,
}

// splitSentences breaks text into sentences. Blank lines end a paragraph,
// heading lines stand alone and common abbreviations such as "Rs." or
// "Inc." do not end a sentence.
func splitSentences(text string) []sentence {
	var out []sentence
	blockStart, blockEnd := -1, -1
	flush := func() {
		if blockStart >= 0 {
			out = splitBlock(out, text[blockStart:blockEnd], blockStart)
		}
		blockStart = -1
	}

	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		start := offset
		offset += len(line)
		switch {
		case strings.TrimSpace(line) == "":
			flush()
		case headingName(line) != "":
			flush()
			out = appendSentence(out, line, start)
		default:
			if blockStart < 0 {
				blockStart = start
			}
			blockEnd = offset
		}
	}
	flush()
	return out
}

func splitBlock(out []sentence, block string, start int) []sentence {
	cut := 0
	for _, loc := range reSentenceEnd.FindAllStringIndex(block, -1) {
		head := strings.TrimRightFunc(block[cut:loc[1]], unicode.IsSpace)
		if m := reLastWord.FindStringSubmatch(head); m != nil && abbreviations[strings.ToLower(m[1])] {
			continue
		}
		out = appendSentence(out, block[cut:loc[1]], start+cut)
		cut = loc[1]
	}
	return appendSentence(out, block[cut:], start+cut)
}

func appendSentence(out []sentence, s string, offset int) []sentence {
	trimmed := strings.TrimLeftFunc(s, unicode.IsSpace)
	offset += len(s) - len(trimmed)
	trimmed = strings.Join(strings.Fields(trimmed), " ")
	if trimmed == "" {
		return out
	}
	return append(out, sentence{Text: trimmed, Offset: offset})
}

const monthNames = `(Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)`

var (
	reISODate      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	reMonthDayYear = regexp.MustCompile(`\b` + monthNames + `\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	reDayMonthYear = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+` + monthNames + `\.?,?\s+(\d{4})\b`)
	reMonthYear    = regexp.MustCompile(`\b` + monthNames + `\.?,?\s+(\d{4})\b`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// findDate returns the first date mentioned in s, trying the more specific
// layouts first.
func findDate(s string) *time.Time {
	if m := reISODate.FindStringSubmatch(s); m != nil {
		if d, ok := makeDate(m[1], monthNumber(m[2]), m[3]); ok {
			return &d
		}
	}
	if m := reMonthDayYear.FindStringSubmatch(s); m != nil {
		if d, ok := makeDate(m[3], months[strings.ToLower(m[1][:3])], m[2]); ok {
			return &d
		}
	}
	if m := reDayMonthYear.FindStringSubmatch(s); m != nil {
		if d, ok := makeDate(m[3], months[strings.ToLower(m[2][:3])], m[1]); ok {
			return &d
		}
	}
	if m := reMonthYear.FindStringSubmatch(s); m != nil {
		if d, ok := makeDate(m[2], months[strings.ToLower(m[1][:3])], "1"); ok {
			return &d
		}
	}
	return nil
}

func monthNumber(s string) time.Month {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 12 {
		return 0
	}
	return time.Month(n)
}

func makeDate(year string, month time.Month, day string) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil || month == 0 {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, month, d, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow, e.g. February 30 becomes March 2
	if t.Day() != d || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

var knownSections = []string{
	"executive summary", "summary", "overview", "introduction", "highlights",
	"financial highlights", "management discussion and analysis",
	"management's discussion and analysis", "md&a", "business overview",
	"results of operations", "risk factors", "outlook", "guidance",
	"balance sheet", "income statement", "statement of profit and loss",
	"cash flow", "cash flow statement", "notes to financial statements",
	"auditor's report", "independent auditor's report", "corporate governance",
	"dividend", "dividends", "segment information", "conclusion",
}

var (
	reHeadingPrefix = regexp.MustCompile(`^(?:#{1,6}\s*|(?i:item|part|section)\s+[0-9IVX]+[A-Z]?[.:]?\s*|\d+(?:\.\d+)*[.)]?\s+)`)
	reHasLetter     = regexp.MustCompile(`\p{L}`)
)

// headingName returns the cleaned heading title of line, or "" when the
// line does not look like a heading.
func headingName(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || len(line) > 80 {
		return ""
	}
	markdown := strings.HasPrefix(line, "#")
	name := strings.TrimSpace(reHeadingPrefix.ReplaceAllString(line, ""))
	name = strings.TrimSpace(strings.TrimSuffix(name, ":"))
	if name == "" || !reHasLetter.MatchString(name) {
		return ""
	}
	if markdown || slices.Contains(knownSections, strings.ToLower(name)) {
		return name
	}
	if len(strings.Fields(name)) > 8 || strings.ContainsAny(name[len(name)-1:], ".!?,;") {
		return ""
	}
	if strings.ToUpper(name) == name {
		return name
	}
	return ""
}

// Segment splits text into named sections at heading-like lines. Text
// before the first heading is kept as "Preamble". Repeated headings get a
// numeric suffix. A text without headings yields no sections.
func Segment(text string) map[string]string {
	sections := make(map[string]string)
	current := "Preamble"
	var body []string
	seen := false

	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
		if content == "" {
			return
		}
		name := current
		for i := 2; ; i++ {
			if _, taken := sections[name]; !taken {
				break
			}
			name = fmt.Sprintf("%s (%d)", current, i)
		}
		sections[name] = content
	}

	for _, line := range strings.Split(text, "\n") {
		if name := headingName(line); name != "" {
			flush()
			current = name
			seen = true
			continue
		}
		body = append(body, line)
	}
	flush()

	if !seen {
		return map[string]string{}
	}
	return sections
}

var (
	reExchangeTicker = regexp.MustCompile(`\((?:NASDAQ|NYSE|NSE|BSE|AMEX|LSE|TSX|NYSEARCA)\s*:\s*([A-Z][A-Z0-9.\-]{0,9})\)`)
	reCashtag        = regexp.MustCompile(`\$([A-Z]{1,5})\b`)
)

// Tickers returns the unique ticker candidates in text, sorted. Exchange
// prefixed symbols like "(NASDAQ: AAPL)" and cashtags like "$MSFT" count.
func Tickers(text string) []string {
	set := make(map[string]struct{})
	for _, re := range []*regexp.Regexp{reExchangeTicker, reCashtag} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			set[m[1]] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
