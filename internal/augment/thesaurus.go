package augment

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v2"
)

// Synonyms supplies replacement candidates for a word
type Synonyms interface {
	Candidates(word string) []string
}

// builtinThesaurus covers common financial-news vocabulary
var builtinThesaurus = map[string][]string{
	"increase":    {"rise", "growth", "gain", "climb"},
	"increased":   {"rose", "grew", "climbed", "advanced"},
	"rise":        {"increase", "gain", "climb"},
	"rose":        {"increased", "climbed", "advanced", "gained"},
	"decrease":    {"decline", "drop", "fall", "reduction"},
	"decreased":   {"declined", "dropped", "fell", "slipped"},
	"decline":     {"decrease", "drop", "fall", "downturn"},
	"declined":    {"decreased", "dropped", "fell", "slipped"},
	"fell":        {"dropped", "declined", "slipped"},
	"grew":        {"increased", "expanded", "rose"},
	"growth":      {"expansion", "increase", "rise"},
	"strong":      {"robust", "solid", "healthy"},
	"weak":        {"soft", "sluggish", "poor"},
	"company":     {"firm", "business", "corporation"},
	"firm":        {"company", "business"},
	"shares":      {"stock", "equities"},
	"profit":      {"earnings", "gain", "income"},
	"loss":        {"deficit", "shortfall"},
	"sales":       {"revenue", "turnover"},
	"revenue":     {"sales", "turnover", "income"},
	"expects":     {"anticipates", "forecasts", "projects"},
	"expected":    {"anticipated", "forecast", "projected"},
	"announced":   {"declared", "reported", "disclosed"},
	"reported":    {"posted", "announced", "disclosed"},
	"said":        {"stated", "noted", "reported"},
	"acquire":     {"buy", "purchase", "take over"},
	"acquired":    {"bought", "purchased"},
	"acquisition": {"purchase", "takeover", "buyout"},
	"merger":      {"amalgamation", "combination", "consolidation"},
	"market":      {"marketplace", "exchange"},
	"investors":   {"shareholders", "stakeholders", "backers"},
	"quarter":     {"period", "three months"},
	"outlook":     {"forecast", "guidance", "prospects"},
	"significant": {"substantial", "considerable", "notable"},
	"improve":     {"enhance", "strengthen", "boost"},
	"improved":    {"enhanced", "strengthened", "bettered"},
	"reduce":      {"cut", "lower", "trim"},
	"reduced":     {"cut", "lowered", "trimmed"},
	"higher":      {"greater", "larger", "elevated"},
	"lower":       {"smaller", "reduced", "decreased"},
	"plans":       {"intends", "aims", "proposes"},
	"results":     {"figures", "numbers", "outcome"},
	"demand":      {"appetite", "need", "requirement"},
	"costs":       {"expenses", "expenditure", "outlays"},
	"debt":        {"borrowings", "liabilities", "obligations"},
	"agreement":   {"deal", "contract", "accord"},
	"deal":        {"agreement", "transaction", "contract"},
	"launch":      {"introduce", "unveil", "roll out"},
	"launched":    {"introduced", "unveiled", "debuted"},
	"record":      {"all-time", "unprecedented"},
	"shortfall":   {"deficit", "gap"},
	"volatile":    {"unstable", "erratic", "turbulent"},
}

var reCandidate = regexp.MustCompile(`^[A-Za-z\- ]+$`)

// Thesaurus is a word to candidate-synonym table
type Thesaurus struct {
	entries map[string][]string
}

// NewThesaurus returns a thesaurus seeded with the built-in vocabulary
func NewThesaurus() *Thesaurus {
	t := &Thesaurus{entries: make(map[string][]string, len(builtinThesaurus))}
	for word, candidates := range builtinThesaurus {
		t.Add(word, candidates...)
	}
	return t
}

// LoadThesaurus returns the built-in thesaurus extended with a YAML file
// mapping words to candidate lists. An empty path loads nothing extra.
func LoadThesaurus(path string) (*Thesaurus, error) {
	t := NewThesaurus()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read thesaurus file: %w", err)
	}
	var extra map[string][]string
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("failed to parse thesaurus file: %w", err)
	}
	for word, candidates := range extra {
		t.Add(word, candidates...)
	}
	return t, nil
}

// Add appends candidates for word, ignoring duplicates
func (t *Thesaurus) Add(word string, candidates ...string) {
	key := strings.ToLower(strings.TrimSpace(word))
	if key == "" {
		return
	}
	existing := t.entries[key]
	for _, c := range candidates {
		c = strings.TrimSpace(strings.ReplaceAll(c, "_", " "))
		if c == "" || contains(existing, c) {
			continue
		}
		existing = append(existing, c)
	}
	t.entries[key] = existing
}

// Len returns the number of head words
func (t *Thesaurus) Len() int {
	return len(t.entries)
}

// Candidates returns the usable synonyms of word in sorted order. Only
// alphabetic candidates (hyphens and spaces allowed) of three or more
// characters that differ from word qualify, and single-word candidates
// win over phrases when both exist.
func (t *Thesaurus) Candidates(word string) []string {
	var single, multi []string
	for _, c := range t.entries[strings.ToLower(word)] {
		if len(c) < 3 || !reCandidate.MatchString(c) || strings.EqualFold(c, word) {
			continue
		}
		if strings.Contains(c, " ") {
			multi = append(multi, c)
		} else {
			single = append(single, c)
		}
	}

	pool := single
	if len(pool) == 0 {
		pool = multi
	}
	sort.Strings(pool)
	return pool
}

// matchCase gives candidate the capitalization pattern of word
func matchCase(word, candidate string) string {
	first, _ := utf8.DecodeRuneInString(word)
	switch {
	case len(word) > 1 && strings.ToUpper(word) == word:
		return strings.ToUpper(candidate)
	case unicode.IsUpper(first):
		r, size := utf8.DecodeRuneInString(candidate)
		return string(unicode.ToUpper(r)) + candidate[size:]
	}
	return candidate
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
