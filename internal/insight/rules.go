package insight

import (
	"regexp"
	"strconv"
	"strings"

	"finsight/pkg/contracts/domain"
)

const (
	number   = `(-?\d{1,3}(?:,\d{3})+(?:\.\d+)?|-?\d+(?:\.\d+)?)`
	currency = `([$\x{20AC}\x{00A3}\x{20B9}]|USD|INR|EUR|GBP|Rs\.?)?`
	scale    = `(trillion|billion|million|crore|lakh|tn|bn|mn|[tbmk])?`
	percent  = `(%|\s?percent)`
)

// entityPattern turns one regexp match into a mention. Submatch strings are
// passed in order with m[0] being the whole match.
type entityPattern struct {
	re    *regexp.Regexp
	build func(m []string) (domain.EntityMention, bool)
}

var entityRules = map[string][]entityPattern{
	EntityMarketCap: {{
		re: regexp.MustCompile(`(?i)\bmarket\s+cap(?:itali[sz]ation)?\b[^.\d$\x{20AC}\x{00A3}\x{20B9}]{0,30}?` +
			currency + `\s*` + number + `\s*` + scale + `\b`),
		build: func(m []string) (domain.EntityMention, bool) {
			v, ok := parseNumber(m[2])
			if !ok {
				return domain.EntityMention{}, false
			}
			unit := strings.ToLower(m[3])
			conf := 0.7
			if unit != "" || m[1] != "" {
				conf = 0.9
			}
			return mention(EntityMarketCap, m[0], &v, joinUnit(m[1], unit), conf), true
		},
	}},
	EntityEPS: {{
		re: regexp.MustCompile(`(?i)\b(?:EPS|earnings\s+per\s+share)\b[^.\d$\x{20AC}\x{00A3}\x{20B9}]{0,30}?` +
			currency + `\s*` + number),
		build: func(m []string) (domain.EntityMention, bool) {
			v, ok := parseNumber(m[2])
			if !ok {
				return domain.EntityMention{}, false
			}
			return mention(EntityEPS, m[0], &v, m[1], 0.9), true
		},
	}},
	EntityRevenueGrowth: {
		{
			re: regexp.MustCompile(`(?i)\b(?:revenues?|sales|turnover)\b[^.%]{0,40}?\b(grew|rose|increased|jumped|climbed|up|declined|fell|decreased|dropped|down)\b[^.%\d]{0,20}` +
				number + percent),
			build: func(m []string) (domain.EntityMention, bool) {
				v, ok := parseNumber(m[2])
				if !ok {
					return domain.EntityMention{}, false
				}
				if isDecline(m[1]) && v > 0 {
					v = -v
				}
				return mention(EntityRevenueGrowth, m[0], &v, "%", 0.85), true
			},
		},
		{
			re: regexp.MustCompile(`(?i)\brevenue\s+growth\b[^.%\d]{0,20}` + number + percent),
			build: func(m []string) (domain.EntityMention, bool) {
				v, ok := parseNumber(m[1])
				if !ok {
					return domain.EntityMention{}, false
				}
				return mention(EntityRevenueGrowth, m[0], &v, "%", 0.85), true
			},
		},
	},
	EntityStockPriceTrend: {{
		re: regexp.MustCompile(`(?i)\b(?:stock|shares?|share\s+price|stock\s+price)\b[^.]{0,30}?\b(rose|gained|jumped|surged|climbed|rallied|fell|lost|plunged|dropped|declined|slipped|tumbled)\b(?:[^.%\d]{0,15}` +
			number + percent + `)?`),
		build: func(m []string) (domain.EntityMention, bool) {
			if m[2] == "" {
				return mention(EntityStockPriceTrend, m[0], nil, "", 0.6), true
			}
			v, ok := parseNumber(m[2])
			if !ok {
				return domain.EntityMention{}, false
			}
			if isDecline(m[1]) && v > 0 {
				v = -v
			}
			return mention(EntityStockPriceTrend, m[0], &v, "%", 0.8), true
		},
	}},
	EntityDividendYield: {{
		re: regexp.MustCompile(`(?i)\bdividend\s+yield\b[^.%\d]{0,25}` + number + percent),
		build: func(m []string) (domain.EntityMention, bool) {
			v, ok := parseNumber(m[1])
			if !ok {
				return domain.EntityMention{}, false
			}
			return mention(EntityDividendYield, m[0], &v, "%", 0.9), true
		},
	}},
	EntityPERatio: {{
		re: regexp.MustCompile(`(?i)(?:\bP/E|\bPE|\bprice[\s-]to[\s-]earnings)(?:\s+ratio)?\b[^.\d]{0,20}` + number + `\s*(x|times)?`),
		build: func(m []string) (domain.EntityMention, bool) {
			v, ok := parseNumber(m[1])
			if !ok {
				return domain.EntityMention{}, false
			}
			return mention(EntityPERatio, m[0], &v, "x", 0.85), true
		},
	}},
}

// eventPattern assigns a confidence to a sentence mentioning an event
type eventPattern struct {
	re         *regexp.Regexp
	confidence float64
	// boost applies when the sentence also matches this expression
	boost           *regexp.Regexp
	boostConfidence float64
}

var reAmount = regexp.MustCompile(`(?i)(?:[$\x{20AC}\x{00A3}\x{20B9}]|USD|INR|EUR|GBP|Rs\.?)\s*\d|\bper\s+share\b`)

var eventRules = map[string][]eventPattern{
	EventIPO: {
		{re: regexp.MustCompile(`(?i)\b(?:IPO|initial\s+public\s+offering)s?\b`), confidence: 0.9},
		{re: regexp.MustCompile(`(?i)\b(?:go(?:es|ing)?|went)\s+public\b`), confidence: 0.6},
	},
	EventMA: {
		{re: regexp.MustCompile(`(?i)\b(?:mergers?|merge[sd]?|merging|acquisitions?|acquire[sd]?|acquiring|takeover|buyout)\b`), confidence: 0.85},
	},
	EventEarningsCall: {
		{re: regexp.MustCompile(`(?i)\b(?:earnings\s+(?:call|conference|webcast)|conference\s+call)s?\b`), confidence: 0.8},
	},
	EventDividend: {
		{re: regexp.MustCompile(`(?i)\bdividends?\b`), confidence: 0.75, boost: reAmount, boostConfidence: 0.9},
	},
}

// score returns the best confidence of the rules matching sentence
func score(rules []eventPattern, sentence string) (float64, bool) {
	best, found := 0.0, false
	for _, r := range rules {
		if !r.re.MatchString(sentence) {
			continue
		}
		c := r.confidence
		if r.boost != nil && r.boost.MatchString(sentence) {
			c = r.boostConfidence
		}
		if c > best {
			best = c
		}
		found = true
	}
	return best, found
}

func mention(kind, raw string, value *float64, unit string, conf float64) domain.EntityMention {
	return domain.EntityMention{
		Type:       kind,
		Raw:        strings.TrimSpace(raw),
		Value:      value,
		Unit:       unit,
		Confidence: conf,
	}
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return v, err == nil
}

func isDecline(verb string) bool {
	switch strings.ToLower(verb) {
	case "declined", "fell", "decreased", "dropped", "down", "lost", "plunged", "slipped", "tumbled":
		return true
	}
	return false
}

func joinUnit(cur, unit string) string {
	cur = strings.TrimSuffix(cur, ".")
	switch {
	case cur == "":
		return unit
	case unit == "":
		return cur
	}
	return cur + " " + unit
}
