// Package augment writes a copy of a dataset in which a random share of
// records gains a perturbed twin: words are dropped or swapped for
// synonyms while numbers and financial symbols stay untouched.
package augment

import (
	"math/rand"
	"time"

	"finsight/internal/textproc"
	"finsight/pkg/contracts/domain"
)

const (
	// LongTextRunes marks texts that only get a light pass
	LongTextRunes = 200000
	// LightPassRunes is the prefix a light pass rewrites
	LightPassRunes = 5000
	// LightReplaceProb and LightDeleteProb apply during a light pass
	LightReplaceProb = 0.05
	LightDeleteProb  = 0.01
)

// Options configures an Augmenter
type Options struct {
	Ratio       float64
	ReplaceProb float64
	DeleteProb  float64
	// Seed 0 seeds from the clock
	Seed     int64
	Synonyms Synonyms
}

// DefaultOptions returns the stock augmentation settings
func DefaultOptions() Options {
	return Options{
		Ratio:       0.05,
		ReplaceProb: 0.10,
		DeleteProb:  0.03,
		Seed:        42,
	}
}

// Augmenter perturbs texts. It is not safe for concurrent use.
type Augmenter struct {
	rng      *rand.Rand
	opts     Options
	synonyms Synonyms
}

// NewAugmenter creates an augmenter. A nil Synonyms uses the built-in thesaurus.
func NewAugmenter(opts Options) *Augmenter {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	synonyms := opts.Synonyms
	if synonyms == nil {
		synonyms = NewThesaurus()
	}
	return &Augmenter{
		rng:      rand.New(rand.NewSource(seed)),
		opts:     opts,
		synonyms: synonyms,
	}
}

// ShouldAugment draws whether the next record gets an augmented twin
func (a *Augmenter) ShouldAugment() bool {
	if a.opts.Ratio <= 0 {
		return false
	}
	return a.rng.Float64() < a.opts.Ratio
}

// AugmentText rewrites text with the configured probabilities
func (a *Augmenter) AugmentText(text string) string {
	return a.augment(text, a.opts.ReplaceProb, a.opts.DeleteProb)
}

// AugmentRecord builds the augmented twin of rec. Very long texts only
// have their leading LightPassRunes rewritten, with lighter probabilities.
func (a *Augmenter) AugmentRecord(rec domain.TextRecord) domain.TextRecord {
	text := rec.Text

	var augmented string
	if runes := []rune(text); len(runes) > LongTextRunes {
		preview := string(runes[:LightPassRunes])
		augmented = a.augment(preview, LightReplaceProb, LightDeleteProb) + string(runes[LightPassRunes:])
	} else {
		augmented = a.AugmentText(text)
	}

	return domain.TextRecord{
		Text:             augmented,
		SourceFile:       rec.SourceFile,
		AugmentationType: domain.AugmentationSynonymReplaceDelete,
	}
}

// Synonym picks a random candidate for word, or returns word unchanged
func (a *Augmenter) Synonym(word string) string {
	if textproc.IsProtected(word) {
		return word
	}
	pool := a.synonyms.Candidates(word)
	if len(pool) == 0 {
		return word
	}
	return matchCase(word, pool[a.rng.Intn(len(pool))])
}

func (a *Augmenter) augment(text string, replaceProb, deleteProb float64) string {
	tokens := textproc.Tokenize(textproc.CleanHTMLLike(text))
	out := make([]string, 0, len(tokens))

	for _, tok := range tokens {
		if textproc.IsNumericToken(tok) || textproc.IsProtected(tok) || textproc.IsPunct(tok) {
			out = append(out, tok)
			continue
		}
		if a.rng.Float64() < deleteProb {
			continue
		}
		if a.rng.Float64() < replaceProb {
			out = append(out, a.Synonym(tok))
		} else {
			out = append(out, tok)
		}
	}
	return textproc.Detokenize(out)
}
