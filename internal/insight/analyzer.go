package insight

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"finsight/internal/extract"
	"finsight/internal/infrastructure"
	"finsight/internal/textproc"
	"finsight/pkg/contracts/domain"
)

// SummarySentences is the length of the extractive summary
const SummarySentences = 3

// minSummaryWords keeps fragments like table cells out of the summary
const minSummaryWords = 4

// Analyzer runs the extraction rules over documents
type Analyzer struct {
	registry *extract.Registry
	logger   *slog.Logger
}

// NewAnalyzer creates an analyzer. The registry is used for file input.
func NewAnalyzer(registry *extract.Registry, logger *slog.Logger) *Analyzer {
	if registry == nil {
		registry = extract.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		registry: registry,
		logger:   infrastructure.WithComponent(logger, "insight"),
	}
}

// AnalyzeFile extracts the text of a supported file and analyzes it.
// Spreadsheets also get previews of their tables.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string, opts Options) (*domain.Analysis, error) {
	texts, err := a.registry.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", path, err)
	}
	result, err := a.Analyze(ctx, strings.Join(texts, "\n\n"), opts)
	if err != nil {
		return nil, err
	}

	tables, err := extract.ReadTables(ctx, path)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to parse tables",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return result, nil
	}
	if len(tables) > 0 {
		result.Tables = PreviewTables(tables)
	}
	return result, nil
}

// Analyze runs the selected entity and event rules over text
func (a *Analyzer) Analyze(ctx context.Context, text string, opts Options) (*domain.Analysis, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	if textproc.LooksLikeMarkup(text) {
		text = textproc.CleanHTMLLike(text)
	}
	sentences := splitSentences(text)

	result := &domain.Analysis{
		Summary:  Summarize(sentences),
		Sections: Segment(text),
		Entities: ExtractEntities(text, opts.Entities, opts.Confidence),
		Events:   DetectEvents(sentences, opts),
		Tickers:  Tickers(text),
	}

	a.logger.InfoContext(ctx, "analysis_completed",
		slog.Int("chars", len(text)),
		slog.Int("sentences", len(sentences)),
		slog.Int("sections", len(result.Sections)),
		slog.Int("entities", countAll(result.Entities)),
		slog.Int("events", countAll(result.Events)),
		slog.Int("tickers", len(result.Tickers)))
	return result, nil
}

// ExtractEntities applies the rules of the requested entity types. Every
// requested type gets a key, mentions under minConfidence are dropped and a
// match starting inside an earlier match of the same type is ignored.
func ExtractEntities(text string, types []string, minConfidence float64) map[string][]domain.EntityMention {
	out := make(map[string][]domain.EntityMention, len(types))
	for _, kind := range types {
		mentions := []domain.EntityMention{}
		end := -1
		for _, loc := range matches(text, entityRules[kind]) {
			if loc.start < end {
				continue
			}
			m, ok := loc.rule.build(loc.groups)
			if !ok || m.Confidence < minConfidence {
				continue
			}
			m.Offset = loc.start
			mentions = append(mentions, m)
			end = loc.end
		}
		out[kind] = mentions
	}
	return out
}

type match struct {
	start, end int
	groups     []string
	rule       entityPattern
}

// matches collects the matches of every pattern ordered by position
func matches(text string, rules []entityPattern) []match {
	var all []match
	for _, rule := range rules {
		for _, idx := range rule.re.FindAllStringSubmatchIndex(text, -1) {
			groups := make([]string, len(idx)/2)
			for i := range groups {
				if idx[2*i] >= 0 {
					groups[i] = text[idx[2*i]:idx[2*i+1]]
				}
			}
			all = append(all, match{start: idx[0], end: idx[1], groups: groups, rule: rule})
		}
	}
	// stable so the earlier pattern wins on equal starts
	sort.SliceStable(all, func(i, j int) bool { return all[i].start < all[j].start })
	return all
}

// DetectEvents reports one mention per sentence and event type
func DetectEvents(sentences []sentence, opts Options) map[string][]domain.EventMention {
	out := make(map[string][]domain.EventMention, len(opts.Events))
	for _, kind := range opts.Events {
		events := []domain.EventMention{}
		for _, s := range sentences {
			conf, ok := score(eventRules[kind], s.Text)
			if !ok || conf < opts.Confidence {
				continue
			}
			date := findDate(s.Text)
			if !opts.inTimeFrame(date) {
				continue
			}
			events = append(events, domain.EventMention{
				Type:       kind,
				Sentence:   s.Text,
				Date:       date,
				Confidence: conf,
			})
		}
		out[kind] = events
	}
	return out
}

// Summarize joins the first complete sentences long enough to carry
// content. Headings, titles and fragments are skipped unless nothing else
// is left.
func Summarize(sentences []sentence) string {
	picked := make([]string, 0, SummarySentences)
	for _, s := range sentences {
		if len(strings.Fields(s.Text)) < minSummaryWords || headingName(s.Text) != "" ||
			!strings.ContainsAny(s.Text[len(s.Text)-1:], ".!?") {
			continue
		}
		picked = append(picked, s.Text)
		if len(picked) == SummarySentences {
			break
		}
	}
	if len(picked) == 0 {
		for i := 0; i < len(sentences) && i < SummarySentences; i++ {
			picked = append(picked, sentences[i].Text)
		}
	}
	return strings.Join(picked, " ")
}

func countAll[T any](m map[string][]T) int {
	n := 0
	for _, v := range m {
		n += len(v)
	}
	return n
}
