package ner

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"finsight/internal/dataset"
	"finsight/pkg/contracts/domain"
)

// Cleaned is a validated record ready for splitting
type Cleaned struct {
	domain.NERRecord
	HasEntity bool `json:"-"`
}

// rawAnnotated keeps token and label values untyped so that non-string
// entries can be tolerated rather than failing the whole line
type rawAnnotated struct {
	Tokens []any `json:"tokens"`
	Labels []any `json:"labels"`
}

// Clean validates a typed annotated record
func (l *Labels) Clean(rec domain.AnnotatedRecord) (Cleaned, bool) {
	tokens := make([]any, len(rec.Tokens))
	for i, t := range rec.Tokens {
		tokens[i] = t
	}
	labels := make([]any, len(rec.Labels))
	for i, lab := range rec.Labels {
		labels[i] = lab
	}
	return l.clean(tokens, labels)
}

// clean drops non-string and blank tokens, maps non-string or unknown
// labels to O and rejects records with no tokens left. Tokens and labels
// must be non-empty and of equal length.
func (l *Labels) clean(tokens, labels []any) (Cleaned, bool) {
	if len(tokens) == 0 || len(labels) == 0 || len(tokens) != len(labels) {
		return Cleaned{}, false
	}

	var out Cleaned
	for i, rawTok := range tokens {
		tok, ok := rawTok.(string)
		if !ok {
			continue
		}
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}

		tag := OutsideTag
		if s, ok := labels[i].(string); ok {
			tag = strings.TrimSpace(s)
		}
		id, known := l.label2id[tag]
		if !known {
			id = 0
		}
		if id != 0 {
			out.HasEntity = true
		}
		out.Tokens = append(out.Tokens, tok)
		out.NERTags = append(out.NERTags, id)
	}

	if len(out.Tokens) == 0 {
		return Cleaned{}, false
	}
	return out, true
}

// LoadResult is the outcome of loading an annotation file
type LoadResult struct {
	Records      []Cleaned
	LabelCounts  map[string]int
	Total        int
	Malformed    int
	Rejected     int
	WithEntities int
}

// EntityShare is the fraction of cleaned records carrying an entity
func (r *LoadResult) EntityShare() float64 {
	if len(r.Records) == 0 {
		return 0
	}
	return float64(r.WithEntities) / float64(len(r.Records))
}

// LoadAndClean reads a BIO annotation JSONL file
func (l *Labels) LoadAndClean(ctx context.Context, path string, logger *slog.Logger) (*LoadResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	res := &LoadResult{LabelCounts: make(map[string]int)}

	_, err := dataset.Scan(ctx, path, func(lineNo int, line []byte) error {
		res.Total++

		var raw rawAnnotated
		if err := json.Unmarshal(line, &raw); err != nil {
			res.Malformed++
			logger.WarnContext(ctx, "skipping malformed annotation line",
				slog.Int("line", lineNo),
				slog.String("error", err.Error()))
			return nil
		}

		rec, ok := l.clean(raw.Tokens, raw.Labels)
		if !ok {
			res.Rejected++
			logger.DebugContext(ctx, "skipping record with token/label mismatch",
				slog.Int("line", lineNo),
				slog.Int("tokens", len(raw.Tokens)),
				slog.Int("labels", len(raw.Labels)))
			return nil
		}

		res.Records = append(res.Records, rec)
		if rec.HasEntity {
			res.WithEntities++
		}
		for _, id := range rec.NERTags {
			res.LabelCounts[l.Tag(id)]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
