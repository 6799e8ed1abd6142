// Package ner turns BIO-annotated sentences into train, validation and
// test splits with integer label IDs.
package ner

import (
	"fmt"
	"sort"

	"finsight/pkg/contracts/domain"
)

// OutsideTag marks tokens outside any entity
const OutsideTag = "O"

// DefaultEntityLabels is the entity schema used when none is configured
var DefaultEntityLabels = []string{"ORG", "DATE", "FIN_VALUE", "REVENUE", "PROFIT", "FIN_TERM", "EVENT"}

// Labels is a BIO tag set: O followed by B- and I- tags per entity label
type Labels struct {
	entities []string
	tags     []string
	label2id map[string]int
}

// NewLabels builds the tag set for entityLabels in order
func NewLabels(entityLabels []string) (*Labels, error) {
	if len(entityLabels) == 0 {
		entityLabels = DefaultEntityLabels
	}
	l := &Labels{
		entities: append([]string(nil), entityLabels...),
		tags:     []string{OutsideTag},
		label2id: map[string]int{OutsideTag: 0},
	}
	for _, entity := range entityLabels {
		for _, tag := range []string{"B-" + entity, "I-" + entity} {
			if _, dup := l.label2id[tag]; dup {
				return nil, fmt.Errorf("duplicate entity label %q", entity)
			}
			l.label2id[tag] = len(l.tags)
			l.tags = append(l.tags, tag)
		}
	}
	return l, nil
}

// Tags returns every tag in ID order
func (l *Labels) Tags() []string {
	return append([]string(nil), l.tags...)
}

// ID returns the ID of tag
func (l *Labels) ID(tag string) (int, bool) {
	id, ok := l.label2id[tag]
	return id, ok
}

// Tag returns the tag for id, or O when id is out of range
func (l *Labels) Tag(id int) string {
	if id < 0 || id >= len(l.tags) {
		return OutsideTag
	}
	return l.tags[id]
}

// Metadata returns the label maps written next to the splits
func (l *Labels) Metadata() domain.NERMetadata {
	md := domain.NERMetadata{
		ID2Label:     make(map[int]string, len(l.tags)),
		Label2ID:     make(map[string]int, len(l.tags)),
		EntityLabels: append([]string(nil), l.entities...),
	}
	for id, tag := range l.tags {
		md.ID2Label[id] = tag
		md.Label2ID[tag] = id
	}
	return md
}

// TagCount is one entry of a label distribution
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// MostCommon orders a tag counter by count descending, then tag
func MostCommon(counts map[string]int) []TagCount {
	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}
