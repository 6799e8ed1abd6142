package domain

// AnnotatedRecord is a BIO-annotated sentence as exported by the annotation tool
type AnnotatedRecord struct {
	Tokens []string `json:"tokens"`
	Labels []string `json:"labels"`
}

// NERRecord is a training-ready record with label IDs
type NERRecord struct {
	Tokens  []string `json:"tokens"`
	NERTags []int    `json:"ner_tags"`
}

// NERMetadata describes the label space of a split dataset
type NERMetadata struct {
	ID2Label     map[int]string `json:"id2label"`
	Label2ID     map[string]int `json:"label2id"`
	EntityLabels []string       `json:"entity_labels"`
}

// SplitSizes reports the number of records written per split
type SplitSizes struct {
	Train      int `json:"train"`
	Validation int `json:"validation"`
	Test       int `json:"test"`
}

// Total returns the sum of all splits
func (s SplitSizes) Total() int {
	return s.Train + s.Validation + s.Test
}
