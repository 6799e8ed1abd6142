package domain

// TextRecord is a single line of a processed JSONL dataset
type TextRecord struct {
	Text             string `json:"text"`
	SourceFile       string `json:"source_file,omitempty"`
	AugmentationType string `json:"augmentation_type,omitempty"`
}

// AugmentationSynonymReplaceDelete marks records produced by controlled
// synonym replacement and random deletion.
const AugmentationSynonymReplaceDelete = "synonym_replace_delete_controlled"

// IsAugmented reports whether the record was generated rather than collected
func (r TextRecord) IsAugmented() bool {
	return r.AugmentationType != ""
}

// AugmentedRecord is the line written for an augmented twin. Unlike
// TextRecord it always carries source_file, empty when unknown.
type AugmentedRecord struct {
	Text             string `json:"text"`
	SourceFile       string `json:"source_file"`
	AugmentationType string `json:"augmentation_type"`
}

// Augmented returns the twin form of r
func (r TextRecord) Augmented() AugmentedRecord {
	return AugmentedRecord{
		Text:             r.Text,
		SourceFile:       r.SourceFile,
		AugmentationType: r.AugmentationType,
	}
}
