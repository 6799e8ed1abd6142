package domain

// DatasetEntry is one row of the data-source catalog. Entries are reference
// metadata only and are never mutated after parsing.
type DatasetEntry struct {
	Name        string `json:"name" validate:"required"`
	SourceURL   string `json:"source_url"`
	Format      string `json:"format"`
	Description string `json:"description,omitempty"`
}

// ProcessingSummary reports the record counts of one processing stage
type ProcessingSummary struct {
	Stage         string `json:"stage"`
	InputPath     string `json:"input_path,omitempty"`
	InputRecords  int    `json:"input_records"`
	OutputRecords int    `json:"output_records"`
	OutputPath    string `json:"output_path"`
}

// Dropped returns how many records the stage removed
func (s ProcessingSummary) Dropped() int {
	if s.InputRecords < s.OutputRecords {
		return 0
	}
	return s.InputRecords - s.OutputRecords
}

// Catalog is the parsed content of a data-sources document
type Catalog struct {
	Datasets  []DatasetEntry      `json:"datasets"`
	Summaries []ProcessingSummary `json:"summaries"`
	// Counts holds every record count quoted in the document prose, keyed by value
	Counts map[int]int `json:"counts,omitempty"`
}

// ConsistencyIssue describes a mismatch found while checking a catalog
type ConsistencyIssue struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage,omitempty"`
	Path    string `json:"path,omitempty"`
	Claimed int    `json:"claimed"`
	Actual  int    `json:"actual"`
	Message string `json:"message"`
}
