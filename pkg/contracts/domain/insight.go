package domain

import "time"

// EntityMention is a financial metric found in text
type EntityMention struct {
	Type       string   `json:"type"`
	Raw        string   `json:"raw"`
	Value      *float64 `json:"value,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	Confidence float64  `json:"confidence"`
	Offset     int      `json:"offset"`
}

// EventMention is a corporate event found in text
type EventMention struct {
	Type       string     `json:"type"`
	Sentence   string     `json:"sentence"`
	Date       *time.Time `json:"date,omitempty"`
	Confidence float64    `json:"confidence"`
}

// Analysis is the result of analyzing one document
type Analysis struct {
	Summary  string                     `json:"summary"`
	Sections map[string]string          `json:"sections"`
	Entities map[string][]EntityMention `json:"entities"`
	Events   map[string][]EventMention  `json:"events"`
	Tickers  []string                   `json:"tickers,omitempty"`
	Tables   []TablePreview             `json:"tables,omitempty"`
}

// TablePreview is the head of one table parsed from a spreadsheet upload.
// Numeric holds the same data rows as Raw minus the header, with null for
// cells that are not numbers.
type TablePreview struct {
	Page    int          `json:"page"`
	Name    string       `json:"name,omitempty"`
	Type    string       `json:"type"`
	Rows    int          `json:"rows"`
	Raw     [][]string   `json:"raw"`
	Numeric [][]*float64 `json:"numeric"`
}
