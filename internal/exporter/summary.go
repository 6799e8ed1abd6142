package exporter

import (
	"finsight/pkg/contracts/domain"
)

// SummaryHeaders is the header row of a processing summary report
var SummaryHeaders = []string{"stage", "input_records", "output_records", "dropped", "output_path"}

// SummaryExporter writes per-stage record counts
type SummaryExporter struct {
	csvWriter *CSVWriter
}

// NewSummaryExporter creates a processing summary exporter
func NewSummaryExporter(w *CSVWriter) *SummaryExporter {
	return &SummaryExporter{csvWriter: w}
}

// Export writes one row per summary in the given order
func (e *SummaryExporter) Export(summaries []domain.ProcessingSummary, filePath string) error {
	records := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		records = append(records, []string{
			s.Stage,
			formatInt(s.InputRecords),
			formatInt(s.OutputRecords),
			formatInt(s.Dropped()),
			s.OutputPath,
		})
	}
	return e.csvWriter.WriteSimpleCSV(filePath, SummaryHeaders, records)
}
