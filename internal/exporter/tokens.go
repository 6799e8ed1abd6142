package exporter

import (
	"fmt"

	"finsight/pkg/contracts/domain"
)

// TokenStatsHeaders is the header row of token_stats.csv
var TokenStatsHeaders = []string{"token", "count", "doc_freq", "doc_ratio"}

// TokenStatsExporter writes corpus token statistics
type TokenStatsExporter struct {
	csvWriter *CSVWriter
}

// NewTokenStatsExporter creates a token statistics exporter
func NewTokenStatsExporter(w *CSVWriter) *TokenStatsExporter {
	return &TokenStatsExporter{csvWriter: w}
}

// Export writes stats in the given order. docs is the corpus size used
// for the doc_ratio column; zero leaves the ratio at 0.
func (e *TokenStatsExporter) Export(stats []domain.TokenStat, docs int, filePath string) error {
	stream, err := e.csvWriter.CreateStreamWriter(filePath, TokenStatsHeaders)
	if err != nil {
		return fmt.Errorf("failed to create token stats file: %w", err)
	}

	for _, s := range stats {
		ratio := 0.0
		if docs > 0 {
			ratio = float64(s.DocFreq) / float64(docs)
		}
		if err := stream.WriteRecord([]string{
			s.Token,
			formatInt(s.Count),
			formatInt(s.DocFreq),
			formatFloat(ratio),
		}); err != nil {
			stream.Close()
			return fmt.Errorf("failed to write token %q: %w", s.Token, err)
		}
	}
	return stream.Close()
}
