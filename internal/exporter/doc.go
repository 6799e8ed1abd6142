// Package exporter writes tabular pipeline reports as CSV.
//
// CSVWriter is the core writer: relative paths resolve under the processed
// data directory, and large outputs can be streamed row by row.
//
// On top of it, TokenStatsExporter writes corpus token statistics and
// SummaryExporter writes per-stage record counts.
//
// Example usage:
//
//	writer := exporter.NewCSVWriter(paths)
//	tokens := exporter.NewTokenStatsExporter(writer)
//	err := tokens.Export(stats, "token_stats.csv")
package exporter
