package exporter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/config"
	"finsight/pkg/contracts/domain"
)

func setupTestEnv(t *testing.T) (*CSVWriter, string) {
	t.Helper()

	tempDir := t.TempDir()
	writer := NewCSVWriter(&config.Paths{ProcessedDir: filepath.Join(tempDir, "processed")})
	return writer, tempDir
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data = []byte(strings.TrimPrefix(string(data), "\ufeff"))

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVWriter_WriteCSV(t *testing.T) {
	writer, tempDir := setupTestEnv(t)

	tests := []struct {
		name     string
		filePath string
		options  WriteOptions
		wantBOM  bool
		wantRows [][]string
	}{
		{
			name:     "headers and records",
			filePath: "report.csv",
			options: WriteOptions{
				Headers: []string{"stage", "count"},
				Records: [][]string{{"prepare", "10"}, {"preprocess", "8"}},
			},
			wantRows: [][]string{{"stage", "count"}, {"prepare", "10"}, {"preprocess", "8"}},
		},
		{
			name:     "bom prefix",
			filePath: "bom.csv",
			options: WriteOptions{
				Headers:   []string{"token"},
				Records:   [][]string{{"revenue"}},
				BOMPrefix: true,
			},
			wantBOM:  true,
			wantRows: [][]string{{"token"}, {"revenue"}},
		},
		{
			name:     "special characters",
			filePath: filepath.Join("nested", "special.csv"),
			options: WriteOptions{
				Headers: []string{"text"},
				Records: [][]string{{"Profit, \"adjusted\"\nline two"}},
			},
			wantRows: [][]string{{"text"}, {"Profit, \"adjusted\"\nline two"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, writer.WriteCSV(tt.filePath, tt.options))

			fullPath := filepath.Join(tempDir, "processed", tt.filePath)
			data, err := os.ReadFile(fullPath)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBOM, strings.HasPrefix(string(data), "\ufeff"))
			assert.Equal(t, tt.wantRows, readCSV(t, fullPath))
		})
	}
}

func TestCSVWriter_ResolvePath(t *testing.T) {
	writer, tempDir := setupTestEnv(t)

	abs := filepath.Join(tempDir, "elsewhere", "x.csv")
	assert.Equal(t, abs, writer.ResolvePath(abs))
	assert.Equal(t, filepath.Join(tempDir, "processed", "x.csv"), writer.ResolvePath("x.csv"))
	assert.Equal(t, "x.csv", NewCSVWriter(nil).ResolvePath("x.csv"))
}

func TestCSVWriter_StreamWriter(t *testing.T) {
	writer, tempDir := setupTestEnv(t)

	stream, err := writer.CreateStreamWriter("stream.csv", []string{"n"})
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		require.NoError(t, stream.WriteRecord([]string{fmt.Sprint(i)}))
	}
	assert.Equal(t, 1000, stream.Rows())
	require.NoError(t, stream.Close())

	rows := readCSV(t, filepath.Join(tempDir, "processed", "stream.csv"))
	require.Len(t, rows, 1001)
	assert.Equal(t, []string{"999"}, rows[1000])
}

func TestCSVWriter_ConcurrentWrites(t *testing.T) {
	writer, tempDir := setupTestEnv(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("file_%d.csv", i)
			assert.NoError(t, writer.WriteSimpleCSV(name, []string{"i"}, [][]string{{fmt.Sprint(i)}}))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		rows := readCSV(t, filepath.Join(tempDir, "processed", fmt.Sprintf("file_%d.csv", i)))
		assert.Equal(t, [][]string{{"i"}, {fmt.Sprint(i)}}, rows)
	}
}

func TestCSVWriter_ErrorScenarios(t *testing.T) {
	writer, tempDir := setupTestEnv(t)

	blocker := filepath.Join(tempDir, "processed", "blocker")
	require.NoError(t, os.MkdirAll(filepath.Dir(blocker), 0755))
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0644))

	err := writer.WriteSimpleCSV(filepath.Join("blocker", "x.csv"), nil, nil)
	assert.Error(t, err)

	_, err = writer.CreateStreamWriter(filepath.Join("blocker", "y.csv"), nil)
	assert.Error(t, err)
}

func TestTokenStatsExporter_Export(t *testing.T) {
	writer, tempDir := setupTestEnv(t)

	stats := []domain.TokenStat{
		{Token: "revenue", Count: 12, DocFreq: 3},
		{Token: "eps", Count: 5, DocFreq: 4},
	}
	require.NoError(t, NewTokenStatsExporter(writer).Export(stats, 8, "token_stats.csv"))

	assert.Equal(t, [][]string{
		{"token", "count", "doc_freq", "doc_ratio"},
		{"revenue", "12", "3", "0.3750"},
		{"eps", "5", "4", "0.5000"},
	}, readCSV(t, filepath.Join(tempDir, "processed", "token_stats.csv")))
}

func TestSummaryExporter_Export(t *testing.T) {
	writer, tempDir := setupTestEnv(t)

	summaries := []domain.ProcessingSummary{
		{Stage: "prepare", InputRecords: 10, OutputRecords: 7, OutputPath: "data/processed/merged_dataset.jsonl"},
		{Stage: "augment", InputRecords: 7, OutputRecords: 9, OutputPath: "data/processed/augmented_dataset.jsonl"},
	}
	require.NoError(t, NewSummaryExporter(writer).Export(summaries, "pipeline_summary.csv"))

	assert.Equal(t, [][]string{
		SummaryHeaders,
		{"prepare", "10", "7", "3", "data/processed/merged_dataset.jsonl"},
		{"augment", "7", "9", "0", "data/processed/augmented_dataset.jsonl"},
	}, readCSV(t, filepath.Join(tempDir, "processed", "pipeline_summary.csv")))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0.3333", formatFloat(1.0/3))
	assert.Equal(t, "0.0000", formatFloat(0))
	assert.Equal(t, "42", formatInt(42))
}
