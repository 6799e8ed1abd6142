package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/shared/testutil"
	"finsight/pkg/contracts/domain"
)

const sampleCatalog = `# Data Sources

| Dataset | Source | Format | Description |
|---|---|---|---|
| Financial PhraseBank | [Kaggle](https://www.kaggle.com/datasets/ankurzing/sentiment-analysis-for-financial-news) | CSV | Sentences labelled with sentiment |
| SEC filings | https://www.sec.gov/edgar | HTML | 10-K and 10-Q reports |
|  | ignored | TXT | row without a name |

## Processing summary

The merged dataset holds 23,474 records after deduplication.

| Stage | Input file | Input records | Output records | Output path |
|---|---|---|---|---|
| prepare_dataset.py | data/raw | 25,010 | 23,474 | ` + "`data/processed/merged_dataset.jsonl`" + ` |
| preprocess_data.py | data/processed/merged_dataset.jsonl | 23,474 | 22,900 | data/processed/preprocessed_dataset.jsonl |
| tokenize_features.py | data/processed/preprocessed_dataset.jsonl | 22,000 | 22,000 | data/processed/linguistic_features.jsonl |

- 23,474 records were written by the merge step.
- Roughly 999 records were dropped.
`

func TestParse(t *testing.T) {
	cat := Parse([]byte(sampleCatalog))

	assert.Equal(t, []domain.DatasetEntry{
		{
			Name:        "Financial PhraseBank",
			SourceURL:   "https://www.kaggle.com/datasets/ankurzing/sentiment-analysis-for-financial-news",
			Format:      "CSV",
			Description: "Sentences labelled with sentiment",
		},
		{
			Name:        "SEC filings",
			SourceURL:   "https://www.sec.gov/edgar",
			Format:      "HTML",
			Description: "10-K and 10-Q reports",
		},
	}, cat.Datasets)

	require.Len(t, cat.Summaries, 3)
	assert.Equal(t, domain.ProcessingSummary{
		Stage:         "prepare_dataset.py",
		InputPath:     "data/raw",
		InputRecords:  25010,
		OutputRecords: 23474,
		OutputPath:    "data/processed/merged_dataset.jsonl",
	}, cat.Summaries[0])
	assert.Equal(t, "data/processed/merged_dataset.jsonl", cat.Summaries[1].InputPath)

	assert.Equal(t, map[int]int{23474: 2, 999: 1}, cat.Counts)
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"23,474", 23474, true},
		{"~1 200", 1200, true},
		{"5000+", 5000, true},
		{"1 000", 1000, true},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseCount(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestQuotedCounts(t *testing.T) {
	assert.Equal(t, []int{23474, 12}, QuotedCounts("We kept 23,474 records and 12 rows; 2024 was a good year."))
}

func TestCheckConsistency(t *testing.T) {
	issues := CheckConsistency(Parse([]byte(sampleCatalog)))

	require.Len(t, issues, 2)
	assert.Equal(t, IssueChainMismatch, issues[0].Kind)
	assert.Equal(t, "tokenize_features.py", issues[0].Stage)
	assert.Equal(t, 22000, issues[0].Claimed)
	assert.Equal(t, 22900, issues[0].Actual)

	assert.Equal(t, IssueUnmatchedCount, issues[1].Kind)
	assert.Equal(t, 999, issues[1].Claimed)
}

func TestCheckConsistency_StageConflict(t *testing.T) {
	cat := &domain.Catalog{Summaries: []domain.ProcessingSummary{
		{Stage: "prepare", InputRecords: 10, OutputRecords: 8},
		{Stage: "Prepare", InputRecords: 10, OutputRecords: 9},
	}}

	issues := CheckConsistency(cat)
	require.Len(t, issues, 1)
	assert.Equal(t, IssueStageConflict, issues[0].Kind)
}

func TestCheckConsistency_Clean(t *testing.T) {
	cat := &domain.Catalog{
		Summaries: []domain.ProcessingSummary{
			{Stage: "prepare", InputRecords: 10, OutputRecords: 8, OutputPath: "./out/merged.jsonl"},
			{Stage: "preprocess", InputPath: "out/merged.jsonl", InputRecords: 8, OutputRecords: 7},
		},
		Counts: map[int]int{8: 3},
	}
	assert.Empty(t, CheckConsistency(cat))
}

func TestVerify(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, root, filepath.Join("data", "processed", "merged.jsonl"), "{}\n{}\n\n{}\n")
	testutil.WriteFile(t, root, filepath.Join("data", "processed", "clean.jsonl"), "{}\n")
	testutil.WriteFile(t, root, filepath.Join("data", "processed", "splits", "train.jsonl"), "{}\n{}\n")
	testutil.WriteFile(t, root, filepath.Join("data", "processed", "splits", "test.jsonl"), "{}\n")
	testutil.WriteFile(t, root, filepath.Join("data", "processed", "token_stats.csv"), "token,count\n")

	cat := &domain.Catalog{Summaries: []domain.ProcessingSummary{
		{Stage: "prepare", OutputRecords: 3, OutputPath: "data/processed/merged.jsonl"},
		{Stage: "preprocess", OutputRecords: 5, OutputPath: "data/processed/clean.jsonl"},
		{Stage: "ner", OutputRecords: 3, OutputPath: "data/processed/splits"},
		{Stage: "features", OutputRecords: 1, OutputPath: "data/processed/missing.jsonl"},
		{Stage: "tokens", OutputRecords: 99, OutputPath: "data/processed/token_stats.csv"},
		{Stage: "no output"},
	}}

	issues := Verify(cat, root)
	require.Len(t, issues, 2)

	assert.Equal(t, IssueCountMismatch, issues[0].Kind)
	assert.Equal(t, "preprocess", issues[0].Stage)
	assert.Equal(t, 5, issues[0].Claimed)
	assert.Equal(t, 1, issues[0].Actual)

	assert.Equal(t, IssueMissingOutput, issues[1].Kind)
	assert.Equal(t, "features", issues[1].Stage)
}

func TestLoad(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "DATA_SOURCES.md", sampleCatalog)
	cat, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cat.Datasets, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)
}

func TestRepositoryCatalogIsConsistent(t *testing.T) {
	cat, err := Load(filepath.Join("..", "..", "DATA_SOURCES.md"))
	require.NoError(t, err)

	assert.Empty(t, CheckConsistency(cat))
	assert.Equal(t, 2, cat.Counts[23474])
	require.NotEmpty(t, cat.Summaries)
	assert.Equal(t, 23474, cat.Summaries[0].OutputRecords)
}
