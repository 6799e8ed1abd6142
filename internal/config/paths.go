package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains all dataset locations used by the pipeline.
// This is the single source of truth for file paths in the application.
type Paths struct {
	DataDir      string
	RawDir       string
	WebRawDir    string
	ProcessedDir string
	SplitsDir    string
	LogsDir      string

	CatalogFile    string
	AnnotationFile string

	// Well-known stage outputs
	MergedDataset       string
	PreprocessedDataset string
	AugmentedDataset    string
	LinguisticFeatures  string
	TokenStats          string
	PipelineSummary     string
}

// Well-known output file names under the processed directory
const (
	MergedDatasetFile       = "merged_dataset.jsonl"
	PreprocessedDatasetFile = "preprocessed_dataset.jsonl"
	AugmentedDatasetFile    = "augmented_dataset.jsonl"
	LinguisticFeaturesFile  = "linguistic_features.jsonl"
	TokenStatsFile          = "token_stats.csv"
	PipelineSummaryFile     = "pipeline_summary.csv"
	NERSplitsDirName        = "ner_final_splits"
)

// NewPaths resolves the data layout from the paths configuration
func NewPaths(cfg PathsConfig) *Paths {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "data"
	}
	rawDir := filepath.Join(dataDir, "raw")
	processedDir := filepath.Join(dataDir, "processed")

	annotation := cfg.AnnotationFile
	if annotation == "" {
		annotation = filepath.Join(processedDir, "bio_annotation_ready.jsonl")
	}

	logsDir := cfg.LogsDir
	if logsDir == "" {
		logsDir = "logs"
	}

	return &Paths{
		DataDir:      dataDir,
		RawDir:       rawDir,
		WebRawDir:    filepath.Join(rawDir, "web"),
		ProcessedDir: processedDir,
		SplitsDir:    filepath.Join(processedDir, NERSplitsDirName),
		LogsDir:      logsDir,

		CatalogFile:    cfg.CatalogFile,
		AnnotationFile: annotation,

		MergedDataset:       filepath.Join(processedDir, MergedDatasetFile),
		PreprocessedDataset: filepath.Join(processedDir, PreprocessedDatasetFile),
		AugmentedDataset:    filepath.Join(processedDir, AugmentedDatasetFile),
		LinguisticFeatures:  filepath.Join(processedDir, LinguisticFeaturesFile),
		TokenStats:          filepath.Join(processedDir, TokenStatsFile),
		PipelineSummary:     filepath.Join(processedDir, PipelineSummaryFile),
	}
}

// EnsureDirectories creates the base directories if they don't exist.
// Stage-specific subdirectories are created by the stages themselves.
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.DataDir,
		p.RawDir,
		p.ProcessedDir,
		p.LogsDir,
	}

	for _, dir := range directories {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// LogPathResolution logs every resolved path at debug level
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("resolved paths",
		slog.String("data_dir", p.DataDir),
		slog.String("raw_dir", p.RawDir),
		slog.String("processed_dir", p.ProcessedDir),
		slog.String("splits_dir", p.SplitsDir),
		slog.String("catalog_file", p.CatalogFile),
		slog.String("annotation_file", p.AnnotationFile))
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
