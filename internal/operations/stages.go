package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finsight/internal/augment"
	"finsight/internal/config"
	"finsight/internal/exporter"
	"finsight/internal/extract"
	"finsight/internal/features"
	"finsight/internal/infrastructure"
	"finsight/internal/ner"
	"finsight/internal/prepare"
	"finsight/internal/preprocess"
	"finsight/pkg/contracts/domain"
)

// StageDeps carries what the pipeline steps need to build their stages
type StageDeps struct {
	Config     *config.Config
	Paths      *config.Paths
	Extractors *extract.Registry
	Metrics    *infrastructure.PipelineMetrics
	Logger     *slog.Logger
}

// NewPipelineSteps builds every dataset step in registration order
func NewPipelineSteps(deps StageDeps) []Step {
	return []Step{
		NewPrepareStep(deps),
		NewPreprocessStep(deps),
		NewFeaturesStep(deps),
		NewAugmentStep(deps),
		NewNERStep(deps),
	}
}

// RegisterPipelineSteps registers every dataset step with the registry
func RegisterPipelineSteps(registry *Registry, deps StageDeps) error {
	for _, step := range NewPipelineSteps(deps) {
		if err := registry.Register(step); err != nil {
			return err
		}
	}
	return registry.ValidateDependencies()
}

// NewSummaryCSVSink writes operation summaries to the pipeline summary report
func NewSummaryCSVSink(paths *config.Paths, logger *slog.Logger) SummarySink {
	writer := exporter.NewCSVWriter(paths).WithLogger(logger)
	summaries := exporter.NewSummaryExporter(writer)
	return func(ctx context.Context, list []domain.ProcessingSummary) error {
		return summaries.Export(list, paths.PipelineSummary)
	}
}

// recordSummary stores a stage summary in the operation state and on the step
func recordSummary(state *OperationState, stepID string, summary domain.ProcessingSummary, details interface{}) {
	state.RecordSummary(summary)
	if st := state.GetStage(stepID); st != nil {
		st.SetMetadata("input_records", summary.InputRecords)
		st.SetMetadata("output_records", summary.OutputRecords)
		st.SetMetadata("output_path", summary.OutputPath)
		st.SetMetadata("details", details)
	}
}

func requireFile(path, what string) error {
	if !config.FileExists(path) {
		return fmt.Errorf("%s %s not found", what, path)
	}
	return nil
}

// PrepareStep merges raw source files into the merged dataset
type PrepareStep struct {
	BaseStage
	deps StageDeps
}

// NewPrepareStep creates the merge step
func NewPrepareStep(deps StageDeps) *PrepareStep {
	return &PrepareStep{
		BaseStage: NewBaseStage(StepIDPrepare, StepNamePrepare,
			"Extracts text from every raw source file and writes the merged JSONL dataset",
			nil,
			ParameterDefinition{Name: ParamDedup, Type: "boolean", Description: "Drop exact duplicate texts", Default: deps.Config.Prepare.Dedup},
			ParameterDefinition{Name: ParamKeepSource, Type: "boolean", Description: "Keep the source file of each record", Default: deps.Config.Prepare.KeepSource},
			ParameterDefinition{Name: ParamWorkers, Type: "number", Description: "Concurrent extraction workers", Default: deps.Config.Prepare.Workers},
		),
		deps: deps,
	}
}

// Validate checks that the raw directory exists
func (s *PrepareStep) Validate(state *OperationState) error {
	if !config.DirExists(s.deps.Paths.RawDir) {
		return fmt.Errorf("raw directory %s not found", s.deps.Paths.RawDir)
	}
	return nil
}

// Execute runs the merge stage
func (s *PrepareStep) Execute(ctx context.Context, state *OperationState) error {
	cfg := s.deps.Config.Prepare
	opts := prepare.Options{
		RawDir: s.deps.Paths.RawDir,
		Output: s.deps.Paths.MergedDataset,
	}
	var err error
	if opts.Dedup, err = state.configBool(ParamDedup, cfg.Dedup); err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	if opts.KeepSource, err = state.configBool(ParamKeepSource, cfg.KeepSource); err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	if opts.Workers, err = state.configInt(ParamWorkers, cfg.Workers); err != nil {
		return NewValidationError(s.ID(), err.Error())
	}

	summary, err := prepare.New(s.deps.Extractors, s.deps.Metrics, s.deps.Logger).Run(ctx, opts)
	if err != nil {
		return err
	}
	recordSummary(state, s.ID(), summary.ProcessingSummary(), summary)
	return nil
}

// PreprocessStep cleans the merged dataset
type PreprocessStep struct {
	BaseStage
	deps StageDeps
}

// NewPreprocessStep creates the cleaning step
func NewPreprocessStep(deps StageDeps) *PreprocessStep {
	return &PreprocessStep{
		BaseStage: NewBaseStage(StepIDPreprocess, StepNamePreprocess,
			"Normalizes the merged dataset and drops short, non-textual and duplicate records",
			[]string{StepIDPrepare},
			ParameterDefinition{Name: ParamMinChars, Type: "number", Description: "Minimum characters per record", Default: deps.Config.Preprocess.MinChars},
			ParameterDefinition{Name: ParamDedup, Type: "boolean", Description: "Drop duplicates after cleaning", Default: true},
		),
		deps: deps,
	}
}

// Validate checks that the merged dataset exists
func (s *PreprocessStep) Validate(state *OperationState) error {
	return requireFile(s.deps.Paths.MergedDataset, "merged dataset")
}

// Execute runs the cleaning stage
func (s *PreprocessStep) Execute(ctx context.Context, state *OperationState) error {
	cfg := s.deps.Config.Preprocess
	opts := preprocess.Options{
		Input:          s.deps.Paths.MergedDataset,
		Output:         s.deps.Paths.PreprocessedDataset,
		MinLetterRatio: cfg.MinLetterRatio,
	}
	var err error
	if opts.MinChars, err = state.configInt(ParamMinChars, cfg.MinChars); err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	if opts.Dedup, err = state.configBool(ParamDedup, true); err != nil {
		return NewValidationError(s.ID(), err.Error())
	}

	summary, err := preprocess.New(s.deps.Metrics, s.deps.Logger).Run(ctx, opts)
	if err != nil {
		return err
	}
	recordSummary(state, s.ID(), summary.ProcessingSummary(), summary)
	return nil
}

// FeaturesStep computes linguistic features and token statistics
type FeaturesStep struct {
	BaseStage
	deps StageDeps
}

// NewFeaturesStep creates the features step
func NewFeaturesStep(deps StageDeps) *FeaturesStep {
	return &FeaturesStep{
		BaseStage: NewBaseStage(StepIDFeatures, StepNameFeatures,
			"Writes per-record linguistic features and the token frequency table",
			[]string{StepIDPreprocess},
			ParameterDefinition{Name: ParamTopTokens, Type: "number", Description: "Rows in the token statistics file (0 for all)", Default: deps.Config.Features.TopTokens},
		),
		deps: deps,
	}
}

// Validate checks that the preprocessed dataset exists
func (s *FeaturesStep) Validate(state *OperationState) error {
	return requireFile(s.deps.Paths.PreprocessedDataset, "preprocessed dataset")
}

// Execute runs the features stage
func (s *FeaturesStep) Execute(ctx context.Context, state *OperationState) error {
	cfg := s.deps.Config.Features
	opts := features.Options{
		Input:         s.deps.Paths.PreprocessedDataset,
		FeaturesPath:  s.deps.Paths.LinguisticFeatures,
		TokenStatsCSV: s.deps.Paths.TokenStats,
		Lowercase:     cfg.Lowercase,
	}
	var err error
	if opts.TopTokens, err = state.configInt(ParamTopTokens, cfg.TopTokens); err != nil {
		return NewValidationError(s.ID(), err.Error())
	}

	stage := features.NewStage(exporter.NewCSVWriter(s.deps.Paths), s.deps.Metrics, s.deps.Logger)
	summary, err := stage.Run(ctx, opts)
	if err != nil {
		return err
	}
	recordSummary(state, s.ID(), summary.ProcessingSummary(), summary)
	return nil
}

// AugmentStep writes the augmented copy of the merged dataset
type AugmentStep struct {
	BaseStage
	deps StageDeps
}

// NewAugmentStep creates the augmentation step
func NewAugmentStep(deps StageDeps) *AugmentStep {
	return &AugmentStep{
		BaseStage: NewBaseStage(StepIDAugment, StepNameAugment,
			"Adds synonym-replaced and word-dropped twins for a share of the merged records",
			[]string{StepIDPrepare},
			ParameterDefinition{Name: ParamRatio, Type: "number", Description: "Share of records that get a twin", Default: deps.Config.Augment.Ratio},
			ParameterDefinition{Name: ParamSeed, Type: "number", Description: "Random seed (0 seeds from the clock)", Default: deps.Config.Augment.Seed},
		),
		deps: deps,
	}
}

// Validate checks that the merged dataset exists
func (s *AugmentStep) Validate(state *OperationState) error {
	return requireFile(s.deps.Paths.MergedDataset, "merged dataset")
}

// Execute runs the augmentation stage
func (s *AugmentStep) Execute(ctx context.Context, state *OperationState) error {
	cfg := s.deps.Config.Augment
	opts := augment.Options{
		ReplaceProb: cfg.ReplaceProb,
		DeleteProb:  cfg.DeleteProb,
	}
	var err error
	if opts.Ratio, err = state.configFloat(ParamRatio, cfg.Ratio); err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	if opts.Ratio < 0 || opts.Ratio > 1 {
		return NewValidationError(s.ID(), fmt.Sprintf("parameter %s must be within [0, 1]", ParamRatio))
	}
	seed, err := state.configInt(ParamSeed, int(cfg.Seed))
	if err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	opts.Seed = int64(seed)

	thesaurus, err := augment.LoadThesaurus(cfg.ThesaurusFile)
	if err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	opts.Synonyms = thesaurus

	stage := augment.NewStage(augment.NewAugmenter(opts), s.deps.Metrics, s.deps.Logger)
	summary, err := stage.Run(ctx, s.deps.Paths.MergedDataset, s.deps.Paths.AugmentedDataset)
	if err != nil {
		return err
	}
	recordSummary(state, s.ID(), summary.ProcessingSummary(), summary)
	return nil
}

// NERStep builds the NER train, validation and test splits
type NERStep struct {
	BaseStage
	deps StageDeps
}

// NewNERStep creates the NER split step. It does not depend on the text
// steps; its input is the annotation export.
func NewNERStep(deps StageDeps) *NERStep {
	return &NERStep{
		BaseStage: NewBaseStage(StepIDNER, StepNameNER,
			"Cleans the BIO annotation export and writes train, validation and test splits",
			nil,
			ParameterDefinition{Name: ParamAnnotations, Type: "string", Description: "Annotation JSONL file", Default: deps.Paths.AnnotationFile},
			ParameterDefinition{Name: ParamTestSize, Type: "number", Description: "Share held out for validation and test", Default: deps.Config.NER.TestSize},
			ParameterDefinition{Name: ParamSeed, Type: "number", Description: "Shuffle seed", Default: deps.Config.NER.Seed},
		),
		deps: deps,
	}
}

func (s *NERStep) annotationFile(state *OperationState) (string, error) {
	return state.configString(ParamAnnotations, s.deps.Paths.AnnotationFile)
}

// Validate checks that the annotation file exists
func (s *NERStep) Validate(state *OperationState) error {
	path, err := s.annotationFile(state)
	if err != nil {
		return err
	}
	return requireFile(path, "annotation file")
}

// Execute runs the NER split stage
func (s *NERStep) Execute(ctx context.Context, state *OperationState) error {
	cfg := s.deps.Config.NER
	opts := ner.Options{
		OutputDir:      s.deps.Paths.SplitsDir,
		ValFraction:    cfg.ValFractionOfTemp,
		MinEntityShare: cfg.MinEntityRecordPct,
	}
	var err error
	if opts.Input, err = s.annotationFile(state); err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	if opts.TestSize, err = state.configFloat(ParamTestSize, cfg.TestSize); err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	if opts.TestSize <= 0 || opts.TestSize >= 1 {
		return NewValidationError(s.ID(), fmt.Sprintf("parameter %s must be within (0, 1)", ParamTestSize))
	}
	seed, err := state.configInt(ParamSeed, int(cfg.Seed))
	if err != nil {
		return NewValidationError(s.ID(), err.Error())
	}
	opts.Seed = int64(seed)

	labels, err := ner.NewLabels(cfg.EntityLabels)
	if err != nil {
		return NewFatalError("invalid entity labels", err)
	}
	summary, err := ner.NewStage(labels, s.deps.Metrics, s.deps.Logger).Run(ctx, opts)
	if errors.Is(err, ner.ErrNoRecords) {
		return NewExecutionError(s.ID(), err, false)
	}
	if err != nil {
		return err
	}
	recordSummary(state, s.ID(), summary.ProcessingSummary(), summary)
	return nil
}
