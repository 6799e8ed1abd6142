package operations_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/config"
	"finsight/internal/operations"
	"finsight/internal/shared/testutil"
	"finsight/pkg/contracts/domain"
)

func newPipeline(t *testing.T) (*operations.Manager, *config.Paths) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Paths.AnnotationFile = ""
	cfg.Augment.Ratio = 0.5
	paths := config.NewPaths(cfg.Paths)

	logger, _ := testutil.NewTestLogger(t)
	manager, _ := newManager(t)
	require.NoError(t, operations.RegisterPipelineSteps(manager.GetRegistry(), operations.StageDeps{
		Config: cfg,
		Paths:  paths,
		Logger: logger,
	}))
	manager.SetSummarySink(operations.NewSummaryCSVSink(paths, logger))
	return manager, paths
}

func writeRawSources(t *testing.T, paths *config.Paths) {
	t.Helper()
	testutil.WriteFile(t, paths.RawDir, "q3_report.txt",
		"The bank reported net income of $5M for the third quarter.")
	testutil.WriteFile(t, paths.RawDir, filepath.Join("news", "headlines.csv"),
		"id,headline\n"+
			"1,Shares of the cement company rose after strong quarterly revenue.\n"+
			"2,The central bank kept interest rates unchanged this month.\n"+
			"3,ok\n")
}

func TestPipelineSteps_FullRun(t *testing.T) {
	manager, paths := newPipeline(t)
	writeRawSources(t, paths)

	resp, err := manager.Execute(context.Background(), operations.OperationRequest{
		Parameters: map[string]interface{}{operations.ParamMinChars: float64(10)},
	})
	require.NoError(t, err)
	assert.Equal(t, operations.OperationStatusCompleted, resp.Status)

	for _, id := range []string{operations.StepIDPrepare, operations.StepIDPreprocess, operations.StepIDFeatures, operations.StepIDAugment} {
		assert.Equal(t, operations.StepStatusCompleted, resp.Steps[id].Status, id)
	}
	assert.Equal(t, operations.StepStatusSkipped, resp.Steps[operations.StepIDNER].Status,
		"no annotation export means the NER step has no input")

	stages := make([]string, len(resp.Summaries))
	for i, s := range resp.Summaries {
		stages[i] = s.Stage
	}
	assert.Equal(t, []string{"prepare", "preprocess", "features", "augment"}, stages)

	merged := testutil.ReadJSONL[domain.TextRecord](t, paths.MergedDataset)
	assert.Len(t, merged, 4)
	cleaned := testutil.ReadJSONL[domain.TextRecord](t, paths.PreprocessedDataset)
	assert.Len(t, cleaned, 3, "the two-letter headline is too short")
	assert.Equal(t, 3, resp.Summaries[1].OutputRecords)

	assert.True(t, config.FileExists(paths.LinguisticFeatures))
	assert.True(t, config.FileExists(paths.TokenStats))
	augmented := testutil.ReadJSONL[domain.TextRecord](t, paths.AugmentedDataset)
	assert.GreaterOrEqual(t, len(augmented), len(merged))

	report, err := os.ReadFile(paths.PipelineSummary)
	require.NoError(t, err)
	assert.Contains(t, string(report), "stage,input_records,output_records,dropped,output_path")
	assert.Contains(t, string(report), "preprocess,4,3,1,")

	md := resp.Steps[operations.StepIDPrepare].Metadata
	assert.Equal(t, 4, md["output_records"])
}

func TestPipelineSteps_SingleStep(t *testing.T) {
	t.Run("missing input fails", func(t *testing.T) {
		manager, _ := newPipeline(t)
		_, err := manager.Execute(context.Background(), operations.OperationRequest{Step: operations.StepIDPreprocess})
		require.Error(t, err)
		assert.Equal(t, operations.ErrorTypeValidation, operations.GetErrorType(err))
	})

	t.Run("bad parameter type", func(t *testing.T) {
		manager, paths := newPipeline(t)
		writeRawSources(t, paths)
		_, err := manager.Execute(context.Background(), operations.OperationRequest{
			Step:       operations.StepIDPrepare,
			Parameters: map[string]interface{}{operations.ParamDedup: "yes"},
		})
		assert.Equal(t, operations.ErrorTypeValidation, operations.GetErrorType(err))
	})

	t.Run("augment ratio out of range", func(t *testing.T) {
		manager, paths := newPipeline(t)
		testutil.WriteJSONL(t, paths.ProcessedDir, filepath.Base(paths.MergedDataset), []domain.TextRecord{{Text: "Revenue grew by ten percent."}})
		_, err := manager.Execute(context.Background(), operations.OperationRequest{
			Step:       operations.StepIDAugment,
			Parameters: map[string]interface{}{operations.ParamRatio: 1.5},
		})
		assert.Equal(t, operations.ErrorTypeValidation, operations.GetErrorType(err))
	})

	t.Run("ner splits from annotation parameter", func(t *testing.T) {
		manager, paths := newPipeline(t)
		records := make([]domain.AnnotatedRecord, 0, 10)
		for i := 0; i < 10; i++ {
			records = append(records, domain.AnnotatedRecord{
				Tokens: []string{"Bank", fmt.Sprintf("%d", i), "profit"},
				Labels: []string{"B-ORG", "O", "B-PROFIT"},
			})
		}
		annotations := testutil.WriteJSONL(t, t.TempDir(), "annotations.jsonl", records)

		resp, err := manager.Execute(context.Background(), operations.OperationRequest{
			Step:       operations.StepIDNER,
			Parameters: map[string]interface{}{operations.ParamAnnotations: annotations},
		})
		require.NoError(t, err)
		require.Len(t, resp.Summaries, 1)
		assert.Equal(t, "ner", resp.Summaries[0].Stage)
		assert.Equal(t, 10, resp.Summaries[0].InputRecords)
		assert.DirExists(t, paths.SplitsDir)
	})
}
