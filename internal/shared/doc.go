// Package shared holds code used by several finsight packages that belongs to
// no single pipeline stage.
//
// The testutil subpackage provides:
//
//   - a buffered slog handler for asserting on log output
//   - fixture writers for raw inputs and JSONL datasets
//   - helpers for reading stage outputs back in tests
//
// Example usage:
//
//	func TestStage(t *testing.T) {
//	    logger, logs := testutil.NewTestLogger(t)
//	    in := testutil.WriteJSONL(t, t.TempDir(), "in.jsonl", records)
//	    ...
//	    testutil.AssertLogContains(t, logs, slog.LevelInfo, "stage_completed")
//	}
//
// Production code must not import testutil.
package shared
