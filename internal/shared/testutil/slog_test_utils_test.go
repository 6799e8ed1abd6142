package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferedSlogHandler(t *testing.T) {
	t.Run("captures log records", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.Info("test message", slog.String("key", "value"))
		logger.Error("error message", slog.Int("code", 500))

		assert.Len(t, handler.GetRecords(), 2)
		assert.True(t, handler.ContainsMessage("test message"))
		assert.True(t, handler.ContainsAttr("key", "value"))
	})

	t.Run("filters by level", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.Debug("debug msg")
		logger.Info("info msg")
		logger.Warn("warn msg")
		logger.Error("error msg")

		assert.Len(t, handler.GetRecordsByLevel(slog.LevelInfo), 1)
		assert.Len(t, handler.GetRecordsByLevel(slog.LevelError), 1)
	})

	t.Run("derived loggers share the buffer and keep attrs", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.With(slog.String("component", "prepare")).Info("stage_completed")

		assert.Equal(t, 1, handler.Count())
		assert.True(t, handler.ContainsAttr("component", "prepare"))
	})

	t.Run("clear", func(t *testing.T) {
		logger, handler := NewTestLogger(t)
		logger.Info("one")
		handler.Clear()
		assert.Equal(t, 0, handler.Count())
	})
}

func TestJSONLFixtures(t *testing.T) {
	type row struct {
		Text string `json:"text"`
	}

	path := WriteJSONL(t, t.TempDir(), "nested/rows.jsonl", []row{{"a"}, {"b"}})
	got := ReadJSONL[row](t, path)

	assert.Equal(t, []row{{"a"}, {"b"}}, got)
}
