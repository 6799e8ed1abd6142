// Package dataset reads and writes the JSONL files exchanged between
// pipeline stages.
package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"finsight/pkg/contracts/domain"
)

// MaxLineBytes bounds a single JSONL line
const MaxLineBytes = 16 * 1024 * 1024

// ScanStats describes one pass over a JSONL file
type ScanStats struct {
	Lines     int `json:"lines"`
	Blank     int `json:"blank"`
	Malformed int `json:"malformed"`
}

// Records is the number of non-blank lines
func (s ScanStats) Records() int {
	return s.Lines - s.Blank
}

// LineFunc receives the 1-based line number and the trimmed raw line.
// The slice is only valid for the duration of the call.
type LineFunc func(lineNo int, raw []byte) error

// Scan streams the non-blank lines of a JSONL file
func Scan(ctx context.Context, path string, fn LineFunc) (ScanStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ScanStats{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return ScanReader(ctx, f, fn)
}

// ScanReader is Scan over an arbitrary reader. Lines longer than
// MaxLineBytes are drained, counted as malformed and skipped.
func ScanReader(ctx context.Context, r io.Reader, fn LineFunc) (ScanStats, error) {
	return scanLines(ctx, r, MaxLineBytes, fn)
}

func scanLines(ctx context.Context, r io.Reader, limit int, fn LineFunc) (ScanStats, error) {
	var stats ScanStats

	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	oversized := false

	for {
		chunk, err := br.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			if !oversized {
				if len(line)+len(chunk) > limit {
					oversized = true
					line = line[:0]
				} else {
					line = append(line, chunk...)
				}
			}
			continue
		}
		if err != nil && err != io.EOF {
			return stats, fmt.Errorf("line %d: %w", stats.Lines+1, err)
		}

		eof := err == io.EOF
		if eof && len(chunk) == 0 && len(line) == 0 && !oversized {
			break
		}

		if !oversized {
			size := len(line) + len(chunk)
			if !eof {
				size--
			}
			if size > limit {
				oversized = true
			} else {
				line = append(line, chunk...)
			}
		}

		stats.Lines++
		if stats.Lines%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}

		switch trimmed := bytes.TrimSpace(line); {
		case oversized:
			stats.Malformed++
		case len(trimmed) == 0:
			stats.Blank++
		default:
			if err := fn(stats.Lines, trimmed); err != nil {
				return stats, err
			}
		}

		line = line[:0]
		oversized = false
		if eof {
			break
		}
	}
	return stats, ctx.Err()
}

// RecordFunc receives each decoded record together with its raw line
type RecordFunc func(rec domain.TextRecord, raw []byte) error

// ScanRecords decodes TextRecord lines. Malformed lines are logged, counted
// and skipped.
func ScanRecords(ctx context.Context, path string, logger *slog.Logger, fn RecordFunc) (ScanStats, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var malformed int
	stats, err := Scan(ctx, path, func(lineNo int, raw []byte) error {
		var rec domain.TextRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			malformed++
			logger.WarnContext(ctx, "skipping malformed record",
				slog.String("path", path),
				slog.Int("line", lineNo),
				slog.String("error", err.Error()))
			return nil
		}
		return fn(rec, raw)
	})
	if stats.Malformed > 0 {
		logger.WarnContext(ctx, "skipped oversized lines",
			slog.String("path", path),
			slog.Int("lines", stats.Malformed),
			slog.Int("max_line_bytes", MaxLineBytes))
	}
	stats.Malformed += malformed
	return stats, err
}

// ReadRecords loads every well-formed TextRecord of a file into memory
func ReadRecords(ctx context.Context, path string, logger *slog.Logger) ([]domain.TextRecord, ScanStats, error) {
	var out []domain.TextRecord
	stats, err := ScanRecords(ctx, path, logger, func(rec domain.TextRecord, _ []byte) error {
		out = append(out, rec)
		return nil
	})
	return out, stats, err
}

// CountLines returns the number of non-blank lines in a JSONL file
func CountLines(path string) (int, error) {
	stats, err := Scan(context.Background(), path, func(int, []byte) error { return nil })
	if err != nil {
		return 0, err
	}
	return stats.Records(), nil
}
