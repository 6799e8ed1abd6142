package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrLineTooLong is returned for a line that readers would reject
var ErrLineTooLong = errors.New("line exceeds maximum length")

// Writer appends JSON documents to a file, one per line. It is safe for
// concurrent use. Output is written to a temporary file and renamed into
// place on Close so readers never observe a partial dataset.
type Writer struct {
	mu      sync.Mutex
	path    string
	tmp     *os.File
	buf     *bufio.Writer
	count   int
	maxLine int // 0 means unlimited
	done    bool
}

// NewWriter creates the parent directory and opens a writer for path
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file for %s: %w", path, err)
	}

	return &Writer{
		path:    path,
		tmp:     tmp,
		buf:     bufio.NewWriterSize(tmp, 256*1024),
	}, nil
}

// SetMaxLineBytes refuses lines longer than n bytes; n <= 0 removes the limit
func (w *Writer) SetMaxLineBytes(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.maxLine = n
}

// Path returns the final destination of the dataset
func (w *Writer) Path() string {
	return w.path
}

// Write encodes v as one JSON line
func (w *Writer) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return w.WriteRaw(data)
}

// WriteRaw writes an already-encoded JSON document as one line. A line
// longer than the limit is refused with ErrLineTooLong and nothing is written.
func (w *Writer) WriteRaw(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done {
		return fmt.Errorf("write to closed dataset %s", w.path)
	}
	if w.maxLine > 0 && len(line) > w.maxLine {
		return fmt.Errorf("%w: %d bytes", ErrLineTooLong, len(line))
	}
	if _, err := w.buf.Write(line); err != nil {
		return err
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns the number of lines written so far
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes and atomically publishes the dataset
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done {
		return nil
	}
	w.done = true

	if err := w.buf.Flush(); err != nil {
		w.discard()
		return fmt.Errorf("flush %s: %w", w.path, err)
	}
	if err := w.tmp.Close(); err != nil {
		_ = os.Remove(w.tmp.Name())
		return fmt.Errorf("close %s: %w", w.path, err)
	}
	_ = os.Chmod(w.tmp.Name(), 0644)
	if err := os.Rename(w.tmp.Name(), w.path); err != nil {
		_ = os.Remove(w.tmp.Name())
		return fmt.Errorf("publish %s: %w", w.path, err)
	}
	return nil
}

// Abort drops everything written; the destination is left untouched
func (w *Writer) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done {
		return
	}
	w.done = true
	w.discard()
}

func (w *Writer) discard() {
	_ = w.tmp.Close()
	_ = os.Remove(w.tmp.Name())
}

// WriteJSONFile writes v as indented JSON, creating parent directories
func WriteJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
