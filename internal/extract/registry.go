package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"finsight/internal/files"
)

// Extractor returns the text units found in the file at path
type Extractor func(ctx context.Context, path string) ([]string, error)

// Registry maps lower-case extensions to extractors
type Registry struct {
	handlers map[string]Extractor
}

// NewRegistry returns a registry with every built-in format
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Extractor)}
	r.Register(".txt", ExtractText)
	r.Register(".html", ExtractHTML)
	r.Register(".htm", ExtractHTML)
	r.Register(".csv", ExtractCSV)
	r.Register(".json", ExtractJSON)
	r.Register(".jsonl", ExtractJSON)
	r.Register(".pdf", ExtractPDF)
	r.Register(".xlsx", ExtractXLSX)
	return r
}

// Register adds or replaces the extractor for ext
func (r *Registry) Register(ext string, fn Extractor) {
	r.handlers[normalizeExt(ext)] = fn
}

// Lookup returns the extractor for ext
func (r *Registry) Lookup(ext string) (Extractor, bool) {
	fn, ok := r.handlers[normalizeExt(ext)]
	return fn, ok
}

// Supports reports whether ext has a registered extractor
func (r *Registry) Supports(ext string) bool {
	_, ok := r.Lookup(ext)
	return ok
}

// Extensions lists the registered extensions in sorted order
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.handlers))
	for ext := range r.handlers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract runs the extractor matching the file's extension
func (r *Registry) Extract(ctx context.Context, path string) ([]string, error) {
	fn, ok := r.Lookup(filepath.Ext(path))
	if !ok {
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Base(path))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	texts, err := fn(ctx, path)
	if err != nil {
		return texts, fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}
	return texts, nil
}

// Discover walks root recursively. Supported files come back sorted by
// relative path; everything else is reported as skipped.
func (r *Registry) Discover(root string) (*files.WalkResult, error) {
	return files.NewDiscovery(root).Walk(r.Supports)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
