package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileValidator checks stage inputs and outputs before any work starts
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger: logger.With(slog.String("component", "file_validator")),
	}
}

// ValidateInputDirectory validates that dir exists and is a directory
func (v *FileValidator) ValidateInputDirectory(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		v.logger.Error("input directory does not exist", slog.String("directory", dir))
		return fmt.Errorf("input directory %s does not exist", dir)
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		v.logger.Error("input path is not a directory", slog.String("path", dir))
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// ValidateOutputDirectory ensures dir exists and is writable
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	probe, err := os.CreateTemp(dir, ".write_test*")
	if err != nil {
		v.logger.Error("output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

// ValidateFile checks that path is an existing, readable regular file
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("file does not exist", slog.String("file", path))
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("file is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	file.Close()

	v.logger.Debug("file validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateJSONLFile checks that path is a readable .jsonl file
func (v *FileValidator) ValidateJSONLFile(path string) error {
	if err := v.ValidateFile(path); err != nil {
		return err
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".jsonl" {
		return fmt.Errorf("file %s is not a JSONL file (extension: %s)", path, ext)
	}
	return nil
}

// ValidateFilename rejects names that could escape a target directory
func ValidateFilename(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("filename is empty")
	case len(name) > 255:
		return fmt.Errorf("filename exceeds 255 characters")
	case strings.Contains(name, ".."), strings.ContainsAny(name, `/\`):
		return fmt.Errorf("filename %q contains a path separator or traversal", name)
	}
	return nil
}
