package files

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileInfo represents information about a discovered file
type FileInfo struct {
	Path    string
	Rel     string
	Name    string
	Ext     string
	Size    int64
	ModTime time.Time
}

// WalkResult holds the outcome of a recursive discovery
type WalkResult struct {
	Files   []FileInfo
	Skipped []FileInfo
}

// Discovery provides file discovery operations rooted at a directory
type Discovery struct {
	root string
}

// NewDiscovery creates a new file discovery instance
func NewDiscovery(root string) *Discovery {
	return &Discovery{root: root}
}

// Root returns the directory the discovery is rooted at
func (d *Discovery) Root() string {
	return d.root
}

// Walk recursively lists regular files under the root. Files whose lower-case
// extension is accepted by supported land in Files, the rest in Skipped.
func (d *Discovery) Walk(supported func(ext string) bool) (*WalkResult, error) {
	info, err := os.Stat(d.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", d.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", d.root)
	}

	res := &WalkResult{}
	err = filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := entry.Name()
		if entry.IsDir() {
			if path != d.root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || isIgnored(name) {
			return nil
		}

		fi, err := entry.Info()
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(d.root, path)
		file := FileInfo{
			Path:    path,
			Rel:     filepath.ToSlash(rel),
			Name:    name,
			Ext:     strings.ToLower(filepath.Ext(name)),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		}

		if supported != nil && supported(file.Ext) {
			res.Files = append(res.Files, file)
		} else {
			res.Skipped = append(res.Skipped, file)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", d.root, err)
	}

	sortByPath(res.Files)
	sortByPath(res.Skipped)
	return res, nil
}

// TotalSize sums the sizes of files
func TotalSize(files []FileInfo) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}

func isIgnored(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasPrefix(name, "~$") ||
		strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".tmp")
}

func sortByPath(files []FileInfo) {
	sort.Slice(files, func(i, j int) bool {
		return files[i].Rel < files[j].Rel
	})
}
