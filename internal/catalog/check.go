package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"finsight/internal/dataset"
	"finsight/pkg/contracts/domain"
)

// Issue kinds
const (
	IssueChainMismatch  = "chain_mismatch"
	IssueStageConflict  = "stage_conflict"
	IssueUnmatchedCount = "unmatched_count"
	IssueMissingOutput  = "missing_output"
	IssueCountMismatch  = "count_mismatch"
)

// CheckConsistency cross-checks the numbers of a catalog against each other:
//   - a stage reading another stage's output path must report that stage's
//     output count as its input count
//   - a stage listed twice must report the same counts
//   - every record count quoted in prose must match some summary count
func CheckConsistency(cat *domain.Catalog) []domain.ConsistencyIssue {
	var issues []domain.ConsistencyIssue

	producers := make(map[string]domain.ProcessingSummary)
	for _, s := range cat.Summaries {
		if s.OutputPath != "" {
			producers[normPath(s.OutputPath)] = s
		}
	}
	for _, s := range cat.Summaries {
		if s.InputPath == "" {
			continue
		}
		prod, ok := producers[normPath(s.InputPath)]
		if !ok || prod.OutputRecords == s.InputRecords {
			continue
		}
		issues = append(issues, domain.ConsistencyIssue{
			Kind:    IssueChainMismatch,
			Stage:   s.Stage,
			Path:    s.InputPath,
			Claimed: s.InputRecords,
			Actual:  prod.OutputRecords,
			Message: fmt.Sprintf("%s reads %d records from %s but %s wrote %d",
				s.Stage, s.InputRecords, s.InputPath, prod.Stage, prod.OutputRecords),
		})
	}

	byStage := make(map[string]domain.ProcessingSummary)
	for _, s := range cat.Summaries {
		key := strings.ToLower(s.Stage)
		prev, seen := byStage[key]
		if !seen {
			byStage[key] = s
			continue
		}
		if prev.InputRecords != s.InputRecords || prev.OutputRecords != s.OutputRecords {
			issues = append(issues, domain.ConsistencyIssue{
				Kind:    IssueStageConflict,
				Stage:   s.Stage,
				Claimed: s.OutputRecords,
				Actual:  prev.OutputRecords,
				Message: fmt.Sprintf("stage %s is listed with %d->%d and %d->%d records",
					s.Stage, prev.InputRecords, prev.OutputRecords, s.InputRecords, s.OutputRecords),
			})
		}
	}

	known := make(map[int]bool)
	for _, s := range cat.Summaries {
		known[s.InputRecords] = true
		known[s.OutputRecords] = true
	}
	if len(cat.Summaries) > 0 {
		for _, n := range sortedCounts(cat.Counts) {
			if known[n] {
				continue
			}
			issues = append(issues, domain.ConsistencyIssue{
				Kind:    IssueUnmatchedCount,
				Claimed: n,
				Message: fmt.Sprintf("%d records quoted %d time(s) in prose match no processing summary", n, cat.Counts[n]),
			})
		}
	}
	return issues
}

// Verify compares each summary's claimed output count against the data
// on disk under root. JSONL files are counted by non-blank lines; a
// directory output is the sum of the JSONL files directly inside it.
// Outputs of other types are not checked.
func Verify(cat *domain.Catalog, root string) []domain.ConsistencyIssue {
	var issues []domain.ConsistencyIssue
	for _, s := range cat.Summaries {
		if s.OutputPath == "" {
			continue
		}
		path := s.OutputPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, filepath.FromSlash(path))
		}

		actual, checked, err := countRecords(path)
		if err != nil {
			issues = append(issues, domain.ConsistencyIssue{
				Kind:    IssueMissingOutput,
				Stage:   s.Stage,
				Path:    s.OutputPath,
				Claimed: s.OutputRecords,
				Message: fmt.Sprintf("cannot read output of %s: %v", s.Stage, err),
			})
			continue
		}
		if !checked || actual == s.OutputRecords {
			continue
		}
		issues = append(issues, domain.ConsistencyIssue{
			Kind:    IssueCountMismatch,
			Stage:   s.Stage,
			Path:    s.OutputPath,
			Claimed: s.OutputRecords,
			Actual:  actual,
			Message: fmt.Sprintf("%s claims %d records in %s, found %d", s.Stage, s.OutputRecords, s.OutputPath, actual),
		})
	}
	return issues
}

func countRecords(path string) (int, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false, err
	}
	if !info.IsDir() {
		if !strings.EqualFold(filepath.Ext(path), ".jsonl") {
			return 0, false, nil
		}
		n, err := dataset.CountLines(path)
		return n, err == nil, err
	}

	matches, err := filepath.Glob(filepath.Join(path, "*.jsonl"))
	if err != nil {
		return 0, false, err
	}
	total := 0
	for _, m := range matches {
		n, err := dataset.CountLines(m)
		if err != nil {
			return 0, false, err
		}
		total += n
	}
	return total, len(matches) > 0, nil
}

func normPath(p string) string {
	return strings.ToLower(filepath.ToSlash(filepath.Clean(strings.TrimPrefix(p, "./"))))
}

func sortedCounts(counts map[int]int) []int {
	out := make([]int, 0, len(counts))
	for n := range counts {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
