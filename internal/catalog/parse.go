// Package catalog reads the data-sources document: its dataset table, its
// processing summary table and the record counts quoted in its prose.
package catalog

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"finsight/pkg/contracts/domain"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// reQuotedCount matches "23,474 records" style mentions
var reQuotedCount = regexp.MustCompile(`(?i)\b(\d{1,3}(?:,\d{3})+|\d+)\s+(?:records|rows|entries|samples|sentences|documents|lines)\b`)

// Load reads and parses a catalog file
func Load(path string) (*domain.Catalog, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(src), nil
}

// Parse extracts every dataset and processing summary table of a
// markdown document along with the record counts quoted outside tables.
func Parse(src []byte) *domain.Catalog {
	doc := markdown.Parser().Parse(text.NewReader(src))
	cat := &domain.Catalog{Counts: make(map[int]int)}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *extast.Table:
			parseTable(node, src, cat)
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock, *ast.Heading:
			for _, c := range QuotedCounts(inlineText(node, src)) {
				cat.Counts[c]++
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return cat
}

// QuotedCounts returns the record counts mentioned in s
func QuotedCounts(s string) []int {
	var out []int
	for _, m := range reQuotedCount.FindAllStringSubmatch(s, -1) {
		if n, ok := ParseCount(m[1]); ok {
			out = append(out, n)
		}
	}
	return out
}

// ParseCount parses a record count such as "23,474", "~1 200" or "5000+"
func ParseCount(s string) (int, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "~\u2248")
	s = strings.TrimRight(s, "+")
	s = strings.NewReplacer(",", "", "_", "", " ", "", "\u00a0", "", "\u202f", "").Replace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// table is a parsed markdown table: header cells and row cells
type table struct {
	header []string
	rows   [][]cell
}

type cell struct {
	text string
	link string
}

func parseTable(node *extast.Table, src []byte, cat *domain.Catalog) {
	var t table
	for row := node.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []cell
		for c := row.FirstChild(); c != nil; c = c.NextSibling() {
			cells = append(cells, cell{text: inlineText(c, src), link: firstLink(c, src)})
		}
		if _, ok := row.(*extast.TableHeader); ok {
			for _, c := range cells {
				t.header = append(t.header, strings.ToLower(c.text))
			}
			continue
		}
		t.rows = append(t.rows, cells)
	}

	if cols, ok := datasetColumns(t.header); ok {
		cat.Datasets = append(cat.Datasets, cols.entries(t.rows)...)
		return
	}
	if cols, ok := summaryColumns(t.header); ok {
		cat.Summaries = append(cat.Summaries, cols.summaries(t.rows)...)
	}
}

// inlineText concatenates the text segments below n
func inlineText(n ast.Node, src []byte) string {
	var b bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.URL(src))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// firstLink returns the destination of the first link below n
func firstLink(n ast.Node, src []byte) string {
	var dest string
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || dest != "" {
			return ast.WalkContinue, nil
		}
		switch l := c.(type) {
		case *ast.Link:
			dest = string(l.Destination)
			return ast.WalkStop, nil
		case *ast.AutoLink:
			dest = string(l.URL(src))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return dest
}

func findColumn(header []string, match func(h string) bool) int {
	for i, h := range header {
		if match(h) {
			return i
		}
	}
	return -1
}

func containsAny(h string, keys ...string) bool {
	for _, k := range keys {
		if strings.Contains(h, k) {
			return true
		}
	}
	return false
}

type datasetCols struct {
	name, source, format, description int
}

func datasetColumns(header []string) (datasetCols, bool) {
	cols := datasetCols{
		name:        findColumn(header, func(h string) bool { return containsAny(h, "dataset", "name") }),
		source:      findColumn(header, func(h string) bool { return containsAny(h, "source", "url", "link") }),
		format:      findColumn(header, func(h string) bool { return containsAny(h, "format", "type") }),
		description: findColumn(header, func(h string) bool { return containsAny(h, "description", "notes", "content") }),
	}
	return cols, cols.name >= 0 && cols.source >= 0 && cols.name != cols.source
}

func (c datasetCols) entries(rows [][]cell) []domain.DatasetEntry {
	var out []domain.DatasetEntry
	for _, row := range rows {
		name := at(row, c.name).text
		if name == "" {
			continue
		}
		src := at(row, c.source)
		url := src.link
		if url == "" {
			url = src.text
		}
		out = append(out, domain.DatasetEntry{
			Name:        name,
			SourceURL:   url,
			Format:      at(row, c.format).text,
			Description: at(row, c.description).text,
		})
	}
	return out
}

type summaryCols struct {
	stage, inputPath, inputCount, outputCount, outputPath int
}

func summaryColumns(header []string) (summaryCols, bool) {
	isPath := func(h string) bool { return containsAny(h, "path", "file", "location") }
	cols := summaryCols{
		stage:     findColumn(header, func(h string) bool { return containsAny(h, "stage", "step", "script") }),
		inputPath: findColumn(header, func(h string) bool { return strings.Contains(h, "input") && isPath(h) }),
		inputCount: findColumn(header, func(h string) bool {
			return strings.Contains(h, "input") && !isPath(h)
		}),
		outputCount: findColumn(header, func(h string) bool {
			return containsAny(h, "output", "records", "count") && !isPath(h) && !strings.Contains(h, "input")
		}),
		outputPath: findColumn(header, func(h string) bool { return !strings.Contains(h, "input") && isPath(h) }),
	}
	return cols, cols.stage >= 0 && (cols.outputCount >= 0 || cols.outputPath >= 0)
}

func (c summaryCols) summaries(rows [][]cell) []domain.ProcessingSummary {
	var out []domain.ProcessingSummary
	for _, row := range rows {
		stage := at(row, c.stage).text
		if stage == "" {
			continue
		}
		s := domain.ProcessingSummary{
			Stage:      stage,
			InputPath:  cleanPath(at(row, c.inputPath).text),
			OutputPath: cleanPath(at(row, c.outputPath).text),
		}
		s.InputRecords, _ = ParseCount(at(row, c.inputCount).text)
		s.OutputRecords, _ = ParseCount(at(row, c.outputCount).text)
		out = append(out, s)
	}
	return out
}

func cleanPath(p string) string {
	return strings.Trim(strings.TrimSpace(p), "`")
}

func at(row []cell, i int) cell {
	if i < 0 || i >= len(row) {
		return cell{}
	}
	return row[i]
}
