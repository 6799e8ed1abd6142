package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table is one parsed grid of a tabular source. Page is 1-based; for a
// workbook it is the sheet position.
type Table struct {
	Page   int
	Name   string
	Header []string
	Rows   [][]string
}

// ReadTables returns the grids of a CSV file or workbook. Other file types
// carry no tables and return nil.
func ReadTables(ctx context.Context, path string) ([]Table, error) {
	switch normalizeExt(filepath.Ext(path)) {
	case ".csv":
		header, rows, err := readCSV(ctx, path)
		if err != nil || header == nil {
			return nil, err
		}
		return []Table{{Page: 1, Name: filepath.Base(path), Header: header, Rows: rows}}, nil
	case ".xlsx":
		return readWorkbookTables(ctx, path)
	}
	return nil, nil
}

func readWorkbookTables(ctx context.Context, path string) ([]Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var tables []Table
	for i, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 || isBlankRow(rows[0]) {
			continue
		}
		tables = append(tables, Table{Page: i + 1, Name: sheet, Header: rows[0], Rows: rows[1:]})
	}
	return tables, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
