package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// textColumnKeys mark a header as carrying free text
var textColumnKeys = []string{"text", "sentence", "content", "body", "headline"}

// TextColumns returns the indexes of the header cells that name a text
// column. With no match the first column is used.
func TextColumns(header []string) []int {
	var cols []int
	for i, name := range header {
		lower := strings.ToLower(name)
		for _, key := range textColumnKeys {
			if strings.Contains(lower, key) {
				cols = append(cols, i)
				break
			}
		}
	}
	if len(cols) == 0 && len(header) > 0 {
		cols = []int{0}
	}
	return cols
}

// ExtractCSV returns the non-empty cells of the text columns, column by
// column. Files that are not valid UTF-8 are decoded as ISO-8859-1.
func ExtractCSV(ctx context.Context, path string) ([]string, error) {
	header, rows, err := readCSV(ctx, path)
	if err != nil || header == nil {
		return nil, err
	}
	return columnTexts(header, rows), nil
}

// readCSV returns the header and the well-formed rows of a CSV file
func readCSV(ctx context.Context, path string) ([]string, [][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read file: %w", err)
	}
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, nil, fmt.Errorf("decode latin-1: %w", err)
		}
		data = decoded
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row: %w", err)
		}
		// rows wider than the header are malformed
		if len(row) > len(header) {
			continue
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// ExtractXLSX applies the CSV column rule to every sheet of a workbook,
// treating the first row of each sheet as its header.
func ExtractXLSX(ctx context.Context, path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var texts []string
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		texts = append(texts, columnTexts(rows[0], rows[1:])...)
	}
	return texts, nil
}

func columnTexts(header []string, rows [][]string) []string {
	var texts []string
	for _, col := range TextColumns(header) {
		for _, row := range rows {
			if col >= len(row) {
				continue
			}
			if t := strings.TrimSpace(row[col]); t != "" {
				texts = append(texts, t)
			}
		}
	}
	return texts
}
