package insight

import (
	"math"
	"strings"

	"finsight/internal/extract"
	"finsight/pkg/contracts/domain"
)

const (
	// MaxTables bounds the previews attached to one analysis
	MaxTables = 6
	// TablePreviewRows is the number of data rows shown per table
	TablePreviewRows = 6
)

// Statement kinds a table can be classified as
const (
	TableCashFlow        = "Cash Flow"
	TableBalanceSheet    = "Balance Sheet"
	TableIncomeStatement = "Income Statement"
	TableUnknown         = "Unknown"
)

// cash flow goes first, its line items repeat net income
var tableKinds = []struct {
	kind string
	keys []string
}{
	{TableCashFlow, []string{"cash flow", "operating activities", "investing activities", "financing activities"}},
	{TableBalanceSheet, []string{"total assets", "liabilities", "shareholders' equity", "stockholders' equity", "balance sheet"}},
	{TableIncomeStatement, []string{"revenue", "net income", "gross profit", "operating income", "earnings per share", "income statement"}},
}

// PreviewTables classifies the first MaxTables tables and keeps the head of each
func PreviewTables(tables []extract.Table) []domain.TablePreview {
	if len(tables) > MaxTables {
		tables = tables[:MaxTables]
	}

	previews := make([]domain.TablePreview, 0, len(tables))
	for _, t := range tables {
		head := t.Rows
		if len(head) > TablePreviewRows {
			head = head[:TablePreviewRows]
		}

		raw := make([][]string, 0, len(head)+1)
		raw = append(raw, append([]string(nil), t.Header...))
		numeric := make([][]*float64, 0, len(head))
		for _, row := range head {
			raw = append(raw, append([]string(nil), row...))
			cells := make([]*float64, len(row))
			for i, cell := range row {
				if v, ok := parseCell(cell); ok {
					cells[i] = &v
				}
			}
			numeric = append(numeric, cells)
		}

		previews = append(previews, domain.TablePreview{
			Page:    t.Page,
			Name:    t.Name,
			Type:    ClassifyTable(t),
			Rows:    len(t.Rows),
			Raw:     raw,
			Numeric: numeric,
		})
	}
	return previews
}

// ClassifyTable names the statement a table most likely belongs to, judged
// by its header and its first column.
func ClassifyTable(t extract.Table) string {
	var b strings.Builder
	b.WriteString(strings.Join(t.Header, " "))
	for _, row := range t.Rows {
		if len(row) > 0 {
			b.WriteByte(' ')
			b.WriteString(row[0])
		}
	}
	haystack := strings.ToLower(b.String())

	for _, k := range tableKinds {
		for _, key := range k.keys {
			if strings.Contains(haystack, key) {
				return k.kind
			}
		}
	}
	return TableUnknown
}

// parseCell reads accounting-style numbers: "$1,250", "12.5%" and "(300)"
// for negatives.
func parseCell(cell string) (float64, bool) {
	s := strings.TrimSpace(cell)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return 0, false
	}

	v, ok := parseNumber(s)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}
