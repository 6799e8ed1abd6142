package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractPDF returns the plain text of every non-empty page
func ExtractPDF(ctx context.Context, path string) (texts []string, err error) {
	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			texts = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return texts, fmt.Errorf("page %d: %w", i, err)
		}
		if t := strings.TrimSpace(text); t != "" {
			texts = append(texts, t)
		}
	}
	return texts, nil
}
