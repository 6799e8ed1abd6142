package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ExtractText returns the whole file as one unit. Invalid UTF-8 is dropped.
func ExtractText(_ context.Context, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	content := strings.TrimSpace(strings.ToValidUTF8(string(data), ""))
	if content == "" {
		return nil, nil
	}
	return []string{content}, nil
}

// ExtractHTML returns the visible text of an HTML document as one unit
func ExtractHTML(_ context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	text, err := VisibleText(f)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	return []string{text}, nil
}

// VisibleText collects the text nodes of an HTML stream, skipping script,
// style and template content, and joins them with single spaces.
func VisibleText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var parts []string
	hidden := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", fmt.Errorf("parse html: %w", err)
			}
			return strings.Join(parts, " "), nil
		case html.StartTagToken:
			if isHiddenTag(z) {
				hidden++
			}
		case html.EndTagToken:
			if isHiddenTag(z) && hidden > 0 {
				hidden--
			}
		case html.TextToken:
			if hidden > 0 {
				continue
			}
			if t := strings.TrimSpace(strings.ToValidUTF8(string(z.Text()), "")); t != "" {
				parts = append(parts, t)
			}
		}
	}
}

func isHiddenTag(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch atom.Lookup(name) {
	case atom.Script, atom.Style, atom.Template:
		return true
	}
	return false
}
