package extract

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// textKeys are tried in order; the first non-empty value wins
var textKeys = []string{"text", "sentence", "content", "body"}

const maxJSONLine = 16 * 1024 * 1024

// ExtractJSON reads JSON Lines, one object per line. When the first
// non-blank line is not a JSON value on its own, the file is decoded as a
// single document holding either an array of objects or one object.
// Later malformed lines are skipped.
func ExtractJSON(ctx context.Context, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	data = bytes.ToValidUTF8(data, nil)

	var texts []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxJSONLine)

	parsedAny := false
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var value any
		if err := json.Unmarshal(line, &value); err != nil {
			if parsedAny {
				continue
			}
			return extractJSONDocument(data)
		}
		parsedAny = true
		if obj, ok := value.(map[string]any); ok {
			if t, ok := pickText(obj); ok {
				texts = append(texts, t)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		// lines beyond the scanner limit only fit a whole-document decode
		if !parsedAny {
			return extractJSONDocument(data)
		}
		return texts, fmt.Errorf("scan lines: %w", err)
	}
	return texts, nil
}

func extractJSONDocument(data []byte) ([]string, error) {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("decode json document: %w", err)
	}

	var texts []string
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				if t, ok := pickText(obj); ok {
					texts = append(texts, t)
				}
			}
		}
	case map[string]any:
		if t, ok := pickText(v); ok {
			texts = append(texts, t)
		}
	}
	return texts, nil
}

func pickText(obj map[string]any) (string, bool) {
	for _, key := range textKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		if s := strings.TrimSpace(stringify(raw)); s != "" {
			return s, true
		}
	}
	return "", false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if !t {
			return ""
		}
		return "True"
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		if len(t) == 0 {
			return ""
		}
	case map[string]any:
		if len(t) == 0 {
			return ""
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
