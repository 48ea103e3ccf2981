// Package llmjson pulls JSON payloads out of free-form model output.
package llmjson

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Clean strips Markdown code fences and surrounding whitespace.
func Clean(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if start := strings.Index(text, "```"); start >= 0 {
		// Fenced block embedded in prose.
		inner := text[start+3:]
		inner = strings.TrimPrefix(inner, "json")
		if end := strings.Index(inner, "```"); end >= 0 {
			text = inner[:end]
		}
	}

	return strings.TrimSpace(text)
}

// Object returns the first JSON object in text, or nil if there is none.
func Object(text string) map[string]any {
	raw := first(text, '{', '}')
	if raw == nil {
		return nil
	}
	var out map[string]any
	if err := decode(raw, &out); err != nil {
		return nil
	}
	return out
}

// Array returns the first JSON array in text, or nil if there is none.
func Array(text string) []any {
	raw := first(text, '[', ']')
	if raw == nil {
		return nil
	}
	var out []any
	if err := decode(raw, &out); err != nil {
		return nil
	}
	return out
}

// first locates the first complete JSON value opening with open. It decodes
// from the opening delimiter so trailing prose is ignored; if that fails the
// span up to the last closing delimiter is tried.
func first(text string, open, close byte) []byte {
	text = Clean(text)
	start := strings.IndexByte(text, open)
	if start < 0 {
		return nil
	}

	dec := json.NewDecoder(strings.NewReader(text[start:]))
	dec.UseNumber()
	var raw json.RawMessage
	if err := dec.Decode(&raw); err == nil {
		return raw
	}

	end := strings.LastIndexByte(text, close)
	if end <= start {
		return nil
	}
	span := []byte(text[start : end+1])
	if !json.Valid(span) {
		return nil
	}
	return span
}

func decode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
