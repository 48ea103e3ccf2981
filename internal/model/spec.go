package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// KnownSpecKeys lists the technical fields a spec provider may return and
// the watch record accepts. Any other key is ignored on merge.
var KnownSpecKeys = []string{
	"brand",
	"model",
	"case_material",
	"case_diameter",
	"case_height",
	"bezel_material",
	"crystal_type",
	"water_resistance",
	"dial_color",
	"dial_numerals",
	"bracelet_material",
	"bracelet_color",
	"clasp_material",
	"clasp_type",
	"movement_type",
	"caliber",
	"base_caliber",
	"power_reserve",
	"jewels",
	"frequency",
	"functions",
	"gender",
	"description",
	"delivery_scope",
}

// ImageURLsKey carries image references suggested by the search backend.
const ImageURLsKey = "image_urls"

var knownSpecKeySet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(KnownSpecKeys))
	for _, k := range KnownSpecKeys {
		m[k] = struct{}{}
	}
	return m
}()

// IsKnownSpecKey reports whether key is a watch spec column.
func IsKnownSpecKey(key string) bool {
	_, ok := knownSpecKeySet[key]
	return ok
}

// SpecFields is the sparse field map returned by a spec provider. Every
// field is optional.
type SpecFields map[string]any

// Known returns the subset with known spec keys and non-null values.
func (f SpecFields) Known() SpecFields {
	out := make(SpecFields, len(f))
	for k, v := range f {
		if v == nil || !IsKnownSpecKey(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// String returns the field rendered as text, or "" when absent.
func (f SpecFields) String(key string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return decimal.NewFromFloat(t).String()
	case json.Number:
		return t.String()
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			if p != nil {
				parts = append(parts, fmt.Sprint(p))
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}

// Number returns a numeric field such as case_diameter or jewels. Numeric
// strings with a trailing unit ("41 mm", "70h") are accepted.
func (f SpecFields) Number(key string) (decimal.Decimal, bool) {
	v, ok := f[key]
	if !ok || v == nil {
		return decimal.Zero, false
	}
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		return leadingNumber(t)
	}
	return decimal.Zero, false
}

func leadingNumber(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || s[end] == '.') {
		end++
	}
	if end == 0 {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.TrimRight(s[:end], "."))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ImageURLs returns the image_urls entry as strings, skipping non-strings.
func (f SpecFields) ImageURLs() []string {
	raw, ok := f[ImageURLsKey].([]any)
	if !ok {
		if ss, ok := f[ImageURLsKey].([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// TechnicalSpecResult is the outcome of one spec provider call.
type TechnicalSpecResult struct {
	Success     bool            `json:"success"`
	Provider    string          `json:"provider"`
	Fields      SpecFields      `json:"fields,omitempty"`
	Sources     []string        `json:"sources,omitempty"`
	RawResponse json.RawMessage `json:"raw_response,omitempty"`
	Error       string          `json:"error,omitempty"`
}
