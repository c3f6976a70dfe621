package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spherical/offer-extractor/internal/domain"
)

const fence = "```"

// dateLayouts are tried in order; flyers print German dates.
var dateLayouts = []string{domain.DateLayout, "02.01.2006", "2.1.2006"}

// StripFence removes a leading ``` or ```json fence token and a trailing
// fence. Unfenced text is only trimmed.
func StripFence(content string) string {
	text := strings.TrimSpace(content)

	if strings.HasPrefix(text, fence) {
		text = text[len(fence):]
		if nl := strings.IndexByte(text, '\n'); nl >= 0 && isLanguageTag(text[:nl]) {
			text = text[nl+1:]
		} else if len(text) >= 4 && strings.EqualFold(text[:4], "json") {
			text = text[4:]
		}
	}

	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, fence)
	return strings.TrimSpace(text)
}

func isLanguageTag(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// outermostObject cuts text down to its outermost {...} block.
func outermostObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseContent decodes a model message into records using schema.
func ParseContent(content string, schema Schema) ([]domain.OfferRecord, error) {
	text := StripFence(content)
	if text == "" {
		return nil, domain.MalformedPayloadError("model returned empty content", nil)
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &root); err != nil {
		candidate, ok := outermostObject(text)
		if !ok {
			return nil, domain.MalformedPayloadError("content is not valid JSON", err)
		}
		if rerr := json.Unmarshal([]byte(candidate), &root); rerr != nil {
			return nil, domain.MalformedPayloadError("content is not valid JSON", err)
		}
	}

	raw, ok := root[schema.ArrayField]
	if !ok {
		return nil, domain.MalformedPayloadError(fmt.Sprintf("content lacks the %q field", schema.ArrayField), nil)
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, domain.MalformedPayloadError(fmt.Sprintf("%q is null", schema.ArrayField), nil)
	}

	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, domain.MalformedPayloadError(fmt.Sprintf("%q is not an array of objects", schema.ArrayField), err)
	}

	records := make([]domain.OfferRecord, 0, len(items))
	for i, item := range items {
		rec, err := schema.decodeItem(item)
		if err != nil {
			return nil, domain.SchemaViolationError(fmt.Sprintf("%s[%d]", schema.ArrayField, i), err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s Schema) decodeItem(item map[string]json.RawMessage) (domain.OfferRecord, error) {
	var rec domain.OfferRecord
	for _, f := range s.Fields {
		raw, present := item[f.Name]
		if !present || isNull(raw) {
			if f.Required {
				return rec, fmt.Errorf("missing required field %q", f.Name)
			}
			continue
		}

		value, empty, err := f.parse(raw)
		if err != nil {
			return rec, fmt.Errorf("field %q: %w", f.Name, err)
		}
		if empty {
			if f.Required {
				return rec, fmt.Errorf("required field %q is empty", f.Name)
			}
			continue
		}
		if f.Assign != nil {
			f.Assign(&rec, value)
		}
	}
	return rec, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// parse converts raw into the field's Go value. empty is set for blank strings.
func (f Field) parse(raw json.RawMessage) (value any, empty bool, err error) {
	switch f.Kind {
	case KindNumber:
		var n float64
		if err := json.Unmarshal(raw, &n); err == nil {
			return n, false, checkAmount(n)
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false, fmt.Errorf("expected a number")
		}
		if strings.TrimSpace(s) == "" {
			return nil, true, nil
		}
		n, err := ParseAmount(s)
		if err != nil {
			return nil, false, err
		}
		return n, false, nil

	case KindDate:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false, fmt.Errorf("expected a date string")
		}
		if strings.TrimSpace(s) == "" {
			return nil, true, nil
		}
		d, err := ParseFlyerDate(s)
		if err != nil {
			return nil, false, err
		}
		return d, false, nil

	default:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false, fmt.Errorf("expected a string")
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, true, nil
		}
		return s, false, nil
	}
}

// amountPattern matches text holding exactly one number, e.g. "1,99 €",
// "EUR 12.49" or "statt 1.299,00".
var amountPattern = regexp.MustCompile(`^(\D*?)(\d+(?:[.,]\d+)*)\D*$`)

// ParseAmount reads a price printed as text. Text with more than one number,
// such as "3 x 1,99 €", is rejected.
func ParseAmount(s string) (float64, error) {
	m := amountPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("no single amount in %q", s)
	}
	if strings.HasSuffix(strings.TrimSpace(m[1]), "-") {
		return 0, fmt.Errorf("invalid amount %q", s)
	}

	number := m[2]
	if strings.Contains(number, ",") {
		// German notation: dots group thousands, the comma is decimal
		number = strings.ReplaceAll(number, ".", "")
		number = strings.ReplaceAll(number, ",", ".")
	}

	n, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return n, checkAmount(n)
}

func checkAmount(n float64) error {
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return fmt.Errorf("invalid amount %v", n)
	}
	return nil
}

// ParseFlyerDate accepts ISO dates and dd.MM.yyyy.
func ParseFlyerDate(s string) (domain.Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.DateOf(t), nil
		}
	}
	return domain.Date{}, fmt.Errorf("invalid date %q", s)
}
