package scenario

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON string

// ParseError describes why oracle output could not be interpreted as a
// scenario. It is recoverable: the repair loop feeds Reason back to the
// oracle instead of aborting.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parse scenario: " + e.Reason
}

// Parse interprets raw oracle output as a scenario. The text may wrap
// the JSON in markdown fences or prose; Parse extracts the first JSON
// object, checks it against the scenario schema and decodes it.
func Parse(raw string) (*Scenario, error) {
	payload, ok := ExtractJSON([]byte(raw))
	if !ok {
		return nil, &ParseError{Reason: "no JSON object found in response"}
	}

	if err := checkStructure(payload); err != nil {
		return nil, err
	}

	var s Scenario
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&s); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("decode scenario: %v", err)}
	}
	normalizeNumbers(&s)
	s.Raw = raw

	if len(s.Timeline) == 0 {
		return nil, &ParseError{Reason: "timeline must contain at least one frame"}
	}
	return &s, nil
}

func checkStructure(payload []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(payload),
	)
	if err != nil {
		return &ParseError{Reason: fmt.Sprintf("schema check: %v", err)}
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, schemaErr := range result.Errors() {
		msgs = append(msgs, schemaErr.String())
	}
	sort.Strings(msgs)
	return &ParseError{Reason: "scenario structure invalid: " + strings.Join(msgs, "; ")}
}

// ExtractJSON finds the first balanced JSON object in raw output,
// tolerating markdown fences and surrounding prose.
func ExtractJSON(out []byte) ([]byte, bool) {
	text := string(out)
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			text = rest[:end]
		}
	} else if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			text = rest[:end]
		}
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				candidate := []byte(text[start : i+1])
				if json.Valid(candidate) {
					return candidate, true
				}
				return nil, false
			}
		}
	}
	return nil, false
}

// normalizeNumbers rewrites json.Number values inside records to
// float64 so downstream comparisons see one numeric type.
func normalizeNumbers(s *Scenario) {
	for i := range s.Timeline {
		state := &s.Timeline[i].AccountState
		for _, table := range TableNames() {
			for _, rec := range state.Table(table) {
				for k, v := range rec {
					rec[k] = normalizeValue(v)
				}
			}
		}
	}
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		for i, item := range val {
			val[i] = normalizeValue(item)
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeValue(item)
		}
		return val
	default:
		return v
	}
}
