package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var numberRe = regexp.MustCompile(`-?\d[\d,]*\.?\d*`)

// Coerce converts the synthesized answer text to the shape a format hint
// asks for. Hints are free-form; anything unrecognized passes the text
// through unchanged.
func Coerce(answer, hint string) (any, error) {
	hint = strings.TrimSpace(hint)
	switch {
	case hint == "" || hint == "str" || hint == "string":
		return answer, nil
	case hint == "int":
		f, err := extractNumber(answer)
		if err != nil {
			return nil, err
		}
		return int64(f), nil
	case hint == "float" || hint == "number":
		return extractNumber(answer)
	case hint == "list" || strings.HasPrefix(hint, "list["):
		return coerceList(answer)
	case hint == "object" || strings.HasPrefix(hint, "{"):
		return coerceObject(answer)
	default:
		return answer, nil
	}
}

// Fallback is the zero value for a hint, used when coercion fails.
func Fallback(hint string) any {
	hint = strings.TrimSpace(hint)
	switch {
	case hint == "int":
		return int64(0)
	case hint == "float" || hint == "number":
		return 0.0
	case hint == "list" || strings.HasPrefix(hint, "list["):
		return []any{}
	case hint == "object" || strings.HasPrefix(hint, "{"):
		return map[string]any{}
	default:
		return ""
	}
}

// extractNumber finds the first number in the text, tolerating currency
// symbols and thousands separators.
func extractNumber(s string) (float64, error) {
	match := numberRe.FindString(s)
	if match == "" {
		return 0, fmt.Errorf("no number in %q", s)
	}
	match = strings.ReplaceAll(match, ",", "")
	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", match, err)
	}
	return f, nil
}

func coerceList(s string) (any, error) {
	s = strings.TrimSpace(s)

	if start := strings.IndexByte(s, '['); start >= 0 {
		if end := strings.LastIndexByte(s, ']'); end > start {
			var list []any
			if err := json.Unmarshal([]byte(s[start:end+1]), &list); err == nil {
				return list, nil
			}
		}
	}

	// Fall back to splitting prose on lines or commas.
	sep := "\n"
	if !strings.Contains(s, "\n") {
		sep = ","
	}
	var list []any
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(strings.TrimLeft(part, "-*0123456789. "))
		if part != "" {
			list = append(list, part)
		}
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no list items in %q", s)
	}
	return list, nil
}

func coerceObject(s string) (any, error) {
	obj := map[string]any{}
	if err := extractJSON(s, &obj); err != nil {
		return nil, fmt.Errorf("no object in %q: %w", s, err)
	}
	return obj, nil
}
