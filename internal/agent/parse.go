package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// extractJSON pulls the first JSON object out of a model response. Local
// models wrap JSON in prose or code fences often enough that plain
// unmarshalling is not an option.
func extractJSON(text string, v any) error {
	text = strings.TrimSpace(text)

	if fence := fenceRe.FindStringSubmatch(text); fence != nil {
		text = fence[1]
	}

	start := strings.IndexByte(text, '{')
	if start >= 0 {
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
					return json.Unmarshal([]byte(text[start:i+1]), v)
				}
			}
		}
	}
	return json.Unmarshal([]byte(text), v)
}

var (
	fenceRe    = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	sqlFenceRe = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")

	orderDetailsRe = regexp.MustCompile(`(?i)("Order Details"|\[Order Details\]|'Order Details'|Order_Details)`)
	orderItemsRe   = regexp.MustCompile(`(?i)\border_items\b`)
	customerNameRe = regexp.MustCompile(`\bCustomerName\b`)
)

// extractSQL recovers a statement from a generation response. It tries the
// structured JSON shape first, then a sql code fence, then the raw text when
// it already reads like a query.
func extractSQL(text string) string {
	var resp struct {
		SQL string `json:"sql"`
	}
	if err := extractJSON(text, &resp); err == nil && strings.TrimSpace(resp.SQL) != "" {
		return strings.TrimSpace(resp.SQL)
	}

	if fence := sqlFenceRe.FindStringSubmatch(text); fence != nil {
		if candidate := strings.TrimSpace(fence[1]); looksLikeSQL(candidate) {
			return candidate
		}
	}

	if candidate := strings.TrimSpace(text); looksLikeSQL(candidate) {
		return candidate
	}
	return ""
}

func looksLikeSQL(s string) bool {
	upper := strings.ToUpper(strings.TrimSpace(s))
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

// cleanSQL normalizes the identifier mistakes local models make against this
// schema: the legacy line-items table name instead of the order_items view,
// and CustomerName for the real CompanyName column.
func cleanSQL(query string) string {
	query = strings.TrimSpace(query)
	query = strings.TrimSuffix(query, ";")
	query = orderDetailsRe.ReplaceAllString(query, "order_items")
	query = orderItemsRe.ReplaceAllString(query, "order_items")
	query = customerNameRe.ReplaceAllString(query, "CompanyName")
	return query
}
