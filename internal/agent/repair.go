package agent

import "strings"

// classifyError buckets a SQLite error message so the repair prompt can name
// what went wrong.
func classifyError(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "syntax error"):
		return "sql_syntax_error"
	case strings.Contains(lower, "no such table"):
		return "sql_table_error"
	case strings.Contains(lower, "no such column"):
		return "sql_column_error"
	default:
		return "sql_execution_error"
	}
}
