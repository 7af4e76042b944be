package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"tally/internal/corpus"
	"tally/internal/northwind"

	"github.com/stretchr/testify/assert"
)

func TestConfidence(t *testing.T) {
	withRows := &northwind.Result{Columns: []string{"n"}, Rows: [][]any{{int64(1)}}}
	empty := &northwind.Result{Columns: []string{"n"}}
	failed := &northwind.Result{Err: "no such table: x"}
	docs := policyDocs()

	cases := []struct {
		name    string
		result  *northwind.Result
		docs    []corpus.Scored
		repairs int
		want    float64
	}{
		{"nothing", nil, nil, 0, 0.5},
		{"sql rows", withRows, nil, 0, 0.8},
		{"docs only", nil, docs, 0, 0.7},
		{"both", withRows, docs, 0, 1.0},
		{"empty result adds nothing", empty, nil, 0, 0.5},
		{"failed result adds nothing", failed, nil, 0, 0.5},
		{"one repair", withRows, nil, 1, 0.72},
		{"two repairs", withRows, docs, 2, 0.81},
		{"decay floors at 0.1", nil, nil, 20, 0.1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, confidence(tc.result, tc.docs, tc.repairs), 1e-9)
		})
	}
}

func TestTruncateExplanation(t *testing.T) {
	assert.Equal(t, "Short.", truncateExplanation("Short."))
	assert.Equal(t, "One. Two.", truncateExplanation("One. Two. Three. Four."))

	long := strings.Repeat("x", 300)
	assert.Len(t, truncateExplanation(long), 200)

	// Multi-byte text truncates on rune boundaries, never mid-character.
	accented := strings.Repeat("é", 300)
	got := truncateExplanation(accented)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 200, utf8.RuneCountInString(got))

	assert.Equal(t, "", truncateExplanation("   "))
}

func TestFallbackCitations(t *testing.T) {
	withRows := &northwind.Result{Columns: []string{"n"}, Rows: [][]any{{int64(1)}}}
	docs := policyDocs()

	assert.Equal(t,
		[]string{"returns.md::chunk0", "Orders", "Order Details", "Products", "Customers"},
		fallbackCitations(withRows, docs))

	assert.Equal(t, []string{"returns.md::chunk0"}, fallbackCitations(nil, docs))

	assert.Empty(t, fallbackCitations(&northwind.Result{Err: "boom"}, nil))
}
