package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"tally/internal/corpus"
	"tally/internal/northwind"
)

const (
	synthRowLimit       = 5
	maxExplanationChars = 200
)

type synthesis struct {
	Answer      string
	Explanation string
	Citations   []string
}

// synthesize turns the gathered evidence into the final answer text. The
// model sees at most five result rows; the full result set still backs the
// confidence score.
func (a *Agent) synthesize(ctx context.Context, question string, result *northwind.Result, docs []corpus.Scored) (synthesis, error) {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nEvidence:\n")

	hasEvidence := false
	if result != nil && result.OK() && len(result.Rows) > 0 {
		rows := result.Rows
		if len(rows) > synthRowLimit {
			rows = rows[:synthRowLimit]
		}
		enc, err := json.Marshal(map[string]any{
			"columns": result.Columns,
			"rows":    rows,
		})
		if err != nil {
			return synthesis{}, fmt.Errorf("encode sql evidence: %w", err)
		}
		fmt.Fprintf(&b, "SQL results (%d rows total, first %d shown): %s\n", len(result.Rows), len(rows), enc)
		hasEvidence = true
	} else if result != nil && !result.OK() {
		fmt.Fprintf(&b, "SQL query failed: %s\n", result.Err)
	}

	for _, d := range docs {
		fmt.Fprintf(&b, "Document [%s]: %s\n", d.Chunk.ChunkID, d.Chunk.Content)
		hasEvidence = true
	}
	if !hasEvidence {
		b.WriteString("(none)\n")
	}

	raw, err := a.llm.Complete(ctx, synthesizerSystemPrompt, b.String())
	if err != nil {
		return synthesis{}, fmt.Errorf("synthesize: %w", err)
	}

	var resp struct {
		Answer      string   `json:"answer"`
		Explanation string   `json:"explanation"`
		Citations   []string `json:"citations"`
	}
	if err := extractJSON(raw, &resp); err != nil || strings.TrimSpace(resp.Answer) == "" {
		// Model ignored the shape; take the whole response as the answer.
		resp.Answer = strings.TrimSpace(raw)
		resp.Explanation = ""
		resp.Citations = nil
	}
	if resp.Answer == "" {
		return synthesis{}, fmt.Errorf("empty synthesis response")
	}

	citations := resp.Citations
	if len(citations) == 0 {
		citations = fallbackCitations(result, docs)
	}

	return synthesis{
		Answer:      resp.Answer,
		Explanation: truncateExplanation(resp.Explanation),
		Citations:   citations,
	}, nil
}

// fallbackCitations names the evidence sources directly when the model omits
// them: retrieved chunk ids, plus the core tables when SQL rows back the
// answer.
func fallbackCitations(result *northwind.Result, docs []corpus.Scored) []string {
	var citations []string
	for _, d := range docs {
		citations = append(citations, d.Chunk.ChunkID)
	}
	if result != nil && result.OK() && len(result.Rows) > 0 {
		citations = append(citations, "Orders", "Order Details", "Products", "Customers")
	}
	return citations
}

// truncateExplanation keeps at most two sentences and 200 characters,
// counted in runes so the cut never lands inside a multi-byte character.
func truncateExplanation(s string) string {
	s = strings.TrimSpace(s)
	sentences := 0
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			sentences++
			if sentences == 2 {
				s = s[:i+1]
				break
			}
		}
	}
	if utf8.RuneCountInString(s) > maxExplanationChars {
		s = string([]rune(s)[:maxExplanationChars])
	}
	return s
}

// confidence scores the answer from what evidence backed it: 0.5 base, +0.3
// for SQL rows, +0.2 for documents, decayed 10% per repair, clamped to
// [0.1, 1.0].
func confidence(result *northwind.Result, docs []corpus.Scored, repairs int) float64 {
	c := 0.5
	if result != nil && result.OK() && len(result.Rows) > 0 {
		c += 0.3
	}
	if len(docs) > 0 {
		c += 0.2
	}
	c *= math.Pow(0.9, float64(repairs))
	return math.Min(1.0, math.Max(0.1, c))
}
