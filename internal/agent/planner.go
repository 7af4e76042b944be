package agent

import (
	"context"
	"fmt"
	"strings"

	"tally/internal/corpus"
)

// plan extracts SQL-relevant constraints from the question, grounding business
// terms in any retrieved policy excerpts. Failures yield an empty constraint
// set; generation proceeds from the question alone.
func (a *Agent) plan(ctx context.Context, question string, docs []corpus.Scored) map[string]any {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	if len(docs) > 0 {
		b.WriteString("\n\nPolicy excerpts:\n")
		for _, d := range docs {
			fmt.Fprintf(&b, "[%s] %s\n", d.Chunk.ChunkID, d.Chunk.Content)
		}
	}

	raw, err := a.llm.Complete(ctx, plannerSystemPrompt, b.String())
	if err != nil {
		a.logger.Warn("planner call failed", "error", err)
		return map[string]any{}
	}

	constraints := map[string]any{}
	if err := extractJSON(raw, &constraints); err != nil {
		a.logger.Warn("planner response unparseable", "error", err)
		return map[string]any{}
	}
	return constraints
}
