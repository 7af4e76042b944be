// Package batch runs the agent over a JSONL file of questions and writes one
// JSONL answer per line, in input order. A question that fails still produces
// an output line, so downstream scoring never loses an id.
package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"tally/internal/agent"
)

// maxLineBytes bounds a single input line; policy questions are short but the
// scanner default of 64KB is too tight for pathological inputs.
const maxLineBytes = 1 << 20

// Request is one input line.
type Request struct {
	ID         string `json:"id"`
	Question   string `json:"question"`
	FormatHint string `json:"format_hint,omitempty"`
}

// Response is one output line.
type Response struct {
	ID          string   `json:"id"`
	FinalAnswer any      `json:"final_answer"`
	SQL         string   `json:"sql"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation"`
	Citations   []string `json:"citations"`
}

// Stats summarizes a batch run.
type Stats struct {
	Total   int
	Failed  int
	Skipped int
}

// Run answers every question in r and writes responses to w. Questions are
// processed sequentially; a single local Ollama instance serializes the model
// calls anyway, so parallelism would only reorder the output.
func Run(ctx context.Context, ag *agent.Agent, r io.Reader, w io.Writer, logger *slog.Logger) (Stats, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	enc := json.NewEncoder(w)

	var stats Stats
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		// A bad line loses only itself; the rest of the batch still runs.
		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			logger.Warn("skipping unparseable line", "line", lineNo, "error", err)
			stats.Skipped++
			continue
		}
		if req.Question == "" {
			logger.Warn("skipping line with no question", "line", lineNo, "id", req.ID)
			stats.Skipped++
			continue
		}

		stats.Total++
		resp := answerOne(ctx, ag, req, logger)
		if resp.Confidence <= 0.1 {
			stats.Failed++
		}
		if err := enc.Encode(resp); err != nil {
			return stats, fmt.Errorf("write response for %s: %w", req.ID, err)
		}

		if err := ctx.Err(); err != nil {
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read questions: %w", err)
	}
	return stats, nil
}

func answerOne(ctx context.Context, ag *agent.Agent, req Request, logger *slog.Logger) Response {
	logger.Info("answering", "id", req.ID)

	ans, err := ag.Answer(ctx, agent.Question{
		ID:         req.ID,
		Text:       req.Question,
		FormatHint: req.FormatHint,
	})
	if err != nil {
		logger.Error("question failed", "id", req.ID, "error", err)
		fallback := agent.Fallback(req.FormatHint)
		if s, ok := fallback.(string); ok && s == "" {
			// Free-text answers carry the error itself.
			fallback = truncate(fmt.Sprintf("error: %v", err), 200)
		}
		return Response{
			ID:          req.ID,
			FinalAnswer: fallback,
			Confidence:  0.1,
			Explanation: truncate(fmt.Sprintf("error: %v", err), 200),
			Citations:   []string{},
		}
	}

	citations := ans.Citations
	if citations == nil {
		citations = []string{}
	}
	return Response{
		ID:          req.ID,
		FinalAnswer: ans.Value,
		SQL:         ans.SQL,
		Confidence:  ans.Confidence,
		Explanation: ans.Explanation,
		Citations:   citations,
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
