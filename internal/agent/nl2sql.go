package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// generate produces a cleaned SQLite SELECT for the question.
func (a *Agent) generate(ctx context.Context, question string, constraints map[string]any) (string, error) {
	prompt, err := a.generationPrompt(ctx, question, constraints)
	if err != nil {
		return "", err
	}

	raw, err := a.llm.Complete(ctx, nl2sqlSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("generate sql: %w", err)
	}

	query := extractSQL(raw)
	if query == "" {
		return "", fmt.Errorf("no sql statement in generation response")
	}
	return cleanSQL(query), nil
}

// repairSQL regenerates after a failure, feeding the failed statement and its
// classified error back to the model.
func (a *Agent) repairSQL(ctx context.Context, question, failedSQL, kind, errMsg string) (string, error) {
	schema, err := a.executor.SchemaText(ctx)
	if err != nil {
		return "", fmt.Errorf("load schema: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nSchema:\n%s\n", question, schema)
	fmt.Fprintf(&b, "\nFailed statement:\n%s\n", failedSQL)
	fmt.Fprintf(&b, "\nError (%s): %s\n", kind, errMsg)

	raw, err := a.llm.Complete(ctx, repairSystemPrompt, b.String())
	if err != nil {
		return "", fmt.Errorf("repair sql: %w", err)
	}

	query := extractSQL(raw)
	if query == "" {
		return "", fmt.Errorf("no sql statement in repair response")
	}
	return cleanSQL(query), nil
}

func (a *Agent) generationPrompt(ctx context.Context, question string, constraints map[string]any) (string, error) {
	schema, err := a.executor.SchemaText(ctx)
	if err != nil {
		return "", fmt.Errorf("load schema: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nSchema:\n%s\n", question, schema)
	if len(constraints) > 0 {
		if enc, err := json.Marshal(constraints); err == nil {
			fmt.Fprintf(&b, "\nExtracted constraints: %s\n", enc)
		}
	}
	return b.String(), nil
}
