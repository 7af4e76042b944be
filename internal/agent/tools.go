package agent

import (
	"context"
	"fmt"

	"tally/internal/corpus"
	"tally/internal/northwind"
)

// SearchDocs exposes raw corpus retrieval, for callers that want excerpts
// without the full pipeline.
func (a *Agent) SearchDocs(ctx context.Context, query string, k int) ([]corpus.Scored, error) {
	if a.retriever == nil {
		return nil, fmt.Errorf("no corpus index available")
	}
	return a.retriever.Search(ctx, query, k)
}

// RunSQL exposes raw query execution against the analytics database.
func (a *Agent) RunSQL(ctx context.Context, query string) (northwind.Result, error) {
	if a.executor == nil {
		return northwind.Result{}, fmt.Errorf("no database available")
	}
	return a.executor.Execute(ctx, query), nil
}

// SchemaText exposes the schema description the SQL generator sees.
func (a *Agent) SchemaText(ctx context.Context) (string, error) {
	if a.executor == nil {
		return "", fmt.Errorf("no database available")
	}
	return a.executor.SchemaText(ctx)
}
