// Package agent answers retail-analytics questions. Each question is routed
// to retrieval, SQL generation, or both, executed against the Northwind
// database and the policy corpus, and synthesized into a cited answer by a
// local language model. Failed SQL is repaired by feeding the error back to
// the generator, at most twice.
package agent

import (
	"context"
	"log/slog"

	"tally/internal/corpus"
	"tally/internal/llm"
	"tally/internal/northwind"
)

// Route says which evidence paths a question takes.
type Route string

const (
	RouteRAG    Route = "rag"
	RouteSQL    Route = "sql"
	RouteHybrid Route = "hybrid"
)

// needsDocs reports whether the route includes retrieval.
func (r Route) needsDocs() bool { return r == RouteRAG || r == RouteHybrid }

// needsSQL reports whether the route includes the SQL path.
func (r Route) needsSQL() bool { return r == RouteSQL || r == RouteHybrid }

// Question is a single question to answer. FormatHint is optional and
// constrains the shape of the final answer ("int", "float", "list",
// "list[...]", "object", "{...}", default "str").
type Question struct {
	ID         string
	Text       string
	FormatHint string
}

// Answer is the terminal artifact of the pipeline.
type Answer struct {
	Route       Route
	Value       any // coerced per the format hint
	SQL         string
	Confidence  float64
	Explanation string
	Citations   []string
	Repairs     int
	Retrieved   []corpus.Scored
	SQLResult   *northwind.Result
}

// Searcher finds corpus chunks relevant to a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]corpus.Scored, error)
}

// Executor runs SQL and describes the schema it runs against.
type Executor interface {
	Execute(ctx context.Context, query string) northwind.Result
	SchemaText(ctx context.Context) (string, error)
}

// Stage identifies a pipeline step for progress reporting.
type Stage string

const (
	StageRouting      Stage = "routing"
	StageRetrieving   Stage = "retrieving"
	StagePlanning     Stage = "planning"
	StageGenerating   Stage = "generating"
	StageExecuting    Stage = "executing"
	StageRepairing    Stage = "repairing"
	StageSynthesizing Stage = "synthesizing"
	StageDone         Stage = "done"
)

// ProgressFunc is called as the pipeline moves between stages.
type ProgressFunc func(stage Stage)

// Config holds the agent's collaborators.
type Config struct {
	LLM       llm.Client
	Retriever Searcher
	Executor  Executor

	// TopK is the number of chunks retrieved per question (default 3).
	TopK int
	// MaxRepairs bounds the SQL repair loop (default 2, so at most three
	// executor invocations per question).
	MaxRepairs int

	Logger     *slog.Logger
	Tracer     *Tracer
	OnProgress ProgressFunc
}
