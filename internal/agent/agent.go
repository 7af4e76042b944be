package agent

import (
	"context"
	"fmt"
	"log/slog"

	"tally/internal/corpus"
	"tally/internal/llm"
	"tally/internal/northwind"
)

// DefaultMaxRepairs bounds the SQL repair loop.
const DefaultMaxRepairs = 2

// Agent runs the question-answering pipeline.
type Agent struct {
	llm        llm.Client
	retriever  Searcher
	executor   Executor
	topK       int
	maxRepairs int
	logger     *slog.Logger
	tracer     *Tracer
	onProgress ProgressFunc
}

// New builds an agent from its collaborators. The LLM is required; the
// retriever and executor are each optional, disabling the corresponding
// evidence path when absent.
func New(cfg Config) (*Agent, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("agent requires an llm client")
	}
	if cfg.Retriever == nil && cfg.Executor == nil {
		return nil, fmt.Errorf("agent requires a retriever or an executor")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}
	maxRepairs := cfg.MaxRepairs
	if maxRepairs <= 0 {
		maxRepairs = DefaultMaxRepairs
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Agent{
		llm:        cfg.LLM,
		retriever:  cfg.Retriever,
		executor:   cfg.Executor,
		topK:       topK,
		maxRepairs: maxRepairs,
		logger:     logger,
		tracer:     cfg.Tracer,
		onProgress: cfg.OnProgress,
	}, nil
}

// Answer runs the full pipeline for one question: route, gather evidence,
// repair failed SQL up to the limit, synthesize, and coerce to the format
// hint. The question is routed exactly once; repairs never re-route.
func (a *Agent) Answer(ctx context.Context, q Question) (Answer, error) {
	a.progress(StageRouting)
	route, reasoning := a.classify(ctx, q.Text)
	route = a.narrowRoute(route)
	a.tracer.Step("router", map[string]any{
		"question_id": q.ID,
		"route":       string(route),
		"reasoning":   reasoning,
	})
	a.logger.Debug("routed question", "id", q.ID, "route", route)

	var docs []corpus.Scored
	if route.needsDocs() {
		a.progress(StageRetrieving)
		var err error
		docs, err = a.retriever.Search(ctx, q.Text, a.topK)
		if err != nil {
			a.logger.Warn("retrieval failed, continuing without documents", "error", err)
			docs = nil
		}
		a.tracer.Step("retriever", map[string]any{
			"question_id": q.ID,
			"chunks":      chunkIDs(docs),
		})
	}

	var (
		result  *northwind.Result
		sqlText string
		repairs int
	)
	if route.needsSQL() {
		a.progress(StagePlanning)
		constraints := a.plan(ctx, q.Text, docs)
		a.tracer.Step("planner", map[string]any{
			"question_id": q.ID,
			"constraints": constraints,
		})

		a.progress(StageGenerating)
		var err error
		sqlText, err = a.generate(ctx, q.Text, constraints)
		if err != nil {
			if len(docs) == 0 {
				return Answer{}, fmt.Errorf("sql path failed with no documents to fall back on: %w", err)
			}
			a.logger.Warn("sql generation failed, answering from documents", "error", err)
		} else {
			result, repairs = a.executeWithRepair(ctx, q, sqlText, &sqlText)
		}
	}

	a.progress(StageSynthesizing)
	synth, err := a.synthesize(ctx, q.Text, result, docs)
	if err != nil {
		return Answer{}, err
	}

	conf := confidence(result, docs, repairs)
	value, cerr := Coerce(synth.Answer, q.FormatHint)
	if cerr != nil {
		a.logger.Warn("answer does not match format hint", "hint", q.FormatHint, "error", cerr)
		value = Fallback(q.FormatHint)
		conf = 0.1
	}

	a.tracer.Step("synthesizer", map[string]any{
		"question_id": q.ID,
		"answer":      synth.Answer,
		"confidence":  conf,
		"citations":   synth.Citations,
		"repairs":     repairs,
	})
	a.progress(StageDone)

	return Answer{
		Route:       route,
		Value:       value,
		SQL:         sqlText,
		Confidence:  conf,
		Explanation: synth.Explanation,
		Citations:   synth.Citations,
		Repairs:     repairs,
		Retrieved:   docs,
		SQLResult:   result,
	}, nil
}

// executeWithRepair runs the statement and retries through the repair prompt
// while it fails, at most maxRepairs times. The final statement is written
// back through finalSQL.
func (a *Agent) executeWithRepair(ctx context.Context, q Question, sqlText string, finalSQL *string) (*northwind.Result, int) {
	a.progress(StageExecuting)
	res := a.executor.Execute(ctx, sqlText)
	a.traceExecution(q.ID, sqlText, res, 0)

	repairs := 0
	for !res.OK() && repairs < a.maxRepairs {
		a.progress(StageRepairing)
		kind := classifyError(res.Err)
		repaired, err := a.repairSQL(ctx, q.Text, sqlText, kind, res.Err)
		if err != nil {
			a.logger.Warn("sql repair failed", "error", err)
			break
		}
		repairs++
		sqlText = repaired
		a.progress(StageExecuting)
		res = a.executor.Execute(ctx, sqlText)
		a.traceExecution(q.ID, sqlText, res, repairs)
	}

	*finalSQL = sqlText
	return &res, repairs
}

// narrowRoute downgrades a route when a collaborator for it is missing.
func (a *Agent) narrowRoute(route Route) Route {
	if a.retriever == nil && route.needsDocs() {
		a.logger.Warn("no corpus available, narrowing route to sql", "route", route)
		return RouteSQL
	}
	if a.executor == nil && route.needsSQL() {
		a.logger.Warn("no database available, narrowing route to rag", "route", route)
		return RouteRAG
	}
	return route
}

func (a *Agent) traceExecution(questionID, sqlText string, res northwind.Result, attempt int) {
	fields := map[string]any{
		"question_id": questionID,
		"sql":         sqlText,
		"attempt":     attempt,
		"rows":        len(res.Rows),
	}
	if !res.OK() {
		fields["error"] = res.Err
		fields["error_kind"] = classifyError(res.Err)
	}
	a.tracer.Step("executor", fields)
}

func (a *Agent) progress(stage Stage) {
	if a.onProgress != nil {
		a.onProgress(stage)
	}
}

func chunkIDs(docs []corpus.Scored) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.Chunk.ChunkID
	}
	return ids
}
