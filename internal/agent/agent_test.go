package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"tally/internal/corpus"
	"tally/internal/llm"
	"tally/internal/northwind"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLM scripts responses per pipeline role, recognized by the system
// prompt, and counts how often each role was invoked.
type fakeLLM struct {
	routeResp  string
	planResp   string
	sqlResp    string
	repairResp string
	synthResp  string

	errOn string // role whose call should fail

	calls map[string]int
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		routeResp:  `{"reasoning": "needs data", "route": "sql"}`,
		planResp:   `{}`,
		sqlResp:    `{"sql": "SELECT COUNT(*) FROM orders", "explanation": "count"}`,
		repairResp: `{"sql": "SELECT COUNT(*) FROM Orders", "explanation": "fixed casing"}`,
		synthResp:  `{"answer": "42", "explanation": "There are 42 orders.", "citations": ["Orders"]}`,
		calls:      map[string]int{},
	}
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string) (string, error) {
	role := ""
	switch {
	case strings.Contains(system, "routing classifier"):
		role = "router"
	case strings.Contains(system, "extract concrete constraints"):
		role = "planner"
	case strings.Contains(system, "fix a failed"):
		role = "repair"
	case strings.Contains(system, "translate analytics questions"):
		role = "nl2sql"
	case strings.Contains(system, "final answer"):
		role = "synth"
	default:
		return "", fmt.Errorf("unrecognized system prompt")
	}
	f.calls[role]++
	if f.errOn == role {
		return "", fmt.Errorf("%s unavailable", role)
	}
	switch role {
	case "router":
		return f.routeResp, nil
	case "planner":
		return f.planResp, nil
	case "nl2sql":
		return f.sqlResp, nil
	case "repair":
		return f.repairResp, nil
	default:
		return f.synthResp, nil
	}
}

func (f *fakeLLM) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return "", fmt.Errorf("not used")
}

// fakeExecutor returns its scripted results in order, repeating the last one.
type fakeExecutor struct {
	results  []northwind.Result
	executed []string
}

func (f *fakeExecutor) Execute(ctx context.Context, query string) northwind.Result {
	f.executed = append(f.executed, query)
	i := len(f.executed) - 1
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i]
}

func (f *fakeExecutor) SchemaText(ctx context.Context) (string, error) {
	return "Table orders: CREATE TABLE orders (OrderID, OrderDate)\n", nil
}

type fakeSearcher struct {
	docs []corpus.Scored
	err  error
}

func (f *fakeSearcher) Search(ctx context.Context, query string, k int) ([]corpus.Scored, error) {
	return f.docs, f.err
}

func okResult(rows int) northwind.Result {
	res := northwind.Result{Columns: []string{"n"}}
	for i := 0; i < rows; i++ {
		res.Rows = append(res.Rows, []any{int64(i)})
	}
	return res
}

func policyDocs() []corpus.Scored {
	return []corpus.Scored{
		{Chunk: corpus.Chunk{ChunkID: "returns.md::chunk0", Source: "returns.md", Content: "Returns are accepted within 30 days."}, Score: 0.8},
	}
}

func newTestAgent(t *testing.T, fl *fakeLLM, exec Executor, search Searcher) *Agent {
	t.Helper()
	ag, err := New(Config{LLM: fl, Executor: exec, Retriever: search})
	require.NoError(t, err)
	return ag
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{LLM: newFakeLLM()})
	assert.Error(t, err)

	_, err = New(Config{LLM: newFakeLLM(), Executor: &fakeExecutor{results: []northwind.Result{okResult(1)}}})
	assert.NoError(t, err)
}

func TestAnswerSQLRoute(t *testing.T) {
	fl := newFakeLLM()
	exec := &fakeExecutor{results: []northwind.Result{okResult(1)}}
	ag := newTestAgent(t, fl, exec, &fakeSearcher{})

	ans, err := ag.Answer(context.Background(), Question{ID: "q1", Text: "How many orders are there?"})
	require.NoError(t, err)

	assert.Equal(t, RouteSQL, ans.Route)
	assert.Equal(t, "42", ans.Value)
	assert.Equal(t, "SELECT COUNT(*) FROM orders", ans.SQL)
	assert.Equal(t, 0, ans.Repairs)
	assert.InDelta(t, 0.8, ans.Confidence, 1e-9)
	assert.Equal(t, []string{"Orders"}, ans.Citations)

	// SQL route never touches the retriever or planner-with-docs path, and
	// routes exactly once.
	assert.Equal(t, 1, fl.calls["router"])
	assert.Equal(t, 1, fl.calls["nl2sql"])
	assert.Equal(t, 0, fl.calls["repair"])
	assert.Len(t, exec.executed, 1)
}

func TestAnswerRAGRoute(t *testing.T) {
	fl := newFakeLLM()
	fl.routeResp = `{"reasoning": "policy question", "route": "rag"}`
	fl.synthResp = `{"answer": "30 days", "explanation": "Per the return policy.", "citations": ["returns.md::chunk0"]}`
	exec := &fakeExecutor{results: []northwind.Result{okResult(1)}}
	ag := newTestAgent(t, fl, exec, &fakeSearcher{docs: policyDocs()})

	ans, err := ag.Answer(context.Background(), Question{Text: "What is the return window?"})
	require.NoError(t, err)

	assert.Equal(t, RouteRAG, ans.Route)
	assert.Equal(t, "30 days", ans.Value)
	assert.Empty(t, ans.SQL)
	assert.InDelta(t, 0.7, ans.Confidence, 1e-9)
	assert.Empty(t, exec.executed)
	assert.Equal(t, 0, fl.calls["nl2sql"])
}

func TestAnswerHybridRoute(t *testing.T) {
	fl := newFakeLLM()
	fl.routeResp = `{"reasoning": "rule plus data", "route": "hybrid"}`
	exec := &fakeExecutor{results: []northwind.Result{okResult(3)}}
	ag := newTestAgent(t, fl, exec, &fakeSearcher{docs: policyDocs()})

	ans, err := ag.Answer(context.Background(), Question{Text: "Revenue from returnable orders?"})
	require.NoError(t, err)

	assert.Equal(t, RouteHybrid, ans.Route)
	assert.Len(t, ans.Retrieved, 1)
	assert.InDelta(t, 1.0, ans.Confidence, 1e-9)
	assert.Equal(t, 1, fl.calls["planner"])
}

func TestRouterFallsBackToHybrid(t *testing.T) {
	cases := []struct {
		name string
		resp string
	}{
		{"garbage", "no json here"},
		{"unknown route", `{"route": "graph"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fl := newFakeLLM()
			fl.routeResp = tc.resp
			exec := &fakeExecutor{results: []northwind.Result{okResult(1)}}
			ag := newTestAgent(t, fl, exec, &fakeSearcher{docs: policyDocs()})

			ans, err := ag.Answer(context.Background(), Question{Text: "anything"})
			require.NoError(t, err)
			assert.Equal(t, RouteHybrid, ans.Route)
		})
	}

	t.Run("router error", func(t *testing.T) {
		fl := newFakeLLM()
		fl.errOn = "router"
		exec := &fakeExecutor{results: []northwind.Result{okResult(1)}}
		ag := newTestAgent(t, fl, exec, &fakeSearcher{docs: policyDocs()})

		ans, err := ag.Answer(context.Background(), Question{Text: "anything"})
		require.NoError(t, err)
		assert.Equal(t, RouteHybrid, ans.Route)
	})
}

func TestRouteNarrowsToAvailableSources(t *testing.T) {
	fl := newFakeLLM()
	fl.routeResp = `{"route": "hybrid"}`
	exec := &fakeExecutor{results: []northwind.Result{okResult(1)}}
	ag := newTestAgent(t, fl, exec, nil)

	ans, err := ag.Answer(context.Background(), Question{Text: "anything"})
	require.NoError(t, err)
	assert.Equal(t, RouteSQL, ans.Route)

	fl2 := newFakeLLM()
	fl2.routeResp = `{"route": "sql"}`
	fl2.synthResp = `{"answer": "unknown", "explanation": "", "citations": []}`
	ag2 := newTestAgent(t, fl2, nil, &fakeSearcher{docs: policyDocs()})

	ans2, err := ag2.Answer(context.Background(), Question{Text: "anything"})
	require.NoError(t, err)
	assert.Equal(t, RouteRAG, ans2.Route)
}

func TestRepairLoopRecovers(t *testing.T) {
	fl := newFakeLLM()
	exec := &fakeExecutor{results: []northwind.Result{
		{Err: "no such table: Orderz"},
		okResult(1),
	}}
	ag := newTestAgent(t, fl, exec, &fakeSearcher{})

	ans, err := ag.Answer(context.Background(), Question{Text: "How many orders?"})
	require.NoError(t, err)

	assert.Equal(t, 1, ans.Repairs)
	assert.Len(t, exec.executed, 2)
	assert.Equal(t, 1, fl.calls["repair"])
	// Confidence decays 10% per repair: (0.5 + 0.3) * 0.9.
	assert.InDelta(t, 0.72, ans.Confidence, 1e-9)
	// The final statement is the repaired one.
	assert.Equal(t, "SELECT COUNT(*) FROM Orders", ans.SQL)
	// Repairs never re-route.
	assert.Equal(t, 1, fl.calls["router"])
}

func TestRepairLoopGivesUpAfterLimit(t *testing.T) {
	fl := newFakeLLM()
	exec := &fakeExecutor{results: []northwind.Result{{Err: "near \"SELEC\": syntax error"}}}
	ag := newTestAgent(t, fl, exec, &fakeSearcher{})

	ans, err := ag.Answer(context.Background(), Question{Text: "How many orders?"})
	require.NoError(t, err)

	// Initial attempt plus two repairs, never more.
	assert.Len(t, exec.executed, 3)
	assert.Equal(t, 2, ans.Repairs)
	assert.Equal(t, 2, fl.calls["repair"])
	require.NotNil(t, ans.SQLResult)
	assert.False(t, ans.SQLResult.OK())
	// No rows and no docs: 0.5 * 0.9^2, floored above 0.1.
	assert.InDelta(t, 0.405, ans.Confidence, 1e-9)
}

func TestGenerationFailureFallsBackToDocs(t *testing.T) {
	fl := newFakeLLM()
	fl.routeResp = `{"route": "hybrid"}`
	fl.errOn = "nl2sql"
	exec := &fakeExecutor{results: []northwind.Result{okResult(1)}}
	ag := newTestAgent(t, fl, exec, &fakeSearcher{docs: policyDocs()})

	ans, err := ag.Answer(context.Background(), Question{Text: "anything"})
	require.NoError(t, err)
	assert.Empty(t, ans.SQL)
	assert.Empty(t, exec.executed)
	assert.InDelta(t, 0.7, ans.Confidence, 1e-9)
}

func TestGenerationFailureWithoutDocsErrors(t *testing.T) {
	fl := newFakeLLM()
	fl.errOn = "nl2sql"
	exec := &fakeExecutor{results: []northwind.Result{okResult(1)}}
	ag := newTestAgent(t, fl, exec, &fakeSearcher{})

	_, err := ag.Answer(context.Background(), Question{Text: "How many orders?"})
	assert.Error(t, err)
}

func TestRetrievalFailureIsNonFatal(t *testing.T) {
	fl := newFakeLLM()
	fl.routeResp = `{"route": "hybrid"}`
	exec := &fakeExecutor{results: []northwind.Result{okResult(1)}}
	ag := newTestAgent(t, fl, exec, &fakeSearcher{err: fmt.Errorf("embed service down")})

	ans, err := ag.Answer(context.Background(), Question{Text: "anything"})
	require.NoError(t, err)
	assert.Empty(t, ans.Retrieved)
	// SQL rows only: 0.5 + 0.3.
	assert.InDelta(t, 0.8, ans.Confidence, 1e-9)
}

func TestFormatHintCoercion(t *testing.T) {
	fl := newFakeLLM()
	fl.synthResp = `{"answer": "There are 42 orders.", "explanation": "", "citations": ["Orders"]}`
	exec := &fakeExecutor{results: []northwind.Result{okResult(1)}}
	ag := newTestAgent(t, fl, exec, &fakeSearcher{})

	ans, err := ag.Answer(context.Background(), Question{Text: "How many orders?", FormatHint: "int"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), ans.Value)
}

func TestFormatHintMismatchFloorsConfidence(t *testing.T) {
	fl := newFakeLLM()
	fl.synthResp = `{"answer": "cannot determine from the data", "explanation": "", "citations": []}`
	exec := &fakeExecutor{results: []northwind.Result{okResult(1)}}
	ag := newTestAgent(t, fl, exec, &fakeSearcher{})

	ans, err := ag.Answer(context.Background(), Question{Text: "How many orders?", FormatHint: "int"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), ans.Value)
	assert.InDelta(t, 0.1, ans.Confidence, 1e-9)
}

func TestProgressStagesInOrder(t *testing.T) {
	fl := newFakeLLM()
	fl.routeResp = `{"route": "hybrid"}`
	exec := &fakeExecutor{results: []northwind.Result{okResult(1)}}

	var stages []Stage
	ag, err := New(Config{
		LLM:        fl,
		Executor:   exec,
		Retriever:  &fakeSearcher{docs: policyDocs()},
		OnProgress: func(s Stage) { stages = append(stages, s) },
	})
	require.NoError(t, err)

	_, err = ag.Answer(context.Background(), Question{Text: "anything"})
	require.NoError(t, err)

	assert.Equal(t, []Stage{
		StageRouting, StageRetrieving, StagePlanning, StageGenerating,
		StageExecuting, StageSynthesizing, StageDone,
	}, stages)
}
