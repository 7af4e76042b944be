package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"tally/internal/agent"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing the analytics agent over stdio",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	ag, cleanup, err := buildAgent(logger, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	s := mcpserver.NewMCPServer("tally", "1.0.0", mcpserver.WithToolCapabilities(false))

	s.AddTool(askQuestionTool(), makeAskHandler(ag))
	s.AddTool(searchDocsTool(), makeSearchDocsHandler(ag))
	s.AddTool(runSQLTool(), makeRunSQLHandler(ag))
	s.AddTool(getSchemaTool(), makeGetSchemaHandler(ag))

	return mcpserver.ServeStdio(s)
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func askQuestionTool() mcp.Tool {
	return mcp.NewTool("ask_question",
		mcp.WithDescription("Answer a retail analytics question using the Northwind database and policy documents. Returns the answer with SQL, confidence, and citations."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Natural language question about sales, customers, products, or company policy"),
		),
		mcp.WithString("format_hint",
			mcp.Description("Optional shape for the answer: int, float, list, or object"),
		),
	)
}

func searchDocsTool() mcp.Tool {
	return mcp.NewTool("search_docs",
		mcp.WithDescription("Search the company policy documents. Returns the most relevant excerpts with their chunk ids and scores."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language or keyword query"),
		),
		mcp.WithNumber("k",
			mcp.Description("Maximum number of excerpts to return (default 3)"),
		),
	)
}

func runSQLTool() mcp.Tool {
	return mcp.NewTool("run_sql",
		mcp.WithDescription("Run a read-only SELECT statement against the Northwind database. Results are capped at 500 rows."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("A single SQLite SELECT (or WITH ... SELECT) statement"),
		),
	)
}

func getSchemaTool() mcp.Tool {
	return mcp.NewTool("get_schema",
		mcp.WithDescription("Get the Northwind schema the SQL tools run against, including the order_items and product_costs views."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

// --- Handler factories ---

func makeAskHandler(ag *agent.Agent) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question := req.GetString("question", "")
		if question == "" {
			return mcp.NewToolResultError("question is required"), nil
		}

		ans, err := ag.Answer(ctx, agent.Question{
			Text:       question,
			FormatHint: req.GetString("format_hint", ""),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("answer failed: %v", err)), nil
		}

		payload, err := json.MarshalIndent(map[string]any{
			"answer":      ans.Value,
			"sql":         ans.SQL,
			"confidence":  ans.Confidence,
			"explanation": ans.Explanation,
			"citations":   ans.Citations,
			"route":       string(ans.Route),
		}, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode answer: %v", err)), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}

func makeSearchDocsHandler(ag *agent.Agent) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		k := req.GetInt("k", 3)
		if k <= 0 {
			k = 3
		}

		docs, err := ag.SearchDocs(ctx, query, k)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(docs) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No results found for query: %q", query)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "## Results for %q (%d excerpts)\n\n", query, len(docs))
		for i, d := range docs {
			fmt.Fprintf(&sb, "### %d. `%s` (score %.3f)\n\n%s\n\n", i+1, d.Chunk.ChunkID, d.Score, d.Chunk.Content)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeRunSQLHandler(ag *agent.Agent) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := strings.TrimSpace(req.GetString("query", ""))
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		upper := strings.ToUpper(query)
		if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
			return mcp.NewToolResultError("only SELECT statements are allowed"), nil
		}

		res, err := ag.RunSQL(ctx, query)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !res.OK() {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %s", res.Err)), nil
		}

		payload, err := json.MarshalIndent(map[string]any{
			"columns": res.Columns,
			"rows":    res.Rows,
		}, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}

func makeGetSchemaHandler(ag *agent.Agent) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := ag.SchemaText(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read schema: %v", err)), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}
