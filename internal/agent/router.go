package agent

import (
	"context"
	"strings"
)

// classify picks the route for a question. Any model or parse failure falls
// back to hybrid, which costs an extra retrieval but never strands a question
// on the wrong path.
func (a *Agent) classify(ctx context.Context, question string) (Route, string) {
	raw, err := a.llm.Complete(ctx, routerSystemPrompt, question)
	if err != nil {
		a.logger.Warn("router call failed, falling back to hybrid", "error", err)
		return RouteHybrid, "router unavailable"
	}

	var resp struct {
		Reasoning string `json:"reasoning"`
		Route     string `json:"route"`
	}
	if err := extractJSON(raw, &resp); err != nil {
		a.logger.Warn("router response unparseable, falling back to hybrid", "error", err)
		return RouteHybrid, "unparseable route"
	}

	switch Route(strings.ToLower(strings.TrimSpace(resp.Route))) {
	case RouteRAG:
		return RouteRAG, resp.Reasoning
	case RouteSQL:
		return RouteSQL, resp.Reasoning
	case RouteHybrid:
		return RouteHybrid, resp.Reasoning
	default:
		a.logger.Warn("router returned unknown route, falling back to hybrid", "route", resp.Route)
		return RouteHybrid, resp.Reasoning
	}
}
