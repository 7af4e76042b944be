package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"tally/internal/agent"
	"tally/internal/corpus"
	"tally/internal/embedder"
	"tally/internal/llm"
	"tally/internal/northwind"
	"tally/internal/retriever"
)

// buildAgent opens whichever evidence sources exist on disk and assembles the
// agent around them. Missing sources disable their path with a warning; only
// when neither the database nor the corpus index exists does this fail. The
// returned func closes everything.
func buildAgent(logger *slog.Logger, onProgress agent.ProgressFunc) (*agent.Agent, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var executor agent.Executor
	if _, err := os.Stat(flagDB); err == nil {
		db, err := northwind.Open(flagDB)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open northwind database: %w", err)
		}
		closers = append(closers, func() { db.Close() })
		executor = db
	} else {
		logger.Warn("database not found, SQL questions unavailable", "path", flagDB)
	}

	var search agent.Searcher
	if _, err := os.Stat(flagIndex); err == nil {
		store, err := corpus.Open(flagIndex)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open corpus index: %w", err)
		}
		closers = append(closers, func() { store.Close() })

		var emb *embedder.OllamaEmbedder
		if flagEmbedModel != "" {
			emb = embedder.NewOllamaEmbedder(flagOllama, flagEmbedModel)
		}
		ret, err := retriever.New(store, emb)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("build retriever: %w", err)
		}
		search = ret
	} else {
		logger.Warn("corpus index not found, document questions unavailable",
			"path", flagIndex, "hint", "run 'tally ingest' first")
	}

	var tracer *agent.Tracer
	if flagTrace != "" {
		tracer = agent.NewTracer(flagTrace)
	}

	ag, err := agent.New(agent.Config{
		LLM:        llm.NewOllamaChat(flagOllama, flagModel),
		Retriever:  search,
		Executor:   executor,
		Logger:     logger,
		Tracer:     tracer,
		OnProgress: onProgress,
	})
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return ag, closeAll, nil
}
