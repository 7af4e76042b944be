package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"tally/internal/corpus"
	"tally/internal/embedder"

	"github.com/spf13/cobra"
)

var flagWorkers int

var ingestCmd = &cobra.Command{
	Use:   "ingest [docs-dir]",
	Short: "Build or refresh the corpus index from the policy documents",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		docsDir := flagDocs
		if len(args) == 1 {
			docsDir = args[0]
		}
		if _, err := os.Stat(docsDir); err != nil {
			return fmt.Errorf("documents directory %s: %w", docsDir, err)
		}

		if dir := filepath.Dir(flagIndex); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create index directory: %w", err)
			}
		}

		store, err := corpus.Open(flagIndex)
		if err != nil {
			return fmt.Errorf("open corpus index: %w", err)
		}
		defer store.Close()

		var emb *embedder.OllamaEmbedder
		if flagEmbedModel != "" {
			emb = embedder.NewOllamaEmbedder(flagOllama, flagEmbedModel)
		}

		stats, err := corpus.Sync(cmd.Context(), store, corpus.SyncConfig{
			DocsDir:  docsDir,
			Workers:  flagWorkers,
			Embedder: emb,
			Logger:   logger,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Ingested %d documents (%d unchanged), %d chunks.\n",
			stats.DocsIngested, stats.DocsSkipped, stats.ChunksTotal)
		if emb == nil {
			fmt.Println("No embedding model configured; retrieval is keyword-only.")
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().IntVar(&flagWorkers, "workers", 4, "parallel document workers")
	rootCmd.AddCommand(ingestCmd)
}
