package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	flagDB         string
	flagDocs       string
	flagIndex      string
	flagOllama     string
	flagModel      string
	flagEmbedModel string
	flagTrace      string
	flagVerbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Retail analytics Q&A over the Northwind database and policy documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI()
	},
}

func Execute() {
	// A .env in the working directory seeds the TALLY_* defaults; flags
	// still win.
	_ = godotenv.Load()
	applyEnvDefaults()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDB, "db", "northwind.db", "Northwind SQLite database path")
	pf.StringVar(&flagDocs, "docs", "docs", "policy documents directory")
	pf.StringVar(&flagIndex, "index", ".tally/corpus.db", "corpus index database path")
	pf.StringVar(&flagOllama, "ollama", "http://localhost:11434", "ollama base URL")
	pf.StringVar(&flagModel, "model", "qwen3:8b", "generative model")
	pf.StringVar(&flagEmbedModel, "embed-model", "", "embedding model (empty disables vector retrieval)")
	pf.StringVar(&flagTrace, "trace", "", "append pipeline traces to this JSONL file")
	pf.BoolVar(&flagVerbose, "verbose", false, "debug logging")
}

// applyEnvDefaults overrides built-in flag defaults from the environment.
// Flags given on the command line are applied after this and take priority.
func applyEnvDefaults() {
	for env, target := range map[string]*string{
		"TALLY_DB":          &flagDB,
		"TALLY_DOCS":        &flagDocs,
		"TALLY_INDEX":       &flagIndex,
		"TALLY_OLLAMA":      &flagOllama,
		"TALLY_MODEL":       &flagModel,
		"TALLY_EMBED_MODEL": &flagEmbedModel,
		"TALLY_TRACE":       &flagTrace,
	} {
		if v := os.Getenv(env); v != "" {
			*target = v
		}
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
