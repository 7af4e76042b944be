package cmd

import (
	"fmt"
	"io"
	"os"

	"tally/internal/batch"

	"github.com/spf13/cobra"
)

var (
	flagBatchIn  string
	flagBatchOut string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Answer a JSONL file of questions, one JSON answer per line",
	Long: `Reads questions as JSONL ({"id", "question", "format_hint"}) and writes one
answer object per question, in input order. Defaults to stdin and stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		ag, cleanup, err := buildAgent(logger, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		var in io.Reader = os.Stdin
		if flagBatchIn != "" && flagBatchIn != "-" {
			f, err := os.Open(flagBatchIn)
			if err != nil {
				return fmt.Errorf("open questions: %w", err)
			}
			defer f.Close()
			in = f
		}

		var out io.Writer = os.Stdout
		if flagBatchOut != "" && flagBatchOut != "-" {
			f, err := os.Create(flagBatchOut)
			if err != nil {
				return fmt.Errorf("create answers: %w", err)
			}
			defer f.Close()
			out = f
		}

		stats, err := batch.Run(cmd.Context(), ag, in, out, logger)
		if err != nil {
			return err
		}
		logger.Info("batch complete", "total", stats.Total, "low_confidence", stats.Failed, "skipped", stats.Skipped)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&flagBatchIn, "in", "", "questions JSONL file (default stdin)")
	batchCmd.Flags().StringVar(&flagBatchOut, "out", "", "answers JSONL file (default stdout)")
	rootCmd.AddCommand(batchCmd)
}
