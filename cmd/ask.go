package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"tally/internal/agent"
	"tally/internal/northwind"

	"github.com/charmbracelet/glamour"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	flagShowSQL bool
	flagHint    string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question, or start an interactive session with no arguments",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		ag, cleanup, err := buildAgent(logger, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err != nil {
			return fmt.Errorf("init renderer: %w", err)
		}

		if len(args) > 0 {
			return askOnce(cmd, ag, renderer, strings.Join(args, " "))
		}

		scanner := bufio.NewScanner(os.Stdin)
		fmt.Println("tally (type /help for commands, /exit to quit)")
		fmt.Println()
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			question := strings.TrimSpace(scanner.Text())
			if question == "" {
				continue
			}

			switch question {
			case "/exit", "/quit":
				fmt.Println("Goodbye.")
				return nil
			case "/sql":
				flagShowSQL = !flagShowSQL
				fmt.Printf("SQL display %v.\n", onOff(flagShowSQL))
				continue
			case "/help":
				fmt.Println("Commands:")
				fmt.Println("  /sql    - toggle SQL and result display")
				fmt.Println("  /exit   - quit")
				fmt.Println("  /help   - show this help")
				continue
			}

			if err := askOnce(cmd, ag, renderer, question); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
		return scanner.Err()
	},
}

func askOnce(cmd *cobra.Command, ag *agent.Agent, renderer *glamour.TermRenderer, question string) error {
	ans, err := ag.Answer(cmd.Context(), agent.Question{
		Text:       question,
		FormatHint: flagHint,
	})
	if err != nil {
		return err
	}

	out, err := renderer.Render(formatAnswer(ans))
	if err != nil {
		// Plain text still beats no answer.
		out = formatAnswer(ans)
	}
	fmt.Print(out)

	if flagShowSQL && ans.SQL != "" {
		fmt.Printf("SQL: %s\n\n", ans.SQL)
		if ans.SQLResult != nil && ans.SQLResult.OK() {
			renderResultTable(ans.SQLResult)
		}
	}
	return nil
}

func formatAnswer(ans agent.Answer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v\n", ans.Value)
	if ans.Explanation != "" {
		fmt.Fprintf(&b, "\n*%s*\n", ans.Explanation)
	}
	if len(ans.Citations) > 0 {
		fmt.Fprintf(&b, "\nSources: %s\n", strings.Join(ans.Citations, ", "))
	}
	fmt.Fprintf(&b, "\nConfidence: %.2f (%s route", ans.Confidence, ans.Route)
	if ans.Repairs > 0 {
		fmt.Fprintf(&b, ", %d repairs", ans.Repairs)
	}
	b.WriteString(")\n")
	return b.String()
}

func renderResultTable(res *northwind.Result) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(res.Columns)
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%v", v)
		}
		table.Append(cells)
	}
	table.Render()
	fmt.Println()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func init() {
	askCmd.Flags().BoolVar(&flagShowSQL, "show-sql", false, "print the generated SQL and its result rows")
	askCmd.Flags().StringVar(&flagHint, "hint", "", "format hint for the answer (int, float, list, object)")
	rootCmd.AddCommand(askCmd)
}
