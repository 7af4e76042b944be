package tui

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

type welcomeModel struct {
	hasDB     bool
	hasCorpus bool
	ready     bool // true once the check has completed
}

// usable reports whether at least one evidence source exists.
func (m welcomeModel) usable() bool { return m.hasDB || m.hasCorpus }

// checkSourcesMsg is sent after probing the evidence sources.
type checkSourcesMsg struct {
	hasDB     bool
	hasCorpus bool
}

func checkSources(cfg Config) tea.Cmd {
	return func() tea.Msg {
		var msg checkSourcesMsg
		if _, err := os.Stat(cfg.DBPath); err == nil {
			msg.hasDB = true
		}
		if _, err := os.Stat(cfg.IndexPath); err == nil {
			msg.hasCorpus = true
		}
		return msg
	}
}

func (m welcomeModel) Update(msg tea.Msg) (welcomeModel, tea.Cmd) {
	switch msg := msg.(type) {
	case checkSourcesMsg:
		m.hasDB = msg.hasDB
		m.hasCorpus = msg.hasCorpus
		m.ready = true
	}
	return m, nil
}

func (m welcomeModel) View(width, height int) string {
	s := "\n"
	s += titleStyle.Render("  ◆ Tally") + "\n"
	s += subtitleStyle.Render("  Retail analytics Q&A over Northwind") + "\n\n"

	if !m.ready {
		s += dimStyle.Render("  Checking data sources...") + "\n"
		return s
	}

	if m.hasDB {
		s += successStyle.Render("  ✓ Northwind database found") + "\n"
	} else {
		s += warnStyle.Render("  ✗ No database — SQL questions unavailable") + "\n"
	}
	if m.hasCorpus {
		s += successStyle.Render("  ✓ Policy corpus indexed") + "\n"
	} else {
		s += warnStyle.Render("  ✗ No corpus index — run 'tally ingest' for policy questions") + "\n"
	}

	s += "\n"
	if m.usable() {
		s += dimStyle.Render("  Press Enter to start asking questions") + "\n"
	} else {
		s += errorStyle.Render("  No data sources available. Press q to quit.") + "\n"
	}
	return s
}
