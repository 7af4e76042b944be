// Package tui is the interactive terminal frontend: a welcome screen showing
// which evidence sources are available, then a chat session against the
// analytics agent with live pipeline stage feedback.
package tui

import (
	"tally/internal/agent"

	tea "github.com/charmbracelet/bubbletea"
)

// ViewState represents which screen is active.
type ViewState int

const (
	ViewWelcome ViewState = iota
	ViewChat
)

// programRef is an indirect pointer to the tea.Program so the agent's
// progress callback can send messages. It is set after tea.NewProgram
// returns but before Run.
type programRef struct {
	p *tea.Program
}

// BuildAgentFunc assembles the agent with the given progress callback and
// returns it alongside a cleanup func.
type BuildAgentFunc func(onProgress agent.ProgressFunc) (*agent.Agent, func(), error)

// Config holds configuration passed from the CLI layer.
type Config struct {
	DBPath     string
	IndexPath  string
	BuildAgent BuildAgentFunc

	// program is set internally so the progress callback can send messages.
	program *programRef
}

// Model is the top-level Bubble Tea model.
type Model struct {
	state  ViewState
	config Config
	width  int
	height int

	welcome welcomeModel
	chat    chatModel
	cleanup func()
	err     error
}

// New creates a new TUI model with the given config.
func New(cfg Config) Model {
	return Model{
		state:  ViewWelcome,
		config: cfg,
	}
}

func (m Model) Init() tea.Cmd {
	return checkSources(m.config)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.state == ViewChat {
			var c tea.Cmd
			m.chat, c = m.chat.Update(msg)
			return m, c
		}
		return m, nil

	case tea.KeyMsg:
		// Global quit.
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.state != ViewChat {
				return m, tea.Quit
			}
		}
	}

	var cmd tea.Cmd

	switch m.state {
	case ViewWelcome:
		m.welcome, cmd = m.welcome.Update(msg)
		if cmd != nil {
			return m, cmd
		}
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter && m.welcome.ready {
			if m.welcome.usable() {
				return m, m.transitionToChat()
			}
			return m, nil
		}

	case ViewChat:
		m.chat, cmd = m.chat.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) transitionToChat() tea.Cmd {
	ref := m.config.program
	ag, cleanup, err := m.config.BuildAgent(func(stage agent.Stage) {
		if ref != nil && ref.p != nil {
			ref.p.Send(stageMsg{stage: stage})
		}
	})
	if err != nil {
		m.err = err
		return nil
	}
	m.cleanup = cleanup

	m.chat = newChatModel(ag)
	m.chat.initViewport(m.width, m.height)
	m.state = ViewChat

	return nil
}

func (m Model) View() string {
	if m.err != nil {
		return errorStyle.Render("Error: "+m.err.Error()) + "\n"
	}

	switch m.state {
	case ViewWelcome:
		return m.welcome.View(m.width, m.height)
	case ViewChat:
		return m.chat.View(m.width, m.height)
	}
	return ""
}

// Run starts the TUI program.
func Run(cfg Config) error {
	ref := &programRef{}
	cfg.program = ref
	p := tea.NewProgram(New(cfg), tea.WithAltScreen())
	ref.p = p
	final, err := p.Run()
	if m, ok := final.(Model); ok && m.cleanup != nil {
		m.cleanup()
	}
	return err
}
