package tui

import (
	"context"
	"fmt"
	"strings"

	"tally/internal/agent"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

type chatModel struct {
	viewport    viewport.Model
	input       textinput.Model
	spinner     spinner.Model
	renderer    *glamour.TermRenderer
	messages    []chatMessage
	ag          *agent.Agent
	busy        bool
	stage       agent.Stage
	showSQL     bool
	width       int
	height      int
	initialized bool
}

type chatMessage struct {
	role    string
	content string
}

// answerMsg is sent when the agent finishes a question.
type answerMsg struct {
	answer agent.Answer
	err    error
}

// stageMsg is sent by the agent's progress callback as the pipeline advances.
type stageMsg struct {
	stage agent.Stage
}

func newChatModel(ag *agent.Agent) chatModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	ti := textinput.New()
	ti.Placeholder = "Ask about sales, customers, or company policy..."
	ti.CharLimit = 2000
	ti.Focus()

	return chatModel{
		spinner: sp,
		input:   ti,
		ag:      ag,
		showSQL: true,
	}
}

func (m *chatModel) initViewport(width, height int) {
	m.width = width
	m.height = height

	// Layout: viewport + status bar (1 line) + input (1 line) + borders/gaps (1 line).
	vpHeight := height - 3
	if vpHeight < 5 {
		vpHeight = 5
	}
	m.viewport = viewport.New(width, vpHeight)
	m.viewport.SetContent(dimStyle.Render("Welcome to Tally! Ask a question about the business.\n\nCommands: /help, /sql, /clear, /exit"))

	m.input.Width = width - 4

	// Create glamour renderer matched to current width.
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-2),
	)
	if err == nil {
		m.renderer = r
	}

	m.initialized = true
}

func askQuestion(ag *agent.Agent, question string) tea.Cmd {
	return func() tea.Msg {
		ans, err := ag.Answer(context.Background(), agent.Question{Text: question})
		return answerMsg{answer: ans, err: err}
	}
}

func (m chatModel) Update(msg tea.Msg) (chatModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.initViewport(msg.Width, msg.Height)
		m.viewport.SetContent(m.renderMessages())
		m.viewport.GotoBottom()
		return m, nil

	case stageMsg:
		m.stage = msg.stage
		if m.busy {
			m.viewport.SetContent(m.renderMessages())
			m.viewport.GotoBottom()
		}
		return m, nil

	case answerMsg:
		m.busy = false
		m.stage = ""
		if msg.err != nil {
			m.messages = append(m.messages, chatMessage{role: "error", content: msg.err.Error()})
		} else {
			m.messages = append(m.messages, chatMessage{role: "assistant", content: m.formatAnswer(msg.answer)})
		}
		m.viewport.SetContent(m.renderMessages())
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			// Re-render viewport so the spinner frame updates.
			m.viewport.SetContent(m.renderMessages())
			m.viewport.GotoBottom()
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		switch msg.Type {
		case tea.KeyEnter:
			question := strings.TrimSpace(m.input.Value())
			if question == "" {
				return m, nil
			}
			m.input.Reset()

			switch question {
			case "/exit", "/quit":
				return m, tea.Quit
			case "/clear":
				m.messages = nil
				m.viewport.SetContent(dimStyle.Render("Conversation cleared."))
				return m, nil
			case "/sql":
				m.showSQL = !m.showSQL
				state := "hidden"
				if m.showSQL {
					state = "shown"
				}
				m.messages = append(m.messages, chatMessage{role: "system", content: "Generated SQL is now " + state + "."})
				m.viewport.SetContent(m.renderMessages())
				m.viewport.GotoBottom()
				return m, nil
			case "/help":
				helpText := "Commands:\n  /sql    - toggle generated SQL display\n  /clear  - clear the conversation\n  /exit   - quit\n  /help   - show this help"
				m.messages = append(m.messages, chatMessage{role: "system", content: helpText})
				m.viewport.SetContent(m.renderMessages())
				m.viewport.GotoBottom()
				return m, nil
			}

			m.messages = append(m.messages, chatMessage{role: "user", content: question})
			m.busy = true
			m.stage = agent.StageRouting
			m.viewport.SetContent(m.renderMessages())
			m.viewport.GotoBottom()

			return m, tea.Batch(
				m.spinner.Tick,
				askQuestion(m.ag, question),
			)
		}
	}

	// Update text input.
	if !m.busy {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	// Update viewport (scrolling).
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m chatModel) formatAnswer(ans agent.Answer) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%v\n", ans.Value)
	if ans.Explanation != "" {
		fmt.Fprintf(&sb, "\n*%s*\n", ans.Explanation)
	}
	if m.showSQL && ans.SQL != "" {
		fmt.Fprintf(&sb, "\n```sql\n%s\n```\n", ans.SQL)
	}
	if len(ans.Citations) > 0 {
		fmt.Fprintf(&sb, "\nSources: %s\n", strings.Join(ans.Citations, ", "))
	}
	fmt.Fprintf(&sb, "\nConfidence: %.2f", ans.Confidence)
	if ans.Repairs > 0 {
		fmt.Fprintf(&sb, " (%d repairs)", ans.Repairs)
	}
	sb.WriteString("\n")
	return sb.String()
}

func (m chatModel) renderMarkdown(content string) string {
	if m.renderer == nil {
		return assistantMsgStyle.Render(content)
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return assistantMsgStyle.Render(content)
	}
	return strings.TrimRight(rendered, "\n")
}

func (m chatModel) renderMessages() string {
	var sb strings.Builder
	for _, msg := range m.messages {
		switch msg.role {
		case "user":
			sb.WriteString(userMsgStyle.Render("You: ") + msg.content + "\n\n")
		case "assistant":
			sb.WriteString(m.renderMarkdown(msg.content) + "\n\n")
		case "error":
			sb.WriteString(errorStyle.Render("Error: "+msg.content) + "\n\n")
		case "system":
			sb.WriteString(dimStyle.Render(msg.content) + "\n\n")
		}
	}

	if m.busy {
		sb.WriteString(m.spinner.View() + " " + dimStyle.Render(stageLabel(m.stage)) + "\n")
	}

	return sb.String()
}

func stageLabel(stage agent.Stage) string {
	switch stage {
	case agent.StageRouting:
		return "Routing..."
	case agent.StageRetrieving:
		return "Searching documents..."
	case agent.StagePlanning:
		return "Extracting constraints..."
	case agent.StageGenerating:
		return "Writing SQL..."
	case agent.StageExecuting:
		return "Running query..."
	case agent.StageRepairing:
		return "Repairing SQL..."
	case agent.StageSynthesizing:
		return "Composing answer..."
	default:
		return "Thinking..."
	}
}

func (m chatModel) View(width, height int) string {
	if !m.initialized {
		return ""
	}

	statusText := "idle"
	if m.busy {
		statusText = strings.ToLower(stageLabel(m.stage))
	}
	statusBar := statusBarStyle.
		Width(m.width).
		Render(fmt.Sprintf(" tally • %s", statusText))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.viewport.View(),
		statusBar,
		m.input.View(),
	)
}
