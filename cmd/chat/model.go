package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/carenav/carenav/engine/lifecycle"
)

// backend is the subset of the API the terminal uses.
type backend interface {
	Ask(ctx context.Context, id, message string) (reply, error)
	Rebuild(ctx context.Context) (lifecycle.RebuildReply, error)
	Examples(ctx context.Context) ([]string, error)
}

type role int

const (
	roleUser role = iota
	roleBot
	roleSystem
)

type turn struct {
	role role
	text string
}

type answerMsg struct {
	reply reply
	err   error
}

type rebuildMsg struct {
	reply lifecycle.RebuildReply
	err   error
}

type examplesMsg struct {
	examples []string
	err      error
}

// model is the Bubble Tea model: a running transcript above an input line.
// The transcript lives only here; the server keeps no conversation state.
type model struct {
	api        backend
	session    string
	timeout    time.Duration
	input      textinput.Model
	viewport   viewport.Model
	transcript []turn
	examples   []string
	nextEx     int
	busy       bool
	status     string
	ready      bool
}

func newModel(api backend, session string, timeout time.Duration) model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Describe your symptoms and press Enter"
	ti.Focus()
	ti.CharLimit = 2000
	return model{
		api:      api,
		session:  session,
		timeout:  timeout,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "enter send · tab example · ctrl+r refresh database · ctrl+l clear · ctrl+c quit",
	}
}

func (m model) Init() tea.Cmd { return tea.Batch(textinput.Blink, m.fetchExamples()) }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 2 + 1 + ih + 1 // header+examples, status, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			m.push(roleSystem, "Error: "+msg.err.Error())
			m.status = "Request failed"
		default:
			m.push(roleBot, msg.reply.Text)
			m.status = statusFor(msg.reply)
		}
		return m, nil

	case rebuildMsg:
		m.busy = false
		if msg.err != nil {
			m.push(roleSystem, lifecycle.MsgRebuildFailed+": "+msg.err.Error())
		} else {
			m.push(roleSystem, msg.reply.Message)
		}
		m.status = "Ready"
		return m, nil

	case examplesMsg:
		if msg.err == nil {
			m.examples = msg.examples
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.input.SetValue("")
			m.push(roleUser, q)
			m.busy = true
			m.status = "Thinking…"
			return m, m.ask(q)
		case "ctrl+r":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Refreshing database…"
			return m, m.rebuild()
		case "tab":
			if len(m.examples) > 0 {
				m.input.SetValue(m.examples[m.nextEx%len(m.examples)])
				m.input.CursorEnd()
				m.nextEx++
			}
			return m, nil
		case "ctrl+l":
			m.transcript = nil
			m.refresh()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("CareNav · find the right specialist")
	hint := mutedStyle.Render(m.exampleHint())
	body := transcriptStyle.Render(m.viewport.View())
	input := inputStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + hint + "\n" + body + "\n" + input + "\n" + status
}

func (m *model) push(r role, text string) {
	m.transcript = append(m.transcript, turn{role: r, text: text})
	m.refresh()
}

func (m *model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m model) renderTranscript() string {
	if len(m.transcript) == 0 {
		return mutedStyle.Render("No messages yet. Describe how you feel, or press tab for an example.")
	}
	width := max(10, m.viewport.Width-2)
	var b strings.Builder
	for i, t := range m.transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch t.role {
		case roleUser:
			b.WriteString(userStyle.Render("You"))
		case roleBot:
			b.WriteString(botStyle.Render("CareNav"))
		default:
			b.WriteString(systemStyle.Render("System"))
		}
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Render(t.text))
	}
	return b.String()
}

func (m model) exampleHint() string {
	if len(m.examples) == 0 {
		return ""
	}
	return "Try: " + m.examples[m.nextEx%len(m.examples)]
}

func (m model) ask(q string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		r, err := m.api.Ask(ctx, m.session, q)
		return answerMsg{reply: r, err: err}
	}
}

func (m model) rebuild() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		r, err := m.api.Rebuild(ctx)
		return rebuildMsg{reply: r, err: err}
	}
}

func (m model) fetchExamples() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ex, err := m.api.Examples(ctx)
		return examplesMsg{examples: ex, err: err}
	}
}

func statusFor(r reply) string {
	switch {
	case r.Degraded:
		return "Service degraded"
	case r.Specialist != "":
		return fmt.Sprintf("Suggested specialist: %s", r.Specialist)
	default:
		return "Ready"
	}
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	systemStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
