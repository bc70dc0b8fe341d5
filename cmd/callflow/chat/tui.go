package chatcmder

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	callerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	agentStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

type replyMsg struct {
	text string
	err  error
}

type entry struct {
	caller bool
	text   string
	err    bool
}

type chatModel struct {
	ctx    context.Context
	caller *caller

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	style    string
	renderer *glamour.TermRenderer

	entries []entry
	waiting bool
	ready   bool
}

func newChatModel(ctx context.Context, c *caller, style string) chatModel {
	input := textinput.New()
	input.Placeholder = "Say something to the agent..."
	input.Prompt = "> "
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return chatModel{
		ctx:     ctx,
		caller:  c,
		input:   input,
		spinner: sp,
		style:   style,
	}
}

func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// title + blank line + status line + input
		height := msg.Height - 4
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.input.Width = msg.Width - 4
		m.renderer = newRenderer(m.style, msg.Width-2)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.waiting {
				return m, nil
			}
			m.input.Reset()
			m.entries = append(m.entries, entry{caller: true, text: text})
			m.waiting = true
			m.refresh()
			return m, tea.Batch(m.ask(text), m.spinner.Tick)
		}

	case replyMsg:
		m.waiting = false
		if msg.err != nil {
			m.entries = append(m.entries, entry{text: msg.err.Error(), err: true})
		} else {
			m.entries = append(m.entries, entry{text: msg.text})
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m chatModel) View() string {
	if !m.ready {
		return "Connecting..."
	}

	status := helpStyle.Render("enter to send · esc to quit")
	if m.waiting {
		status = m.spinner.View() + " waiting for the agent..."
	}

	title := titleStyle.Render("callflow") + helpStyle.Render("  call "+m.caller.callID)

	return title + "\n" + m.viewport.View() + "\n" + status + "\n" + m.input.View()
}

func (m chatModel) ask(text string) tea.Cmd {
	return func() tea.Msg {
		reply, err := m.caller.say(m.ctx, text)
		return replyMsg{text: reply, err: err}
	}
}

// refresh re-renders the transcript into the viewport and scrolls to the end.
func (m *chatModel) refresh() {
	if !m.ready {
		return
	}

	var b strings.Builder
	for _, e := range m.entries {
		switch {
		case e.caller:
			b.WriteString(callerStyle.Render("You") + "\n" + e.text + "\n\n")
		case e.err:
			b.WriteString(errorStyle.Render("error: "+e.text) + "\n\n")
		default:
			b.WriteString(agentStyle.Render("Agent") + "\n" + m.render(e.text) + "\n")
		}
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *chatModel) render(text string) string {
	if m.renderer == nil {
		return text + "\n"
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

// glamourStyle picks the standard glamour style matching the terminal
// background. It queries the terminal, so call it before the program starts.
func glamourStyle() string {
	if termenv.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

func newRenderer(style string, width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}
