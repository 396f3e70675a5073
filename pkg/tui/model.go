// Package tui renders the chat view in a terminal. It drives the same view state
// machine as the embedded page and speaks the same envelopes.
package tui

import (
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cattail/pkg/envelope"
	"github.com/go-go-golems/cattail/pkg/view"
)

// Sender delivers outbound envelopes to the host.
type Sender interface {
	Send(envelope.Outbound) error
}

type Options struct {
	Document view.DocumentOptions
	Styles   *Styles
	// Copy writes to the system clipboard; clipboard.WriteAll when nil.
	Copy func(string) error
}

type inboundMsg envelope.Envelope

type disconnectedMsg struct{}

type sendFailedMsg struct{ err error }

type copiedMsg struct{ err error }

type Model struct {
	chat    *view.Model
	sender  Sender
	inbound <-chan envelope.Envelope

	doc    view.DocumentOptions
	styles Styles
	copy   func(string) error

	input    textarea.Model
	viewport viewport.Model
	width    int
	height   int

	status       string
	statusErr    bool
	disconnected bool
}

func New(sender Sender, inbound <-chan envelope.Envelope, opts Options) Model {
	doc := opts.Document
	if doc.Title == "" {
		doc = view.DefaultDocumentOptions()
	}
	styles := DefaultStyles()
	if opts.Styles != nil {
		styles = *opts.Styles
	}
	cp := opts.Copy
	if cp == nil {
		cp = clipboard.WriteAll
	}

	ta := textarea.New()
	ta.Placeholder = strings.Replace(doc.Placeholder, "(Enter to send)", "(Enter to send, Alt+Enter for newline)", 1)
	ta.ShowLineNumbers = false
	ta.Prompt = "> "
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	m := Model{
		chat:     view.NewModel(),
		sender:   sender,
		inbound:  inbound,
		doc:      doc,
		styles:   styles,
		copy:     cp,
		input:    ta,
		viewport: viewport.New(80, 18),
	}
	m.resize(80, 24)
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForInbound(m.inbound))
}

func waitForInbound(ch <-chan envelope.Envelope) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return inboundMsg(e)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			return m.submit()
		case "alt+enter":
			m.chat.SetInput(m.input.Value())
			m.chat.Enter(true)
			m.input.SetValue(m.chat.Input())
			return m, nil
		case "ctrl+y":
			return m, m.copyLastReply()
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case inboundMsg:
		if m.chat.Receive(envelope.Envelope(msg)) {
			m.refresh()
		}
		return m, waitForInbound(m.inbound)

	case disconnectedMsg:
		m.disconnected = true
		m.setStatus("disconnected from host", true)
		return m, nil

	case sendFailedMsg:
		m.setStatus("send failed: "+msg.err.Error(), true)
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.setStatus("copy failed: "+msg.err.Error(), true)
		} else {
			m.setStatus("copied last reply", false)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	m.chat.SetInput(m.input.Value())
	out, ok := m.chat.Enter(false)
	if !ok {
		return m, nil
	}
	m.input.Reset()
	m.refresh()
	if m.disconnected {
		m.setStatus("not connected, message not sent", true)
		return m, nil
	}
	sender := m.sender
	return m, func() tea.Msg {
		if err := sender.Send(out); err != nil {
			log.Debug().Err(err).Str("component", "tui").Msg("send failed")
			return sendFailedMsg{err: err}
		}
		return nil
	}
}

func (m Model) copyLastReply() tea.Cmd {
	msgs := m.chat.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Origin == envelope.OriginBot {
			text, cp := msgs[i].Text, m.copy
			return func() tea.Msg { return copiedMsg{err: cp(text)} }
		}
	}
	return nil
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.input.SetWidth(width)
	// title, status line, input border and input rows
	vh := height - 1 - 1 - 1 - m.input.Height()
	if vh < 1 {
		vh = 1
	}
	m.viewport.Width = width
	m.viewport.Height = vh
	m.refresh()
}

// refresh re-renders the transcript and keeps the newest message in view.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if m.chat.WelcomeVisible() {
		welcome := m.doc.Heading + "\n" + m.doc.Welcome
		return m.styles.Welcome.Width(m.width).Render(welcome)
	}
	bubbleWidth := m.width * 3 / 4
	if bubbleWidth < 10 {
		bubbleWidth = m.width
	}
	var parts []string
	for _, msg := range m.chat.Messages() {
		style, align := m.styles.User, lipgloss.Right
		if msg.Origin == envelope.OriginBot {
			style, align = m.styles.Bot, lipgloss.Left
		}
		bubble := style.Width(bubbleWidth - style.GetHorizontalFrameSize()).Render(msg.Text)
		parts = append(parts, lipgloss.PlaceHorizontal(m.width, align, bubble))
	}
	return strings.Join(parts, "\n")
}

func (m Model) View() string {
	status := m.styles.Status.Render(m.status)
	if m.statusErr {
		status = m.styles.Error.Render(m.status)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Title.Render(m.doc.Title),
		m.viewport.View(),
		status,
		m.styles.Input.Render(m.input.View()),
	)
}

// Transcript exposes the rendered message list state.
func (m Model) Transcript() []envelope.ChatMessage { return m.chat.Messages() }

func (m Model) InputValue() string { return m.input.Value() }
