package view

import (
	"strings"

	"github.com/go-go-golems/cattail/pkg/envelope"
)

type State int

const (
	// StateEmpty shows the welcome placeholder and no messages.
	StateEmpty State = iota
	// StateActive has at least one message; there is no way back to StateEmpty.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Model is the chat view state machine without any rendering.
// The zero value is an empty view ready for use.
type Model struct {
	messages []envelope.ChatMessage
	input    string
}

func NewModel() *Model { return &Model{} }

func (m *Model) State() State {
	if len(m.messages) == 0 {
		return StateEmpty
	}
	return StateActive
}

// WelcomeVisible reports whether the placeholder is shown, i.e. the list is empty.
func (m *Model) WelcomeVisible() bool { return m.State() == StateEmpty }

func (m *Model) Messages() []envelope.ChatMessage {
	return append([]envelope.ChatMessage(nil), m.messages...)
}

func (m *Model) Input() string { return m.input }

func (m *Model) SetInput(s string) { m.input = s }

// Submit consumes the input. Blank input changes nothing and returns false;
// otherwise the user message is appended, the input cleared and the envelope to send
// is returned.
func (m *Model) Submit() (envelope.Outbound, bool) {
	text := strings.TrimSpace(m.input)
	if text == "" {
		return envelope.Outbound{}, false
	}
	m.messages = append(m.messages, envelope.ChatMessage{Text: text, Origin: envelope.OriginUser})
	m.input = ""
	return envelope.NewSendMessage(text), true
}

// Enter applies the return key. Without shift it submits; with shift it inserts a newline.
func (m *Model) Enter(shift bool) (envelope.Outbound, bool) {
	if shift {
		m.input += "\n"
		return envelope.Outbound{}, false
	}
	return m.Submit()
}

// Receive appends receiveMessage envelopes and ignores every other kind.
func (m *Model) Receive(e envelope.Envelope) bool {
	in, ok := e.Inbound()
	if !ok {
		return false
	}
	m.messages = append(m.messages, in.Message())
	return true
}
