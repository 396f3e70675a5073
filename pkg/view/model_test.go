package view

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/cattail/pkg/envelope"
)

func TestModelSubmit_NonEmpty(t *testing.T) {
	for _, in := range []string{"hello", "  padded  ", "multi\nline", "<script>x</script>"} {
		m := NewModel()
		m.SetInput(in)

		out, ok := m.Submit()
		require.True(t, ok, in)

		want := envelope.NewSendMessage(strings.TrimSpace(in))
		require.Equal(t, want, out)
		require.Equal(t, []envelope.ChatMessage{{Text: want.Text, Origin: envelope.OriginUser}}, m.Messages())
		require.Empty(t, m.Input())
		require.False(t, m.WelcomeVisible())
	}
}

func TestModelSubmit_BlankIsNoop(t *testing.T) {
	for _, in := range []string{"", "  ", "\n\t "} {
		m := NewModel()
		m.SetInput(in)

		_, ok := m.Submit()
		require.False(t, ok)
		require.Empty(t, m.Messages())
		require.True(t, m.WelcomeVisible())
		require.Equal(t, in, m.Input())
	}
}

func TestModelEnter_ShiftInsertsNewline(t *testing.T) {
	m := NewModel()
	m.SetInput("line one")

	_, ok := m.Enter(true)
	require.False(t, ok)
	require.Equal(t, "line one\n", m.Input())
	require.Empty(t, m.Messages())

	m.SetInput(m.Input() + "line two")
	out, ok := m.Enter(false)
	require.True(t, ok)
	require.Equal(t, "line one\nline two", out.Text)
}

func TestModelReceive(t *testing.T) {
	m := NewModel()

	require.False(t, m.Receive(envelope.Envelope{Kind: "typing"}))
	require.False(t, m.Receive(envelope.Envelope{Kind: envelope.KindSendMessage, Text: "echo?"}))
	require.Equal(t, StateEmpty, m.State())

	require.True(t, m.Receive(envelope.Envelope{Kind: envelope.KindReceiveMessage, Text: "hi", IsBot: true}))
	require.Equal(t, StateActive, m.State())
	require.Equal(t, []envelope.ChatMessage{{Text: "hi", Origin: envelope.OriginBot}}, m.Messages())
}

func TestModel_HelloScenario(t *testing.T) {
	m := NewModel()
	m.SetInput("hello")
	out, ok := m.Enter(false)
	require.True(t, ok)
	require.Equal(t, envelope.NewSendMessage("hello"), out)
	require.Equal(t, []envelope.ChatMessage{{Text: "hello", Origin: envelope.OriginUser}}, m.Messages())

	m.Receive(envelope.Envelope{Kind: envelope.KindReceiveMessage, Text: `AI reply: you said "hello"`, IsBot: true})
	require.Equal(t, []envelope.ChatMessage{
		{Text: "hello", Origin: envelope.OriginUser},
		{Text: `AI reply: you said "hello"`, Origin: envelope.OriginBot},
	}, m.Messages())
}

func TestModel_WelcomeNeverReturns(t *testing.T) {
	m := NewModel()
	m.SetInput("x")
	_, _ = m.Submit()
	m.SetInput("   ")
	_, _ = m.Submit()
	require.False(t, m.WelcomeVisible())
	require.Equal(t, "active", m.State().String())
}
