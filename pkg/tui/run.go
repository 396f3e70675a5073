package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"github.com/go-go-golems/cattail/pkg/envelope"
)

// Client is the connection the terminal view runs on.
type Client interface {
	Sender
	Messages() <-chan envelope.Envelope
	SetVisible(bool) error
}

// Run shows the chat view full screen until the user quits or ctx is cancelled.
func Run(ctx context.Context, c Client, opts Options) error {
	if err := c.SetVisible(true); err != nil {
		return errors.Wrap(err, "announce visibility")
	}
	p := tea.NewProgram(New(c, c.Messages(), opts), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "run chat view")
	}
	return nil
}
