package host

import (
	"context"
)

// Responder produces the text of a bot reply for a submitted prompt.
type Responder interface {
	Respond(ctx context.Context, prompt string) (string, error)
}

type ResponderFunc func(ctx context.Context, prompt string) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// EchoResponder answers every prompt with a canned echo.
type EchoResponder struct{}

func (EchoResponder) Respond(_ context.Context, prompt string) (string, error) {
	return EchoReply(prompt), nil
}

// EchoReply is the canned reply text. The prompt is embedded verbatim, quotes included.
func EchoReply(prompt string) string {
	return `AI reply: you said "` + prompt + `"`
}
