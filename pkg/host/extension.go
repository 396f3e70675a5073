package host

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// ViewID identifies the chat view inside the sidebar container.
	ViewID = "cat-tail.chatView"
	// OpenChatCommand brings the chat view to the front.
	OpenChatCommand = "cat-tail.openChat"
)

var ErrAlreadyActive = errors.New("extension already active")

type ExtensionOptions struct {
	Provider ChatViewProviderOptions
}

// Extension is the activation unit: it owns the chat view provider and every
// registration made with the platform, and tears them down on Deactivate.
type Extension struct {
	opts ExtensionOptions

	mu            sync.Mutex
	provider      *ChatViewProvider
	subscriptions []Disposable
}

func NewExtension(opts ExtensionOptions) *Extension {
	return &Extension{opts: opts}
}

func (e *Extension) Activate(ctx context.Context, p Platform) error {
	if p == nil {
		return errors.New("platform is nil")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.provider != nil {
		return ErrAlreadyActive
	}

	provider, err := NewChatViewProvider(ctx, e.opts.Provider)
	if err != nil {
		return errors.Wrap(err, "create chat view provider")
	}

	viewSub, err := p.RegisterViewProvider(ViewID, provider, ViewRegistrationOptions{RetainContextWhenHidden: true})
	if err != nil {
		provider.Close()
		return errors.Wrapf(err, "register view %s", ViewID)
	}

	cmdSub, err := p.RegisterCommand(OpenChatCommand, func(ctx context.Context) (any, error) {
		return p.RevealView(ctx, ViewID)
	})
	if err != nil {
		viewSub.Dispose()
		provider.Close()
		return errors.Wrapf(err, "register command %s", OpenChatCommand)
	}

	e.provider = provider
	e.subscriptions = []Disposable{viewSub, cmdSub, DisposableFunc(provider.Close)}
	log.Info().Str("component", "extension").Str("view_id", ViewID).Msg("cat-tail extension is now active")
	return nil
}

// Deactivate disposes subscriptions in reverse registration order. Calling it on an
// inactive extension is a no-op.
func (e *Extension) Deactivate() error {
	e.mu.Lock()
	subs := e.subscriptions
	e.subscriptions = nil
	e.provider = nil
	e.mu.Unlock()

	for i := len(subs) - 1; i >= 0; i-- {
		subs[i].Dispose()
	}
	if len(subs) > 0 {
		log.Info().Str("component", "extension").Msg("cat-tail extension deactivated")
	}
	return nil
}

// Provider returns the active provider, nil before Activate or after Deactivate.
func (e *Extension) Provider() *ChatViewProvider {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.provider
}
