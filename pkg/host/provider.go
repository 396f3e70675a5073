package host

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cattail/pkg/envelope"
)

const DefaultReplyDelay = 500 * time.Millisecond

var (
	ErrProviderClosed    = errors.New("chat view provider is closed")
	ErrContainerDisposed = errors.New("container is disposed")
)

// DocumentSource supplies the markup a provider injects into each container.
type DocumentSource interface {
	Document() (string, error)
}

type DocumentFunc func() (string, error)

func (f DocumentFunc) Document() (string, error) { return f() }

type ChatViewProviderOptions struct {
	// ExtensionRoot is the only resource root the view may load from.
	ExtensionRoot string
	ReplyDelay    time.Duration
	Responder     Responder
	Document      DocumentSource
}

// ChatViewProvider is the host side of the chat panel. It injects the view document,
// listens for submitted messages and answers each one after a fixed delay.
//
// Every reply goes back to the container whose message it answers, so several pages of
// the same view can chat side by side. Disposing a container stops the replies that
// were scheduled on its behalf.
type ChatViewProvider struct {
	baseCtx context.Context
	cancel  context.CancelFunc
	opts    ChatViewProviderOptions
	logger  zerolog.Logger

	mu      sync.Mutex
	views   []Container
	replies map[string]*replyTimers
	closed  bool
}

var _ ViewProvider = (*ChatViewProvider)(nil)

func NewChatViewProvider(ctx context.Context, opts ChatViewProviderOptions) (*ChatViewProvider, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	if opts.Document == nil {
		return nil, errors.New("document source is nil")
	}
	if opts.ReplyDelay <= 0 {
		opts.ReplyDelay = DefaultReplyDelay
	}
	if opts.Responder == nil {
		opts.Responder = EchoResponder{}
	}
	baseCtx, cancel := context.WithCancel(ctx)
	return &ChatViewProvider{
		baseCtx: baseCtx,
		cancel:  cancel,
		opts:    opts,
		logger:  log.With().Str("component", "chat-view").Logger(),
		replies: map[string]*replyTimers{},
	}, nil
}

// ResolveView prepares a freshly created container. Resolving the same container twice
// only refreshes the retained reference.
func (p *ChatViewProvider) ResolveView(_ context.Context, c Container) error {
	if c == nil {
		return errors.New("container is nil")
	}
	if c.Disposed() {
		return ErrContainerDisposed
	}
	id := c.ID()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProviderClosed
	}
	if _, ok := p.replies[id]; ok {
		p.promoteLocked(c)
		p.mu.Unlock()
		p.logger.Debug().Str("container_id", id).Msg("container already resolved")
		return nil
	}
	p.mu.Unlock()

	doc, err := p.opts.Document.Document()
	if err != nil {
		return errors.Wrap(err, "render view document")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProviderClosed
	}
	if _, ok := p.replies[id]; ok {
		p.promoteLocked(c)
		p.mu.Unlock()
		return nil
	}
	p.replies[id] = newReplyTimers()
	p.promoteLocked(c)
	p.mu.Unlock()

	c.SetOptions(ViewOptions{
		EnableScripts:      true,
		LocalResourceRoots: []string{p.opts.ExtensionRoot},
	})
	c.SetHTML(doc)
	c.OnDidReceiveMessage(func(e envelope.Envelope) {
		p.HandleEnvelope(c, e)
	})
	c.OnDidDispose(func() {
		p.release(c)
	})

	p.logger.Info().Str("container_id", id).Msg("view resolved")
	return nil
}

// HandleEnvelope reacts to one envelope posted by the view in origin.
func (p *ChatViewProvider) HandleEnvelope(origin Container, e envelope.Envelope) {
	switch e.Kind {
	case envelope.KindSendMessage:
		p.logger.Debug().Str("container_id", origin.ID()).Str("text", e.Text).Msg("user message")
		p.scheduleReply(origin, e.Text)
	default:
		p.logger.Debug().Str("container_id", origin.ID()).Str("kind", string(e.Kind)).Msg("ignoring envelope")
	}
}

func (p *ChatViewProvider) scheduleReply(origin Container, text string) {
	p.mu.Lock()
	timers, ok := p.replies[origin.ID()]
	closed := p.closed
	p.mu.Unlock()
	if closed || !ok {
		p.logger.Debug().Str("container_id", origin.ID()).Msg("container not tracked, dropping message")
		return
	}
	if !timers.schedule(p.opts.ReplyDelay, func() { p.deliverReply(origin, text) }) {
		p.logger.Debug().Str("container_id", origin.ID()).Msg("container released, dropping message")
	}
}

// deliverReply answers in the container the message came from.
func (p *ChatViewProvider) deliverReply(target Container, text string) {
	ctx := p.baseCtx
	if ctx.Err() != nil {
		return
	}
	if target.Disposed() {
		p.logger.Debug().Str("container_id", target.ID()).Msg("view gone, dropping reply")
		return
	}
	reply, err := p.opts.Responder.Respond(ctx, text)
	if err != nil {
		p.logger.Warn().Err(err).Str("container_id", target.ID()).Msg("responder failed, dropping reply")
		return
	}
	if err := target.PostMessage(ctx, envelope.NewReceiveMessage(reply, true)); err != nil {
		p.logger.Debug().Err(err).Str("container_id", target.ID()).Msg("post reply failed")
	}
}

// View returns the most recently resolved live container, nil when there is none.
func (p *ChatViewProvider) View() Container {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.views) == 0 {
		return nil
	}
	return p.views[len(p.views)-1]
}

// promoteLocked moves c to the end of the resolution order.
func (p *ChatViewProvider) promoteLocked(c Container) {
	p.removeViewLocked(c.ID())
	p.views = append(p.views, c)
}

func (p *ChatViewProvider) removeViewLocked(id string) {
	for i, v := range p.views {
		if v.ID() == id {
			p.views = append(p.views[:i], p.views[i+1:]...)
			return
		}
	}
}

// PendingReplies counts scheduled replies that have not fired yet.
func (p *ChatViewProvider) PendingReplies() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.replies {
		n += t.pending()
	}
	return n
}

func (p *ChatViewProvider) release(c Container) {
	timers := p.forget(c)
	if timers == nil {
		return
	}
	stopped := timers.stopAll()
	p.logger.Info().Str("container_id", c.ID()).Int("cancelled_replies", stopped).Msg("view disposed")
}

func (p *ChatViewProvider) forget(c Container) *replyTimers {
	id := c.ID()
	p.mu.Lock()
	defer p.mu.Unlock()
	timers := p.replies[id]
	delete(p.replies, id)
	p.removeViewLocked(id)
	return timers
}

// Close stops every pending reply and refuses further containers.
func (p *ChatViewProvider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	all := p.replies
	p.replies = map[string]*replyTimers{}
	p.views = nil
	p.mu.Unlock()

	p.cancel()
	stopped := 0
	for _, t := range all {
		stopped += t.stopAll()
	}
	p.logger.Debug().Int("cancelled_replies", stopped).Msg("provider closed")
}
