package host

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/cattail/pkg/envelope"
)

type fakeContainer struct {
	id string

	mu        sync.Mutex
	opts      ViewOptions
	html      string
	posted    []envelope.Inbound
	onMessage []func(envelope.Envelope)
	onDispose []func()
	disposed  bool
	hidden    bool
}

func newFakeContainer(id string) *fakeContainer {
	return &fakeContainer{id: id}
}

func (c *fakeContainer) ID() string { return c.id }

func (c *fakeContainer) SetOptions(opts ViewOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts = opts
}

func (c *fakeContainer) SetHTML(doc string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.html = doc
}

func (c *fakeContainer) PostMessage(_ context.Context, msg envelope.Inbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return errors.New("disposed")
	}
	c.posted = append(c.posted, msg)
	return nil
}

func (c *fakeContainer) OnDidReceiveMessage(fn func(envelope.Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = append(c.onMessage, fn)
}

func (c *fakeContainer) OnDidDispose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDispose = append(c.onDispose, fn)
}

func (c *fakeContainer) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

func (c *fakeContainer) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disposed && !c.hidden
}

// send simulates the view posting an envelope.
func (c *fakeContainer) send(e envelope.Envelope) {
	c.mu.Lock()
	handlers := append([]func(envelope.Envelope){}, c.onMessage...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(e)
	}
}

func (c *fakeContainer) dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	handlers := append([]func(){}, c.onDispose...)
	c.mu.Unlock()
	for _, h := range handlers {
		h()
	}
}

func (c *fakeContainer) messages() []envelope.Inbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]envelope.Inbound(nil), c.posted...)
}

func (c *fakeContainer) postedCount() int {
	return len(c.messages())
}

type fakePlatform struct {
	mu       sync.Mutex
	views    map[string]ViewProvider
	commands map[string]CommandFunc
	disposed []string
	reveals  []string
	failOn   string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{views: map[string]ViewProvider{}, commands: map[string]CommandFunc{}}
}

func (p *fakePlatform) RegisterViewProvider(viewID string, vp ViewProvider, _ ViewRegistrationOptions) (Disposable, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn == viewID {
		return nil, errors.New("boom")
	}
	p.views[viewID] = vp
	return DisposableFunc(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.views, viewID)
		p.disposed = append(p.disposed, viewID)
	}), nil
}

func (p *fakePlatform) RegisterCommand(id string, fn CommandFunc) (Disposable, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn == id {
		return nil, errors.New("boom")
	}
	p.commands[id] = fn
	return DisposableFunc(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.commands, id)
		p.disposed = append(p.disposed, id)
	}), nil
}

func (p *fakePlatform) RevealView(_ context.Context, viewID string) (RevealResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reveals = append(p.reveals, viewID)
	return RevealResult{Action: RevealNone, ViewID: viewID}, nil
}

func staticDocument(doc string) DocumentSource {
	return DocumentFunc(func() (string, error) { return doc, nil })
}
