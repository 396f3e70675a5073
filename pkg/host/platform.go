package host

import (
	"context"
	"sync"

	"github.com/go-go-golems/cattail/pkg/envelope"
)

// ViewOptions are the render options a provider attaches to its container.
type ViewOptions struct {
	EnableScripts      bool
	LocalResourceRoots []string
}

// Container is one instantiated view, owned by the hosting platform.
// A provider only ever talks to the embedded view through it.
type Container interface {
	ID() string
	SetOptions(opts ViewOptions)
	SetHTML(doc string)
	// PostMessage publishes an envelope to the view. There is no acknowledgement.
	PostMessage(ctx context.Context, msg envelope.Inbound) error
	OnDidReceiveMessage(fn func(envelope.Envelope))
	OnDidDispose(fn func())
	Disposed() bool
	Visible() bool
}

// ViewProvider resolves containers handed out by the platform.
type ViewProvider interface {
	ResolveView(ctx context.Context, c Container) error
}

type ViewRegistrationOptions struct {
	RetainContextWhenHidden bool
}

type CommandFunc func(ctx context.Context) (any, error)

type RevealAction string

const (
	// RevealNone means the view was already visible.
	RevealNone RevealAction = "none"
	// RevealFocus means a hidden container was asked to come to the front.
	RevealFocus RevealAction = "focus"
	// RevealOpen means no live container exists; the caller has to open URL.
	RevealOpen RevealAction = "open"
)

type RevealResult struct {
	Action      RevealAction `json:"action"`
	ViewID      string       `json:"view_id"`
	ContainerID string       `json:"container_id,omitempty"`
	URL         string       `json:"url,omitempty"`
}

// Platform is the part of the host an extension registers itself with.
type Platform interface {
	RegisterViewProvider(viewID string, p ViewProvider, opts ViewRegistrationOptions) (Disposable, error)
	RegisterCommand(id string, fn CommandFunc) (Disposable, error)
	RevealView(ctx context.Context, viewID string) (RevealResult, error)
}

type Disposable interface {
	Dispose()
}

// DisposableFunc adapts a function to Disposable. It runs at most once.
func DisposableFunc(fn func()) Disposable {
	return &onceDisposable{fn: fn}
}

type onceDisposable struct {
	once sync.Once
	fn   func()
}

func (d *onceDisposable) Dispose() {
	if d == nil || d.fn == nil {
		return
	}
	d.once.Do(d.fn)
}
