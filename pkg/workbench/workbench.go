// Package workbench is a minimal host platform for views. It keeps a registry of view
// providers and commands, hands every page load its own container and carries the
// envelope channel of each container over a websocket.
package workbench

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cattail/pkg/filefilter"
	"github.com/go-go-golems/cattail/pkg/host"
	"github.com/go-go-golems/cattail/pkg/tap"
)

const (
	DefaultAttachTimeout = 30 * time.Second
	DefaultOutboxSize    = 64
)

var (
	ErrDuplicateView    = errors.New("view provider already registered")
	ErrDuplicateCommand = errors.New("command already registered")
	ErrUnknownView      = errors.New("unknown view")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrClosed           = errors.New("workbench is closed")
)

type Options struct {
	// BaseURL is the externally reachable address, used in reveal answers.
	BaseURL       string
	AttachTimeout time.Duration
	OutboxSize    int
	Theme         Theme
	Tap           *tap.Tap
	// ResourceFilter configures which files below a resource root are served.
	ResourceFilter []filefilter.FileFilterOption
}

type viewRegistration struct {
	provider host.ViewProvider
	opts     host.ViewRegistrationOptions
}

// Workbench implements host.Platform for pages served over HTTP.
type Workbench struct {
	opts   Options
	logger zerolog.Logger

	mu         sync.Mutex
	views      map[string]viewRegistration
	commands   map[string]host.CommandFunc
	containers map[string]*Container
	order      []string
	filters    map[string]*filefilter.FileFilter
	closed     bool
}

var _ host.Platform = (*Workbench)(nil)

func New(opts Options) *Workbench {
	if opts.AttachTimeout <= 0 {
		opts.AttachTimeout = DefaultAttachTimeout
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = DefaultOutboxSize
	}
	if opts.Theme == nil {
		opts.Theme = DefaultTheme()
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Workbench{
		opts:       opts,
		logger:     log.With().Str("component", "workbench").Logger(),
		views:      map[string]viewRegistration{},
		commands:   map[string]host.CommandFunc{},
		containers: map[string]*Container{},
		filters:    map[string]*filefilter.FileFilter{},
	}
}

// resourceFilter returns the cached filter for a resource root.
func (w *Workbench) resourceFilter(root string) *filefilter.FileFilter {
	w.mu.Lock()
	defer w.mu.Unlock()
	ff, ok := w.filters[root]
	if !ok {
		ff = filefilter.ForRoot(root, w.opts.ResourceFilter...)
		w.filters[root] = ff
	}
	return ff
}

func (w *Workbench) RegisterViewProvider(viewID string, p host.ViewProvider, opts host.ViewRegistrationOptions) (host.Disposable, error) {
	if strings.TrimSpace(viewID) == "" {
		return nil, errors.New("view id is empty")
	}
	if p == nil {
		return nil, errors.New("view provider is nil")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	if _, ok := w.views[viewID]; ok {
		return nil, errors.Wrap(ErrDuplicateView, viewID)
	}
	w.views[viewID] = viewRegistration{provider: p, opts: opts}
	w.logger.Info().Str("view_id", viewID).Bool("retain_context", opts.RetainContextWhenHidden).Msg("view provider registered")

	return host.DisposableFunc(func() { w.unregisterView(viewID, p) }), nil
}

// unregisterView drops the registration and disposes the containers it produced.
func (w *Workbench) unregisterView(viewID string, p host.ViewProvider) {
	w.mu.Lock()
	reg, ok := w.views[viewID]
	if !ok || reg.provider != p {
		w.mu.Unlock()
		return
	}
	delete(w.views, viewID)
	var gone []*Container
	for _, c := range w.containers {
		if c.viewID == viewID {
			gone = append(gone, c)
		}
	}
	w.mu.Unlock()

	for _, c := range gone {
		c.Dispose()
	}
	w.logger.Info().Str("view_id", viewID).Int("containers", len(gone)).Msg("view provider unregistered")
}

func (w *Workbench) RegisterCommand(id string, fn host.CommandFunc) (host.Disposable, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("command id is empty")
	}
	if fn == nil {
		return nil, errors.New("command func is nil")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	if _, ok := w.commands[id]; ok {
		return nil, errors.Wrap(ErrDuplicateCommand, id)
	}
	w.commands[id] = fn
	w.logger.Info().Str("command_id", id).Msg("command registered")

	return host.DisposableFunc(func() {
		w.mu.Lock()
		delete(w.commands, id)
		w.mu.Unlock()
	}), nil
}

// ExecuteCommand runs a registered command.
func (w *Workbench) ExecuteCommand(ctx context.Context, id string) (any, error) {
	w.mu.Lock()
	fn, ok := w.commands[id]
	w.mu.Unlock()
	if !ok {
		return nil, errors.Wrap(ErrUnknownCommand, id)
	}
	res, err := fn(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "execute %s", id)
	}
	return res, nil
}

// Commands lists the registered command ids, sorted.
func (w *Workbench) Commands() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.commands))
	for id := range w.commands {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OpenContainer creates a container for viewID and lets the registered provider resolve it.
func (w *Workbench) OpenContainer(ctx context.Context, viewID string) (*Container, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	reg, ok := w.views[viewID]
	if !ok {
		w.mu.Unlock()
		return nil, errors.Wrap(ErrUnknownView, viewID)
	}
	c := newContainer(containerOptions{
		id:            uuid.NewString(),
		viewID:        viewID,
		outboxSize:    w.opts.OutboxSize,
		attachTimeout: w.opts.AttachTimeout,
		tap:           w.opts.Tap,
		onGone:        w.forget,
	})
	w.containers[c.id] = c
	w.order = append(w.order, c.id)
	w.mu.Unlock()

	if err := reg.provider.ResolveView(ctx, c); err != nil {
		c.Dispose()
		return nil, errors.Wrapf(err, "resolve view %s", viewID)
	}
	w.logger.Info().Str("view_id", viewID).Str("container_id", c.id).Msg("container opened")
	return c, nil
}

func (w *Workbench) Container(id string) (*Container, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.containers[id]
	return c, ok
}

// Containers returns the live containers of viewID, oldest first.
func (w *Workbench) Containers(viewID string) []*Container {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*Container
	for _, id := range w.order {
		if c, ok := w.containers[id]; ok && c.viewID == viewID {
			out = append(out, c)
		}
	}
	return out
}

func (w *Workbench) ContainerCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.containers)
}

func (w *Workbench) forget(c *Container) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, ok := w.containers[c.id]; !ok || cur != c {
		return
	}
	delete(w.containers, c.id)
	for i, id := range w.order {
		if id == c.id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

// RevealView brings the newest container of viewID to the front. A visible container
// needs nothing; a hidden one is sent a reveal frame; without any container the answer
// carries the URL to open.
func (w *Workbench) RevealView(_ context.Context, viewID string) (host.RevealResult, error) {
	w.mu.Lock()
	_, registered := w.views[viewID]
	w.mu.Unlock()
	if !registered {
		return host.RevealResult{}, errors.Wrap(ErrUnknownView, viewID)
	}

	live := w.Containers(viewID)
	for i := len(live) - 1; i >= 0; i-- {
		if live[i].Visible() {
			return host.RevealResult{Action: host.RevealNone, ViewID: viewID, ContainerID: live[i].ID()}, nil
		}
	}
	for i := len(live) - 1; i >= 0; i-- {
		c := live[i]
		if err := c.Reveal(); err != nil {
			w.logger.Debug().Err(err).Str("container_id", c.ID()).Msg("reveal failed, trying older container")
			continue
		}
		return host.RevealResult{Action: host.RevealFocus, ViewID: viewID, ContainerID: c.ID()}, nil
	}
	return host.RevealResult{Action: host.RevealOpen, ViewID: viewID, URL: w.ViewURL(viewID)}, nil
}

// ViewURL is the page address of viewID.
func (w *Workbench) ViewURL(viewID string) string {
	return w.opts.BaseURL + viewPath(viewID)
}

func viewPath(viewID string) string {
	return "/views/" + url.PathEscape(viewID)
}

// Close disposes every container and refuses new registrations.
func (w *Workbench) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	all := make([]*Container, 0, len(w.containers))
	for _, c := range w.containers {
		all = append(all, c)
	}
	w.mu.Unlock()

	for _, c := range all {
		c.Dispose()
	}
	w.logger.Info().Int("containers", len(all)).Msg("workbench closed")
}
