package workbench

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cattail/pkg/envelope"
	"github.com/go-go-golems/cattail/pkg/host"
	"github.com/go-go-golems/cattail/pkg/tap"
)

var ErrAlreadyAttached = errors.New("container already has a socket attached")

// Container is one page load of a view. Envelopes travel over the websocket the page
// attaches; posts made before the socket attaches are buffered and flushed on attach.
// A container whose socket never attaches within the attach timeout is disposed, and so
// is one whose socket closes.
type Container struct {
	id     string
	viewID string
	logger zerolog.Logger
	tap    *tap.Tap
	onGone func(*Container)

	mu          sync.Mutex
	opts        host.ViewOptions
	html        string
	visible     bool
	conn        *websocket.Conn
	outbox      [][]byte
	outboxSize  int
	dropped     int
	onMessage   []func(envelope.Envelope)
	onDispose   []func()
	disposed    bool
	attachTimer *time.Timer
}

var _ host.Container = (*Container)(nil)

type containerOptions struct {
	id            string
	viewID        string
	outboxSize    int
	attachTimeout time.Duration
	tap           *tap.Tap
	onGone        func(*Container)
}

func newContainer(o containerOptions) *Container {
	c := &Container{
		id:         o.id,
		viewID:     o.viewID,
		tap:        o.tap,
		onGone:     o.onGone,
		outboxSize: o.outboxSize,
		logger: log.With().
			Str("component", "workbench").
			Str("view_id", o.viewID).
			Str("container_id", o.id).
			Logger(),
	}
	if o.attachTimeout > 0 {
		c.attachTimer = time.AfterFunc(o.attachTimeout, c.attachExpired)
	}
	return c
}

func (c *Container) ID() string     { return c.id }
func (c *Container) ViewID() string { return c.viewID }

func (c *Container) SetOptions(opts host.ViewOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts = host.ViewOptions{
		EnableScripts:      opts.EnableScripts,
		LocalResourceRoots: append([]string(nil), opts.LocalResourceRoots...),
	}
}

func (c *Container) Options() host.ViewOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

func (c *Container) SetHTML(doc string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.html = doc
}

func (c *Container) HTML() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.html
}

func (c *Container) PostMessage(_ context.Context, msg envelope.Inbound) error {
	return c.post(envelope.Envelope{Kind: msg.Kind, Text: msg.Text, IsBot: msg.IsBot}, msg)
}

func (c *Container) OnDidReceiveMessage(fn func(envelope.Envelope)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = append(c.onMessage, fn)
}

func (c *Container) OnDidDispose(fn func()) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		fn()
		return
	}
	c.onDispose = append(c.onDispose, fn)
	c.mu.Unlock()
}

func (c *Container) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

func (c *Container) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible && !c.disposed
}

func (c *Container) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Reveal asks the page to bring itself to the front.
func (c *Container) Reveal() error {
	return c.post(envelope.NewReveal(), envelope.NewReveal())
}

// post encodes wire and sends it, or buffers it while no socket is attached.
func (c *Container) post(e envelope.Envelope, wire any) error {
	data, err := envelope.Encode(wire)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return host.ErrContainerDisposed
	}
	if c.conn == nil {
		c.bufferLocked(data)
		c.mu.Unlock()
		c.record(tap.HostToView, e)
		return nil
	}
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	conn := c.conn
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Msg("ws send failed, dropping connection")
		_ = conn.Close()
		return errors.Wrap(err, "write envelope")
	}
	c.record(tap.HostToView, e)
	return nil
}

func (c *Container) bufferLocked(data []byte) {
	if c.outboxSize <= 0 {
		c.dropped++
		return
	}
	if len(c.outbox) >= c.outboxSize {
		c.outbox = c.outbox[1:]
		c.dropped++
	}
	c.outbox = append(c.outbox, data)
}

// Attach binds the page's socket, flushes the outbox and starts the read loop.
// The container is disposed when the read loop ends.
func (c *Container) Attach(conn *websocket.Conn) error {
	if conn == nil {
		return errors.New("websocket connection is nil")
	}
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return host.ErrContainerDisposed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyAttached
	}
	if c.attachTimer != nil {
		c.attachTimer.Stop()
		c.attachTimer = nil
	}
	c.conn = conn
	c.visible = true
	pending := c.outbox
	dropped := c.dropped
	c.outbox = nil
	var flushErr error
	for _, data := range pending {
		if flushErr = conn.WriteMessage(websocket.TextMessage, data); flushErr != nil {
			break
		}
	}
	c.mu.Unlock()

	c.logger.Info().
		Str("remote", conn.RemoteAddr().String()).
		Int("flushed", len(pending)).
		Int("dropped", dropped).
		Msg("ws attached")
	if flushErr != nil {
		c.logger.Warn().Err(flushErr).Msg("ws flush failed, dropping connection")
		_ = conn.Close()
	}

	go c.readLoop(conn)
	return nil
}

func (c *Container) readLoop(conn *websocket.Conn) {
	defer c.Dispose()
	defer c.logger.Info().Msg("ws disconnected")
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Debug().Err(err).Msg("ws read loop end")
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		e, err := envelope.Decode(data)
		if err != nil {
			c.logger.Debug().Err(err).Msg("dropping malformed frame")
			continue
		}
		c.record(tap.ViewToHost, e)
		if e.IsReserved() {
			c.handleHostFrame(e)
			continue
		}
		c.dispatch(e)
	}
}

func (c *Container) handleHostFrame(e envelope.Envelope) {
	switch e.Kind {
	case envelope.KindHostVisibility:
		if e.Visible == nil {
			return
		}
		c.mu.Lock()
		c.visible = *e.Visible
		c.mu.Unlock()
		c.logger.Debug().Bool("visible", *e.Visible).Msg("visibility changed")
	default:
		c.logger.Debug().Str("kind", string(e.Kind)).Msg("ignoring host frame")
	}
}

func (c *Container) dispatch(e envelope.Envelope) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	handlers := append([]func(envelope.Envelope){}, c.onMessage...)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(e)
	}
}

func (c *Container) attachExpired() {
	c.mu.Lock()
	attached := c.conn != nil
	c.attachTimer = nil
	c.mu.Unlock()
	if attached {
		return
	}
	c.logger.Info().Msg("socket never attached, disposing container")
	c.Dispose()
}

// Dispose closes the socket and runs the dispose subscriptions once.
func (c *Container) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.visible = false
	if c.attachTimer != nil {
		c.attachTimer.Stop()
		c.attachTimer = nil
	}
	conn := c.conn
	c.outbox = nil
	handlers := c.onDispose
	c.onDispose = nil
	c.onMessage = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	for _, fn := range handlers {
		fn()
	}
	if c.onGone != nil {
		c.onGone(c)
	}
	c.logger.Debug().Msg("container disposed")
}

func (c *Container) record(dir tap.Direction, e envelope.Envelope) {
	c.tap.Record(tap.Record{ContainerID: c.id, ViewID: c.viewID, Direction: dir, Envelope: e})
}
