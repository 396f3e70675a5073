// Package viewclient speaks the envelope channel of a workbench container from outside
// a browser.
package viewclient

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cattail/pkg/envelope"
)

// Client owns one websocket. Inbound envelopes are delivered on Messages, which is
// closed when the socket ends.
type Client struct {
	conn     *websocket.Conn
	logger   zerolog.Logger
	messages chan envelope.Envelope
	done     chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Open loads the page of viewID from a workbench at baseURL, which creates a container,
// and dials the socket of that container.
func Open(ctx context.Context, baseURL, viewID string) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if base.Path == "" {
		base.Path = "/"
	}
	page := base.JoinPath("views", viewID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build page request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", page)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("open %s: %s", page, resp.Status)
	}
	containerID := resp.Header.Get("X-Container-ID")
	if containerID == "" {
		return nil, errors.Errorf("open %s: no container id in response", page)
	}

	ws := *page.JoinPath("ws")
	switch ws.Scheme {
	case "https":
		ws.Scheme = "wss"
	default:
		ws.Scheme = "ws"
	}
	ws.RawQuery = url.Values{"container": {containerID}}.Encode()
	return Dial(ctx, ws.String())
}

// Dial connects to a container socket URL.
func Dial(ctx context.Context, rawURL string) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", rawURL)
	}
	c := &Client{
		conn:     conn,
		logger:   log.With().Str("component", "viewclient").Str("remote", conn.RemoteAddr().String()).Logger(),
		messages: make(chan envelope.Envelope, 64),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.messages)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.setErr(err)
			}
			c.logger.Debug().Err(err).Msg("ws read loop end")
			return
		}
		e, err := envelope.Decode(data)
		if err != nil {
			c.logger.Debug().Err(err).Msg("dropping malformed frame")
			continue
		}
		select {
		case c.messages <- e:
		case <-c.done:
			return
		}
	}
}

func (c *Client) Messages() <-chan envelope.Envelope { return c.messages }

func (c *Client) Send(o envelope.Outbound) error {
	return c.write(o)
}

// SetVisible reports the visibility of the rendering surface to the host.
func (c *Client) SetVisible(visible bool) error {
	return c.write(envelope.NewVisibility(visible))
}

func (c *Client) write(v any) error {
	data, err := envelope.Encode(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "write envelope")
	}
	return nil
}

// Err is the error that ended the read loop, nil after a local Close.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	c.err = err
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
