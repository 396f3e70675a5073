package workbench

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/cattail/pkg/envelope"
	"github.com/go-go-golems/cattail/pkg/host"
	"github.com/go-go-golems/cattail/pkg/tap"
	"github.com/go-go-golems/cattail/pkg/view"
)

type bench struct {
	wb  *Workbench
	ext *host.Extension
	srv *httptest.Server
}

func newBench(t *testing.T, opts Options, provider host.ChatViewProviderOptions) *bench {
	t.Helper()
	if provider.Document == nil {
		renderer, err := view.NewRenderer(view.DocumentOptions{})
		require.NoError(t, err)
		provider.Document = renderer
	}
	if provider.ReplyDelay == 0 {
		provider.ReplyDelay = 20 * time.Millisecond
	}

	wb := New(opts)
	ext := host.NewExtension(host.ExtensionOptions{Provider: provider})
	require.NoError(t, ext.Activate(context.Background(), wb))

	srv := httptest.NewServer(NewHandler(wb, HandlerOptions{DefaultView: host.ViewID}))
	wb.opts.BaseURL = srv.URL
	t.Cleanup(func() {
		_ = ext.Deactivate()
		wb.Close()
		srv.Close()
	})
	return &bench{wb: wb, ext: ext, srv: srv}
}

var dataWS = regexp.MustCompile(`data-ws="([^"]+)"`)

// openPage loads the chat view page and returns the container id and its socket path.
func (b *bench) openPage(t *testing.T) (string, string) {
	t.Helper()
	resp, err := http.Get(b.srv.URL + "/views/" + host.ViewID)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	m := dataWS.FindStringSubmatch(string(body))
	require.Len(t, m, 2)

	id := resp.Header.Get("X-Container-ID")
	require.NotEmpty(t, id)
	require.Contains(t, m[1], id)
	return id, m[1]
}

func (b *bench) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(b.srv.URL, "http")+path, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (b *bench) waitAttached(t *testing.T, id string) *Container {
	t.Helper()
	c, ok := b.wb.Container(id)
	require.True(t, ok)
	require.Eventually(t, c.Attached, 2*time.Second, 5*time.Millisecond)
	return c
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	e, err := envelope.Decode(data)
	require.NoError(t, err)
	return e
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := envelope.Encode(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestHelloRoundTrip(t *testing.T) {
	tp, err := tap.New(tap.Settings{Enabled: true})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = tp.Run(ctx) }()
	<-tp.Running()
	defer func() { _ = tp.Close() }()

	b := newBench(t, Options{Tap: tp}, host.ChatViewProviderOptions{})
	_, path := b.openPage(t)
	conn := b.dial(t, path)

	send(t, conn, envelope.NewSendMessage("hello"))

	got := readEnvelope(t, conn)
	require.Equal(t, envelope.KindReceiveMessage, got.Kind)
	require.Equal(t, `AI reply: you said "hello"`, got.Text)
	require.True(t, got.IsBot)

	require.Eventually(t, func() bool { return tp.Seen() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestReplyWireShape(t *testing.T) {
	b := newBench(t, Options{}, host.ChatViewProviderOptions{})
	_, path := b.openPage(t)
	conn := b.dial(t, path)

	send(t, conn, envelope.NewSendMessage(`say "hi"`))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"receiveMessage","text":"AI reply: you said \"say \"hi\"\"","isBot":true}`, string(data))
}

func TestMalformedAndUnknownFramesAreIgnored(t *testing.T) {
	b := newBench(t, Options{}, host.ChatViewProviderOptions{})
	_, path := b.openPage(t)
	conn := b.dial(t, path)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing"}`)))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(`{"type":"sendMessage","text":"bin"}`)))
	send(t, conn, envelope.NewSendMessage("after"))

	got := readEnvelope(t, conn)
	require.Equal(t, `AI reply: you said "after"`, got.Text)
}

func TestSocketCloseDisposesContainerAndCancelsReplies(t *testing.T) {
	b := newBench(t, Options{}, host.ChatViewProviderOptions{ReplyDelay: time.Hour})
	id, path := b.openPage(t)
	conn := b.dial(t, path)

	send(t, conn, envelope.NewSendMessage("hello"))
	provider := b.ext.Provider()
	require.Eventually(t, func() bool { return provider.PendingReplies() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		_, ok := b.wb.Container(id)
		return !ok && provider.PendingReplies() == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Nil(t, provider.View())
}

func TestTwoPagesEachGetTheirOwnReplies(t *testing.T) {
	b := newBench(t, Options{}, host.ChatViewProviderOptions{})
	idA, pathA := b.openPage(t)
	connA := b.dial(t, pathA)
	b.waitAttached(t, idA)
	idB, pathB := b.openPage(t)
	connB := b.dial(t, pathB)
	b.waitAttached(t, idB)

	send(t, connA, envelope.NewSendMessage("from A"))
	require.Equal(t, `AI reply: you said "from A"`, readEnvelope(t, connA).Text)

	send(t, connB, envelope.NewSendMessage("from B"))
	require.Equal(t, `AI reply: you said "from B"`, readEnvelope(t, connB).Text)

	require.NoError(t, connB.Close())
	require.Eventually(t, func() bool {
		_, ok := b.wb.Container(idB)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	cA, ok := b.wb.Container(idA)
	require.True(t, ok)
	require.False(t, cA.Disposed())
	send(t, connA, envelope.NewSendMessage("second from A"))
	require.Equal(t, `AI reply: you said "second from A"`, readEnvelope(t, connA).Text)
	require.Equal(t, idA, b.ext.Provider().View().ID())
}

func TestAttachTimeoutDisposesContainer(t *testing.T) {
	b := newBench(t, Options{AttachTimeout: 50 * time.Millisecond}, host.ChatViewProviderOptions{})
	id, _ := b.openPage(t)

	c, ok := b.wb.Container(id)
	require.True(t, ok)
	require.Eventually(t, c.Disposed, 2*time.Second, 10*time.Millisecond)
	require.Zero(t, b.wb.ContainerCount())
}

func TestAttachToUnknownContainer(t *testing.T) {
	b := newBench(t, Options{}, host.ChatViewProviderOptions{})
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(b.srv.URL, "http")+"/views/"+host.ViewID+"/ws?container=nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSecondSocketIsRejected(t *testing.T) {
	b := newBench(t, Options{}, host.ChatViewProviderOptions{})
	id, path := b.openPage(t)
	first := b.dial(t, path)
	b.waitAttached(t, id)
	second := b.dial(t, path)

	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := second.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "%v", err)

	send(t, first, envelope.NewSendMessage("still here"))
	require.Equal(t, `AI reply: you said "still here"`, readEnvelope(t, first).Text)
}

func TestOutboxFlushesOnAttach(t *testing.T) {
	b := newBench(t, Options{OutboxSize: 2}, host.ChatViewProviderOptions{})
	c, err := b.wb.OpenContainer(context.Background(), host.ViewID)
	require.NoError(t, err)

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, c.PostMessage(context.Background(), envelope.NewReceiveMessage(text, true)))
	}

	conn := b.dial(t, viewPath(host.ViewID)+"/ws?container="+c.ID())
	require.Equal(t, "two", readEnvelope(t, conn).Text)
	require.Equal(t, "three", readEnvelope(t, conn).Text)
}

func TestPostAfterDispose(t *testing.T) {
	b := newBench(t, Options{}, host.ChatViewProviderOptions{})
	c, err := b.wb.OpenContainer(context.Background(), host.ViewID)
	require.NoError(t, err)
	c.Dispose()
	c.Dispose()

	err = c.PostMessage(context.Background(), envelope.NewReceiveMessage("late", true))
	require.ErrorIs(t, err, host.ErrContainerDisposed)
	require.False(t, c.Visible())

	called := false
	c.OnDidDispose(func() { called = true })
	require.True(t, called)
}

func TestRevealView(t *testing.T) {
	b := newBench(t, Options{}, host.ChatViewProviderOptions{})
	ctx := context.Background()

	res, err := b.wb.RevealView(ctx, host.ViewID)
	require.NoError(t, err)
	require.Equal(t, host.RevealOpen, res.Action)
	require.Equal(t, b.srv.URL+"/views/"+host.ViewID, res.URL)

	id, path := b.openPage(t)
	conn := b.dial(t, path)
	c := b.waitAttached(t, id)
	res, err = b.wb.RevealView(ctx, host.ViewID)
	require.NoError(t, err)
	require.Equal(t, host.RevealNone, res.Action)
	require.Equal(t, id, res.ContainerID)

	send(t, conn, envelope.NewVisibility(false))
	require.Eventually(t, func() bool { return !c.Visible() }, 2*time.Second, 10*time.Millisecond)

	res, err = b.wb.RevealView(ctx, host.ViewID)
	require.NoError(t, err)
	require.Equal(t, host.RevealFocus, res.Action)
	require.Equal(t, envelope.KindHostReveal, readEnvelope(t, conn).Kind)

	_, err = b.wb.RevealView(ctx, "other.view")
	require.ErrorIs(t, err, ErrUnknownView)
}

func TestHostFramesNeverReachProvider(t *testing.T) {
	got := make(chan envelope.Kind, 8)
	wb := New(Options{})
	defer wb.Close()
	_, err := wb.RegisterViewProvider("plain.view", providerFunc(func(_ context.Context, c host.Container) error {
		c.OnDidReceiveMessage(func(e envelope.Envelope) { got <- e.Kind })
		return nil
	}), host.ViewRegistrationOptions{})
	require.NoError(t, err)

	srv := httptest.NewServer(NewHandler(wb, HandlerOptions{}))
	defer srv.Close()
	c, err := wb.OpenContainer(context.Background(), "plain.view")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/views/plain.view/ws?container="+c.ID(), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	send(t, conn, envelope.NewVisibility(true))
	send(t, conn, envelope.Envelope{Kind: "host.other"})
	send(t, conn, envelope.NewSendMessage("x"))

	select {
	case k := <-got:
		require.Equal(t, envelope.KindSendMessage, k)
	case <-time.After(2 * time.Second):
		t.Fatal("provider got nothing")
	}
	require.Empty(t, got)
}

type providerFunc func(ctx context.Context, c host.Container) error

func (f providerFunc) ResolveView(ctx context.Context, c host.Container) error { return f(ctx, c) }

func TestRegistrationErrorsAndUnregister(t *testing.T) {
	wb := New(Options{})
	p := providerFunc(func(context.Context, host.Container) error { return nil })

	sub, err := wb.RegisterViewProvider("v", p, host.ViewRegistrationOptions{})
	require.NoError(t, err)
	_, err = wb.RegisterViewProvider("v", p, host.ViewRegistrationOptions{})
	require.ErrorIs(t, err, ErrDuplicateView)

	cmd, err := wb.RegisterCommand("c", func(context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)
	_, err = wb.RegisterCommand("c", func(context.Context) (any, error) { return nil, nil })
	require.ErrorIs(t, err, ErrDuplicateCommand)

	c, err := wb.OpenContainer(context.Background(), "v")
	require.NoError(t, err)

	sub.Dispose()
	require.True(t, c.Disposed())
	_, err = wb.OpenContainer(context.Background(), "v")
	require.ErrorIs(t, err, ErrUnknownView)

	res, err := wb.ExecuteCommand(context.Background(), "c")
	require.NoError(t, err)
	require.Equal(t, "ok", res)
	cmd.Dispose()
	_, err = wb.ExecuteCommand(context.Background(), "c")
	require.ErrorIs(t, err, ErrUnknownCommand)

	wb.Close()
	_, err = wb.RegisterCommand("d", func(context.Context) (any, error) { return nil, nil })
	require.ErrorIs(t, err, ErrClosed)
}

func TestCloseDisposesContainers(t *testing.T) {
	b := newBench(t, Options{}, host.ChatViewProviderOptions{ReplyDelay: time.Hour})
	_, path := b.openPage(t)
	conn := b.dial(t, path)
	send(t, conn, envelope.NewSendMessage("pending"))

	provider := b.ext.Provider()
	require.Eventually(t, func() bool { return provider.PendingReplies() == 1 }, 2*time.Second, 10*time.Millisecond)

	b.wb.Close()
	require.Zero(t, b.wb.ContainerCount())
	require.Zero(t, provider.PendingReplies())

	resp, err := http.Get(b.srv.URL + "/views/" + host.ViewID)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestExtensionCommandThroughWorkbench(t *testing.T) {
	b := newBench(t, Options{}, host.ChatViewProviderOptions{})
	res, err := b.wb.ExecuteCommand(context.Background(), host.OpenChatCommand)
	require.NoError(t, err)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	require.JSONEq(t, `{"action":"open","view_id":"`+host.ViewID+`","url":"`+b.srv.URL+`/views/`+host.ViewID+`"}`, string(raw))
}
