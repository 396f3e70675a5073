package cmds

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/cattail/pkg/envelope"
	"github.com/go-go-golems/cattail/pkg/host"
	"github.com/go-go-golems/cattail/pkg/tap"
	"github.com/go-go-golems/cattail/pkg/view"
	"github.com/go-go-golems/cattail/pkg/workbench"
)

func newWorkbenchServer(t *testing.T) *httptest.Server {
	t.Helper()
	renderer, err := view.NewRenderer(view.DefaultDocumentOptions())
	require.NoError(t, err)

	wb := workbench.New(workbench.Options{})
	ext := host.NewExtension(host.ExtensionOptions{Provider: host.ChatViewProviderOptions{Document: renderer}})
	require.NoError(t, ext.Activate(context.Background(), wb))

	srv := httptest.NewServer(workbench.NewHandler(wb, workbench.HandlerOptions{DefaultView: host.ViewID}))
	t.Cleanup(func() {
		srv.Close()
		_ = ext.Deactivate()
		wb.Close()
	})
	return srv
}

func TestExecuteOpenCommand(t *testing.T) {
	srv := newWorkbenchServer(t)

	res, err := executeCommand(context.Background(), srv.URL, host.OpenChatCommand)
	require.NoError(t, err)
	require.Equal(t, host.RevealOpen, res.Action)
	require.Equal(t, host.ViewID, res.ViewID)

	_, err = executeCommand(context.Background(), srv.URL, "nope")
	require.ErrorContains(t, err, "404")
}

func TestPrintReveal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printReveal(&buf, host.RevealResult{Action: host.RevealOpen, URL: "http://x/views/v"}, false))
	require.Equal(t, "no chat view is open, open http://x/views/v\n", buf.String())

	buf.Reset()
	require.NoError(t, printReveal(&buf, host.RevealResult{Action: host.RevealFocus, ContainerID: "c1"}, false))
	require.Contains(t, buf.String(), "c1")

	buf.Reset()
	require.NoError(t, printReveal(&buf, host.RevealResult{Action: host.RevealNone, ContainerID: "c1"}, false))
	require.Contains(t, buf.String(), "already visible")

	require.Error(t, printReveal(&buf, host.RevealResult{Action: "explode"}, false))
}

func TestPrintRecord(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	payload, err := json.Marshal(tap.Record{
		ContainerID: "c1",
		Direction:   tap.ViewToHost,
		Envelope:    envelope.Envelope{Kind: envelope.KindSendMessage, Text: "hi"},
		At:          at,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, printRecord(&buf, payload, false))
	require.Equal(t, "03:04:05.006 view->host c1 sendMessage \"hi\"\n", buf.String())

	buf.Reset()
	require.NoError(t, printRecord(&buf, payload, true))
	require.Equal(t, string(payload)+"\n", buf.String())

	buf.Reset()
	require.NoError(t, printRecord(&buf, []byte("garbage"), false))
	require.Equal(t, "? garbage\n", buf.String())
}

func TestConfigShowUsesFileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cattail.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9191\"\nreply-delay: 1s\n"), 0o644))

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "show", "--config", path, "--log-level", "error"})
	require.NoError(t, root.Execute())

	require.Contains(t, out.String(), "9191")
	require.Contains(t, out.String(), "reply-delay: 1s")
	require.Contains(t, out.String(), "level: error")
}

func TestConfigInitWritesFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out", "cattail.yaml")

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "init", "--config", writeEmpty(t, dir), "--path", target, "--log-level", "error"})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "wrote "+target)
	require.FileExists(t, target)
}

func writeEmpty(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(p, []byte("{}\n"), 0o644))
	return p
}
