package workbench

import (
	"embed"
	"encoding/json"
	stderrors "errors"
	"html"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/cattail/pkg/filefilter"
	"github.com/go-go-golems/cattail/pkg/host"
	"github.com/go-go-golems/cattail/pkg/logging"
)

//go:embed static/*
var staticFS embed.FS

const (
	themePath     = "/host/theme.css"
	bootstrapPath = "/host/bootstrap.js"
)

type HandlerOptions struct {
	// DefaultView is where GET / redirects to.
	DefaultView string
	// Responder answers /api/chat; EchoResponder when nil.
	Responder host.Responder
	Upgrader  websocket.Upgrader
}

// NewHandler mounts every workbench route on a fresh mux.
func NewHandler(w *Workbench, opts HandlerOptions) http.Handler {
	if opts.Responder == nil {
		opts.Responder = host.EchoResponder{}
	}
	mux := http.NewServeMux()

	if opts.DefaultView != "" {
		target := viewPath(opts.DefaultView)
		mux.HandleFunc("GET /{$}", func(rw http.ResponseWriter, req *http.Request) {
			http.Redirect(rw, req, target, http.StatusFound)
		})
	}
	mux.HandleFunc("GET /views/{viewID}", NewViewHandler(w))
	mux.HandleFunc("GET /views/{viewID}/ws", NewWSHandler(w, opts.Upgrader))
	mux.HandleFunc("GET /resources/{containerID}/{path...}", NewResourceHandler(w))
	mux.HandleFunc("POST /commands/{commandID}", NewCommandHandler(w))
	mux.HandleFunc("GET "+themePath, NewThemeHandler(w.opts.Theme))
	mux.HandleFunc("GET "+bootstrapPath, serveBootstrap)
	mux.Handle("/api/chat", withCORS(NewChatAPIHandler(opts.Responder)))
	mux.HandleFunc("GET /healthz", NewHealthHandler(w))

	return logging.HTTPMiddleware(log.Logger)(mux)
}

// NewViewHandler opens a container for the requested view and serves its document
// with the host bootstrap injected.
func NewViewHandler(w *Workbench) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		viewID := req.PathValue("viewID")
		c, err := w.OpenContainer(req.Context(), viewID)
		if err != nil {
			switch {
			case stderrors.Is(err, ErrUnknownView):
				http.Error(rw, "unknown view", http.StatusNotFound)
			case stderrors.Is(err, ErrClosed):
				http.Error(rw, "workbench is shutting down", http.StatusServiceUnavailable)
			default:
				zerolog.Ctx(req.Context()).Error().Err(err).Str("view_id", viewID).Msg("open container")
				http.Error(rw, "failed to open view", http.StatusInternalServerError)
			}
			return
		}

		wsPath := viewPath(viewID) + "/ws?container=" + url.QueryEscape(c.ID())
		doc := injectHostTags(c.HTML(), wsPath)

		h := rw.Header()
		h.Set("Content-Type", "text/html; charset=utf-8")
		h.Set("Cache-Control", "no-store")
		h.Set("X-Container-ID", c.ID())
		if !c.Options().EnableScripts {
			h.Set("Content-Security-Policy", "script-src 'none'")
		}
		_, _ = rw.Write([]byte(doc))
	}
}

// injectHostTags adds the theme stylesheet and the channel bootstrap to the end of the
// document head, after any CSP meta tag, so the policy also governs them.
func injectHostTags(doc, wsPath string) string {
	tags := `<link rel="stylesheet" href="` + themePath + `">` +
		`<script src="` + bootstrapPath + `" data-ws="` + html.EscapeString(wsPath) + `"></script>`
	idx := strings.Index(strings.ToLower(doc), "</head>")
	if idx < 0 {
		return tags + doc
	}
	return doc[:idx] + tags + doc[idx:]
}

// NewWSHandler upgrades the page's channel socket and attaches it to its container.
func NewWSHandler(w *Workbench, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		viewID := req.PathValue("viewID")
		c, ok := w.Container(req.URL.Query().Get("container"))
		if !ok || c.ViewID() != viewID {
			http.Error(rw, "unknown container", http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(rw, req, nil)
		if err != nil {
			return
		}
		if err := c.Attach(conn); err != nil {
			zerolog.Ctx(req.Context()).Debug().Err(err).Str("container_id", c.ID()).Msg("attach websocket")
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "failed to attach websocket"))
			_ = conn.Close()
		}
	}
}

// NewResourceHandler serves files below the local resource roots of a container.
func NewResourceHandler(w *Workbench) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		c, ok := w.Container(req.PathValue("containerID"))
		name := req.PathValue("path")
		if !ok || !fs.ValidPath(name) {
			http.NotFound(rw, req)
			return
		}
		for _, root := range c.Options().LocalResourceRoots {
			if strings.TrimSpace(root) == "" {
				continue
			}
			if !filefilter.Contained(root, name) {
				continue
			}
			fsys := os.DirFS(root)
			if !w.resourceFilter(root).Allow(fsys, name) {
				continue
			}
			http.ServeFileFS(rw, req, fsys, name)
			return
		}
		http.NotFound(rw, req)
	}
}

func NewCommandHandler(w *Workbench) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		id := req.PathValue("commandID")
		res, err := w.ExecuteCommand(req.Context(), id)
		if err != nil {
			if stderrors.Is(err, ErrUnknownCommand) {
				http.Error(rw, "unknown command", http.StatusNotFound)
				return
			}
			zerolog.Ctx(req.Context()).Warn().Err(err).Str("command_id", id).Msg("command failed")
			http.Error(rw, "command failed", http.StatusInternalServerError)
			return
		}
		writeJSON(rw, http.StatusOK, res)
	}
}

func NewThemeHandler(t Theme) http.HandlerFunc {
	css := t.CSS()
	return func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "text/css; charset=utf-8")
		_, _ = rw.Write([]byte(css))
	}
}

func serveBootstrap(rw http.ResponseWriter, req *http.Request) {
	b, err := staticFS.ReadFile("static/bootstrap.js")
	if err != nil {
		http.Error(rw, "bootstrap missing", http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	_, _ = rw.Write(b)
}

func NewHealthHandler(w *Workbench) http.HandlerFunc {
	return func(rw http.ResponseWriter, _ *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]any{
			"status":     "ok",
			"containers": w.ContainerCount(),
			"commands":   w.Commands(),
		})
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		log.Debug().Err(err).Str("component", "workbench").Msg("encode json response")
	}
}
