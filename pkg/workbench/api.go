package workbench

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/go-go-golems/cattail/pkg/host"
)

const (
	CodeOK    = 0
	CodeError = 1
)

// APIResponse is the envelope of every /api answer. Data is never null.
type APIResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

func apiSuccess(data any) APIResponse {
	if data == nil {
		data = map[string]any{}
	}
	return APIResponse{Code: CodeOK, Msg: "success", Data: data}
}

func apiError(msg string) APIResponse {
	if msg == "" {
		msg = "error"
	}
	return APIResponse{Code: CodeError, Msg: msg, Data: map[string]any{}}
}

// ChatRequest is the body of POST /api/chat. Message is accepted as an alias of Text.
type ChatRequest struct {
	Text    string `json:"text"`
	Message string `json:"message,omitempty"`
}

func (r ChatRequest) prompt() string {
	if t := strings.TrimSpace(r.Text); t != "" {
		return t
	}
	return strings.TrimSpace(r.Message)
}

type ChatReply struct {
	Reply string `json:"reply"`
	IsBot bool   `json:"isBot"`
}

const maxChatBody = 1 << 20

// NewChatAPIHandler answers prompts synchronously with the responder. GET returns an
// empty history.
func NewChatAPIHandler(responder host.Responder) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			writeJSON(rw, http.StatusOK, apiSuccess(nil))
		case http.MethodPost:
			var body ChatRequest
			if err := json.NewDecoder(io.LimitReader(req.Body, maxChatBody)).Decode(&body); err != nil {
				writeJSON(rw, http.StatusBadRequest, apiError("invalid request body"))
				return
			}
			prompt := body.prompt()
			if prompt == "" {
				writeJSON(rw, http.StatusBadRequest, apiError("missing text"))
				return
			}
			reply, err := responder.Respond(req.Context(), prompt)
			if err != nil {
				zerolog.Ctx(req.Context()).Warn().Err(err).Msg("responder failed")
				writeJSON(rw, http.StatusInternalServerError, apiError("responder failed"))
				return
			}
			writeJSON(rw, http.StatusOK, apiSuccess(ChatReply{Reply: reply, IsBot: true}))
		default:
			rw.Header().Set("Allow", "GET, POST, OPTIONS")
			writeJSON(rw, http.StatusMethodNotAllowed, apiError("method not allowed"))
		}
	}
}

// withCORS opens the API to any origin and answers preflight requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		h := rw.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if req.Method == http.MethodOptions {
			rw.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(rw, req)
	})
}
