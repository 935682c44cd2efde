package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/rsvp/internal/logging"
	"github.com/teemow/rsvp/internal/mcp/oauth"
)

// MaxRequestBytes bounds a single JSON-RPC request body.
const MaxRequestBytes = 1 << 20

// Authenticator validates bearer tokens for the HTTP transport.
type Authenticator interface {
	// Authenticate returns the token, or nil and a short reason.
	Authenticate(r *http.Request) (*oauth.AccessToken, string)
	// Challenge is the WWW-Authenticate value for 401 responses.
	Challenge() string
}

// HTTPHandler serves the dispatcher on a single POST endpoint.
type HTTPHandler struct {
	dispatcher *Dispatcher
	auth       Authenticator
	logger     *slog.Logger
}

// NewHTTPHandler creates the POST endpoint. A nil auth disables the bearer
// check.
func NewHTTPHandler(d *Dispatcher, auth Authenticator, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = d.logger
	}
	return &HTTPHandler{dispatcher: d, auth: auth, logger: logger}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeResponse(w, http.StatusRequestEntityTooLarge, errorResponse(nil, NewError(mcp.INVALID_REQUEST, "request body too large")))
			return
		}
		writeResponse(w, http.StatusBadRequest, errorResponse(nil, NewError(mcp.PARSE_ERROR, "failed to read request body")))
		return
	}

	ctx := r.Context()
	if h.auth != nil {
		token, reason := h.auth.Authenticate(r)
		if token == nil {
			h.logger.Info("Rejected unauthenticated request", slog.String("reason", reason))
			w.Header().Set("WWW-Authenticate", h.auth.Challenge())
			writeResponse(w, http.StatusUnauthorized, errorResponse(peekID(body), NewError(CodeUnauthorized, "unauthorized")))
			return
		}
		ctx = oauth.ContextWithToken(ctx, token)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		writeResponse(w, http.StatusBadRequest, errorResponse(nil, NewError(mcp.INVALID_REQUEST, "batch requests are not supported")))
		return
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		writeResponse(w, http.StatusBadRequest, errorResponse(nil, NewError(mcp.PARSE_ERROR, "parse error")))
		return
	}
	if req.Method == "" {
		writeResponse(w, http.StatusBadRequest, errorResponse(req.responseID(), NewError(mcp.INVALID_REQUEST, "method is required")))
		return
	}

	resp := h.dispatcher.Dispatch(ctx, &req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if resp.Error != nil {
		h.logger.Debug("Request failed", logging.Method(req.Method), slog.Int("code", resp.Error.Code))
	}
	writeResponse(w, http.StatusOK, resp)
}

// peekID extracts the id from a body that may not be a valid request.
func peekID(body []byte) json.RawMessage {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil
	}
	return probe.ID
}

func writeResponse(w http.ResponseWriter, status int, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
