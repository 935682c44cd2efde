package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/teemow/rsvp/internal/invites"
	"github.com/teemow/rsvp/internal/logging"
	"github.com/teemow/rsvp/internal/mcp/protocol"
)

// SubjectHeader names the subject of a REST call.
const SubjectHeader = "X-Subject"

const maxAPIBody = 16 << 10

// apiHandler mirrors the invitation tools as REST endpoints.
type apiHandler struct {
	sc             *ServerContext
	defaultSubject string
	requireSubject bool
}

func (h *apiHandler) Register(r chi.Router) {
	r.Get("/invites", h.listInvites)
	r.Post("/invites/{eventID}/respond", h.respond)
	r.Get("/auth/status", h.authStatus)
}

// subject resolves the caller from the X-Subject header.
func (h *apiHandler) subject(w http.ResponseWriter, r *http.Request) (string, bool) {
	meta := map[string]any{}
	if s := strings.TrimSpace(r.Header.Get(SubjectHeader)); s != "" {
		meta[protocol.MetaKeySubject] = s
	}
	subject, err := protocol.ResolveSubject(meta, h.defaultSubject, h.requireSubject)
	if err != nil {
		writeAPIJSON(w, http.StatusBadRequest, invites.ErrorPayload{
			Error: SubjectHeader + " header is required",
			Code:  "subject_required",
		})
		return "", false
	}
	return subject, true
}

// GET /api/invites?start_date=&end_date=
func (h *apiHandler) listInvites(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	result, err := h.sc.Invites().ListPending(r.Context(), subject, q.Get("start_date"), q.Get("end_date"))
	h.writeOutcome(w, result, err)
}

type respondRequest struct {
	Response string `json:"response"`
}

// POST /api/invites/{eventID}/respond
func (h *apiHandler) respond(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}

	var body respondRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxAPIBody))
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		h.writeOutcome(w, nil, &invites.ValidationError{Field: "body", Message: "request body must be a JSON object"})
		return
	}

	result, err := h.sc.Invites().Respond(r.Context(), subject, chi.URLParam(r, "eventID"), body.Response)
	h.writeOutcome(w, result, err)
}

// GET /api/auth/status
func (h *apiHandler) authStatus(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	writeAPIJSON(w, http.StatusOK, h.sc.Invites().AuthStatus(r.Context(), subject))
}

func (h *apiHandler) writeOutcome(w http.ResponseWriter, result any, err error) {
	payload, isError := invites.Payload(result, err)
	if isError {
		h.sc.Logger().Debug("API request failed", logging.Err(err))
	}
	writeAPIJSON(w, invites.HTTPStatus(err), payload)
}

func writeAPIJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
