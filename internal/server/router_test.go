package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/rsvp/internal/calendar"
	"github.com/teemow/rsvp/internal/invites"
	"github.com/teemow/rsvp/internal/mcp/oauth"
	"github.com/teemow/rsvp/internal/mcp/protocol"
)

const testIssuer = "https://rsvp.example.com"

// stubAdapter connects only the subjects in authorized.
type stubAdapter struct {
	authorized map[string]string
	responded  []string
}

func (s *stubAdapter) ListPendingInvites(context.Context, string, time.Time, time.Time) ([]calendar.PendingInvite, error) {
	return []calendar.PendingInvite{{EventID: "e1", Summary: "Standup"}}, nil
}

func (s *stubAdapter) RespondToEvent(_ context.Context, _ string, eventID string, response calendar.ResponseStatus) (*calendar.RespondResult, error) {
	if eventID == "missing" {
		return nil, calendar.ErrEventNotFound
	}
	s.responded = append(s.responded, eventID+"="+string(response))
	return &calendar.RespondResult{EventID: eventID, EventSummary: "Standup", Response: response}, nil
}

func (s *stubAdapter) IsAuthorized(_ context.Context, subject string) bool {
	_, ok := s.authorized[subject]
	return ok
}

func (s *stubAdapter) ConsentURL(subject string) (string, error) {
	return "https://accounts.example.com/o?s=" + subject, nil
}

func (s *stubAdapter) UserEmail(_ context.Context, subject string) (string, error) {
	return s.authorized[subject], nil
}

type routerFixture struct {
	handler http.Handler
	oauth   *oauth.Handler
	adapter *stubAdapter
	health  *HealthChecker
	token   string
}

func newRouterFixture(t *testing.T, mutate func(*RouterConfig)) *routerFixture {
	t.Helper()

	adapter := &stubAdapter{authorized: map[string]string{"alice": "alice@example.com"}}
	sc, err := NewServerContext(context.Background(), invites.NewService(adapter))
	require.NoError(t, err)

	oauthHandler, err := oauth.NewHandler(&oauth.Config{Issuer: testIssuer}, oauth.NewRegistry(oauth.NewMemoryStore(nil)))
	require.NoError(t, err)
	token, err := oauthHandler.Registry().IssueAccessToken(context.Background(), "", "")
	require.NoError(t, err)

	health := NewHealthChecker(sc)
	cfg := RouterConfig{
		OAuth:      oauthHandler,
		Dispatcher: protocol.NewDispatcher(),
		Context:    sc,
		Health:     health,
		ConsentCallback: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		DefaultSubject: "alice",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	return &routerFixture{
		handler: NewRouter(cfg),
		oauth:   oauthHandler,
		adapter: adapter,
		health:  health,
		token:   token.Token,
	}
}

func (f *routerFixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *routerFixture) authed(extra map[string]string) map[string]string {
	headers := map[string]string{"Authorization": "Bearer " + f.token}
	for k, v := range extra {
		headers[k] = v
	}
	return headers
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRouter_Discovery(t *testing.T) {
	f := newRouterFixture(t, nil)

	for _, path := range []string{
		oauth.PathAuthorizationServerMeta,
		oauth.PathOpenIDConfiguration,
		oauth.PathProtectedResourceMetadata,
		oauth.PathProtectedResourceMetadata + "/mcp",
	} {
		t.Run(path, func(t *testing.T) {
			rec := f.do(http.MethodGet, path, "", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.NotEmpty(t, decodeJSON(t, rec))
		})
	}
}

func TestRouter_MCPRequiresBearer(t *testing.T) {
	f := newRouterFixture(t, nil)

	rec := f.do(http.MethodPost, "/mcp", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), testIssuer)

	rec = f.do(http.MethodPost, "/mcp", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, f.authed(nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/mcp", "", f.authed(nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_ConsentCallbackAndRequestID(t *testing.T) {
	f := newRouterFixture(t, nil)

	rec := f.do(http.MethodGet, "/oauth/google/callback?code=x", "", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = f.do(http.MethodGet, "/healthz", "", map[string]string{RequestIDHeader: "trace-me"})
	assert.Equal(t, "trace-me", rec.Header().Get(RequestIDHeader))
}

func TestRouter_API(t *testing.T) {
	f := newRouterFixture(t, nil)

	t.Run("requires bearer", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/invites", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("list for default subject", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/invites?start_date=2025-06-01&end_date=2025-06-02", "", f.authed(nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeJSON(t, rec)
		assert.Equal(t, float64(1), body["count"])
		assert.Equal(t, "2025-06-01T00:00:00Z", body["startDate"])
	})

	t.Run("list for unconnected subject", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/invites", "", f.authed(map[string]string{SubjectHeader: "bob"}))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeJSON(t, rec)
		assert.Equal(t, true, body["authRequired"])
		assert.Equal(t, "https://accounts.example.com/o?s=bob", body["authUrl"])
	})

	t.Run("bad date", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/invites?end_date=soon", "", f.authed(nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "end_date", decodeJSON(t, rec)["field"])
	})

	t.Run("respond", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/invites/e1/respond", `{"response":"accepted"}`, f.authed(nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeJSON(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "Standup", body["eventSummary"])
		assert.Equal(t, []string{"e1=accepted"}, f.adapter.responded)
	})

	t.Run("respond validation", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/invites/e1/respond", `{"response":"maybe"}`, f.authed(nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = f.do(http.MethodPost, "/api/invites/e1/respond", `not json`, f.authed(nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("respond not found", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/invites/missing/respond", `{"response":"declined"}`, f.authed(nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, string(invites.KindNotFound), decodeJSON(t, rec)["code"])
	})

	t.Run("auth status", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/auth/status", "", f.authed(nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"authenticated": true, "email": "alice@example.com"}, decodeJSON(t, rec))
	})
}

func TestRouter_APIRequireSubject(t *testing.T) {
	f := newRouterFixture(t, func(cfg *RouterConfig) { cfg.RequireSubject = true })

	rec := f.do(http.MethodGet, "/api/auth/status", "", f.authed(nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "subject_required", decodeJSON(t, rec)["code"])

	rec = f.do(http.MethodGet, "/api/auth/status", "", f.authed(map[string]string{SubjectHeader: "alice"}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Health(t *testing.T) {
	f := newRouterFixture(t, nil)

	rec := f.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	f.health.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	rec = f.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	checks := decodeJSON(t, rec)["checks"].(map[string]any)
	assert.Equal(t, "failing", checks["redis"])

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "", nil).Code, "liveness ignores dependencies")
}
