package calendar

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"

	"github.com/teemow/rsvp/internal/google"
)

const (
	testSelfEmail  = "alice@example.com"
	testStateKey   = "0123456789abcdef0123456789abcdef"
	testConsentURI = "https://rsvp.example.com/oauth/google/callback"
)

// fakeCalendarAPI serves the subset of the Calendar, userinfo and token
// endpoints the adapter uses.
type fakeCalendarAPI struct {
	t *testing.T

	mu        sync.Mutex
	events    map[string]*calendar.Event
	order     []string
	pageSize  int
	listCalls int
	patches   []calendar.Event
	forbidden map[string]bool
	email     string
}

func newFakeCalendarAPI(t *testing.T) (*fakeCalendarAPI, *httptest.Server) {
	t.Helper()
	api := &fakeCalendarAPI{
		t:         t,
		events:    make(map[string]*calendar.Event),
		pageSize:  100,
		forbidden: make(map[string]bool),
		email:     testSelfEmail,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /calendars/primary/events", api.list)
	mux.HandleFunc("GET /calendars/primary/events/{id}", api.get)
	mux.HandleFunc("PATCH /calendars/primary/events/{id}", api.patch)
	mux.HandleFunc("GET /oauth2/v2/userinfo", api.userinfo)
	mux.HandleFunc("POST /token", api.token)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return api, srv
}

func (f *fakeCalendarAPI) add(event *calendar.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[event.Id] = event
	f.order = append(f.order, event.Id)
}

func (f *fakeCalendarAPI) event(id string) *calendar.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[id]
}

func writeAPIJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, reason string) {
	writeAPIJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": http.StatusText(status),
			"errors":  []map[string]string{{"reason": reason, "message": http.StatusText(status)}},
		},
	})
}

func (f *fakeCalendarAPI) list(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	offset := 0
	if token := r.URL.Query().Get("pageToken"); token != "" {
		offset, _ = strconv.Atoi(token)
	}
	end := min(offset+f.pageSize, len(f.order))

	page := &calendar.Events{}
	for _, id := range f.order[offset:end] {
		page.Items = append(page.Items, f.events[id])
	}
	if end < len(f.order) {
		page.NextPageToken = strconv.Itoa(end)
	}
	writeAPIJSON(w, http.StatusOK, page)
}

func (f *fakeCalendarAPI) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.forbidden[id] {
		writeAPIError(w, http.StatusForbidden, "forbidden")
		return
	}
	event, ok := f.events[id]
	if !ok {
		writeAPIError(w, http.StatusNotFound, "notFound")
		return
	}
	writeAPIJSON(w, http.StatusOK, event)
}

func (f *fakeCalendarAPI) patch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body calendar.Event
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))

	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[id]
	if !ok {
		writeAPIError(w, http.StatusNotFound, "notFound")
		return
	}
	f.patches = append(f.patches, body)
	if body.Attendees != nil {
		event.Attendees = body.Attendees
	}
	writeAPIJSON(w, http.StatusOK, event)
}

func (f *fakeCalendarAPI) userinfo(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeAPIError(w, http.StatusUnauthorized, "authError")
		return
	}
	writeAPIJSON(w, http.StatusOK, map[string]any{"id": "1", "email": f.email, "verified_email": true})
}

func (f *fakeCalendarAPI) token(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())
	if r.PostForm.Get("code") == "bad-code" || r.PostForm.Get("refresh_token") == "revoked" {
		writeAPIJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}
	writeAPIJSON(w, http.StatusOK, map[string]any{
		"access_token":  "google-access",
		"refresh_token": "google-refresh",
		"token_type":    "Bearer",
		"expires_in":    3600,
		"scope":         "openid https://www.googleapis.com/auth/calendar.events",
	})
}

func newTestAdapter(t *testing.T, srv *httptest.Server) (*GoogleAdapter, *google.MemoryTokenStore) {
	t.Helper()

	conf := google.NewOAuthConfig(google.OAuthSettings{
		ClientID:     "google-client",
		ClientSecret: "google-secret",
		RedirectURL:  testConsentURI,
		Endpoint: &oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	})
	signer, err := NewStateSigner([]byte(testStateKey), 0)
	require.NoError(t, err)

	store := google.NewMemoryTokenStore()
	adapter, err := NewGoogleAdapter(conf, store, signer, WithAPIEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return adapter, store
}

func connectSubject(t *testing.T, store google.TokenStore, subject, email string) {
	t.Helper()
	err := store.Save(t.Context(), subject, &google.AuthorizationRecord{
		Token: &oauth2.Token{
			AccessToken:  "access-" + subject,
			RefreshToken: "refresh-" + subject,
			TokenType:    "Bearer",
			Expiry:       time.Now().Add(time.Hour),
		},
		Email: email,
	})
	require.NoError(t, err)
}

func timedEvent(id, summary string, start time.Time, organizer string, attendees ...*calendar.EventAttendee) *calendar.Event {
	return &calendar.Event{
		Id:        id,
		Summary:   summary,
		Status:    "confirmed",
		HtmlLink:  "https://calendar.google.com/event?eid=" + id,
		Start:     &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:       &calendar.EventDateTime{DateTime: start.Add(time.Hour).Format(time.RFC3339)},
		Organizer: &calendar.EventOrganizer{Email: organizer, DisplayName: "Organizer " + organizer},
		Attendees: attendees,
	}
}

func self(status string) *calendar.EventAttendee {
	return &calendar.EventAttendee{Email: testSelfEmail, Self: true, ResponseStatus: status}
}

func guest(email, status string) *calendar.EventAttendee {
	return &calendar.EventAttendee{Email: email, DisplayName: strings.Split(email, "@")[0], ResponseStatus: status}
}
