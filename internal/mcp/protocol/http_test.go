package protocol

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/rsvp/internal/mcp/oauth"
)

const testIssuer = "https://rsvp.example.com"

type protocolServer struct {
	oauth *oauth.Handler
	mux   *http.ServeMux
}

func newProtocolServer(t *testing.T) *protocolServer {
	t.Helper()
	h, err := oauth.NewHandler(&oauth.Config{Issuer: testIssuer}, oauth.NewRegistry(oauth.NewMemoryStore(nil)))
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+oauth.PathRegister, h.ServeRegister)
	mux.HandleFunc(oauth.PathAuthorize, h.ServeAuthorize)
	mux.HandleFunc("POST "+oauth.PathToken, h.ServeToken)
	mux.Handle("/mcp", NewHTTPHandler(newTestDispatcher(t), h, nil))
	return &protocolServer{oauth: h, mux: mux}
}

func (s *protocolServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *protocolServer) post(body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.do(req)
}

func (s *protocolServer) issueToken(t *testing.T) string {
	t.Helper()
	token, err := s.oauth.Registry().IssueAccessToken(context.Background(), "", "")
	require.NoError(t, err)
	return token.Token
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestHTTPHandler_Unauthorized(t *testing.T) {
	s := newProtocolServer(t)

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"unknown token", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.post(`{"jsonrpc":"2.0","id":42,"method":"tools/list"}`, tt.token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			challenge := rec.Header().Get("WWW-Authenticate")
			assert.Contains(t, challenge, `as_uri="`+testIssuer+`"`)
			assert.Contains(t, challenge, `resource="`+testIssuer+`/mcp"`)

			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, CodeUnauthorized, resp.Error.Code)
			assert.JSONEq(t, "42", string(resp.ID))
		})
	}
}

func TestHTTPHandler_MethodNotAllowed(t *testing.T) {
	s := newProtocolServer(t)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := s.do(httptest.NewRequest(method, "/mcp", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	}
}

func TestHTTPHandler_MalformedRequests(t *testing.T) {
	s := newProtocolServer(t)
	token := s.issueToken(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"not json", `{"method":`, mcp.PARSE_ERROR},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, mcp.INVALID_REQUEST},
		{"missing method", `{"jsonrpc":"2.0","id":9}`, mcp.INVALID_REQUEST},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.post(tt.body, token)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestHTTPHandler_Dispatch(t *testing.T) {
	s := newProtocolServer(t)
	token := s.issueToken(t)

	rec := s.post(`{"jsonrpc":"2.0","id":"req-1","method":"ping"}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"req-1","result":{}}`, rec.Body.String())

	rec = s.post(`{"jsonrpc":"2.0","method":"notifications/initialized"}`, token)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = s.post(`{"jsonrpc":"2.0","id":3,"method":"nope/nope"}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mcp.METHOD_NOT_FOUND, decodeResponse(t, rec).Error.Code)
}

// TestHTTPHandler_EndToEnd registers a client, runs the authorization code
// flow and lists tools with the issued token.
func TestHTTPHandler_EndToEnd(t *testing.T) {
	s := newProtocolServer(t)

	reg := s.do(httptest.NewRequest(http.MethodPost, oauth.PathRegister,
		strings.NewReader(`{"redirect_uris":["https://host/cb"],"client_name":"assistant"}`)))
	require.Equal(t, http.StatusCreated, reg.Code, reg.Body.String())
	var client oauth.ClientRegistrationResponse
	require.NoError(t, json.Unmarshal(reg.Body.Bytes(), &client))

	authz := s.do(httptest.NewRequest(http.MethodGet, oauth.PathAuthorize+"?"+url.Values{
		"client_id":     {client.ClientID},
		"redirect_uri":  {"https://host/cb"},
		"response_type": {"code"},
		"state":         {"xyz"},
	}.Encode(), nil))
	require.Equal(t, http.StatusFound, authz.Code, authz.Body.String())
	location, err := url.Parse(authz.Header().Get("Location"))
	require.NoError(t, err)
	code := location.Query().Get("code")
	require.NotEmpty(t, code)
	assert.Equal(t, "xyz", location.Query().Get("state"))

	form := url.Values{
		"grant_type":   {oauth.GrantTypeAuthorizationCode},
		"code":         {code},
		"redirect_uri": {"https://host/cb"},
	}
	tokenReq := httptest.NewRequest(http.MethodPost, oauth.PathToken, strings.NewReader(form.Encode()))
	tokenReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	tokenRec := s.do(tokenReq)
	require.Equal(t, http.StatusOK, tokenRec.Code, tokenRec.Body.String())
	var issued oauth.TokenResponse
	require.NoError(t, json.Unmarshal(tokenRec.Body.Bytes(), &issued))
	require.NotEmpty(t, issued.AccessToken)

	rec := s.post(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, issued.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Result.Tools, 1)
	assert.Equal(t, "whoami", body.Result.Tools[0].Name)
}

func TestHTTPHandler_NoAuthenticator(t *testing.T) {
	h := NewHTTPHandler(newTestDispatcher(t), nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"id":1,"method":"ping"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
