package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/rsvp/internal/config"
	"github.com/teemow/rsvp/internal/instrumentation"
	"github.com/teemow/rsvp/internal/mcp/oauth"
	"github.com/teemow/rsvp/internal/server"
	"github.com/teemow/rsvp/internal/tools/invite_tools"
)

func setGoogleEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GOOGLE_CLIENT_ID", "client.apps.googleusercontent.com")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
}

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadServeConfig_FlagsOverrideEnv(t *testing.T) {
	setGoogleEnv(t)
	t.Setenv("RSVP_TRANSPORT", "stdio")
	t.Setenv("RSVP_DEFAULT_SUBJECT", "from-env")

	cmd, flags := newServeCommand()
	require.NoError(t, cmd.ParseFlags([]string{
		"--env-file", missingEnvFile(t),
		"--transport", "http",
		"--base-url", "https://rsvp.example.com",
		"--require-subject",
	}))

	cfg, err := loadServeConfig(cmd, *flags)
	require.NoError(t, err)

	assert.Equal(t, config.TransportHTTP, cfg.Transport)
	assert.Equal(t, "https://rsvp.example.com", cfg.BaseURL)
	assert.True(t, cfg.RequireSubject)
	assert.Equal(t, "from-env", cfg.DefaultSubject, "unset flags keep the environment value")
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoadServeConfig_Invalid(t *testing.T) {
	setGoogleEnv(t)

	cmd, flags := newServeCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--env-file", missingEnvFile(t), "--store", "redis"}))

	_, err := loadServeConfig(cmd, *flags)
	assert.ErrorContains(t, err, "REDIS_ADDR")
}

func newTestApp(t *testing.T, mutate func(*config.Config)) *app {
	t.Helper()

	cfg := &config.Config{
		Transport:        config.TransportHTTP,
		HTTPAddr:         ":8080",
		BaseURL:          "https://rsvp.example.com",
		DefaultSubject:   "default",
		StdioConcurrency: 4,
		AdapterTimeout:   5 * time.Second,
		ShutdownTimeout:  5 * time.Second,
		AccessTokenTTL:   time.Hour,
		AuthCodeTTL:      10 * time.Minute,
		Store:            config.StoreMemory,
		Google: config.GoogleConfig{
			ClientID:     "client.apps.googleusercontent.com",
			ClientSecret: "secret",
			SendUpdates:  "all",
		},
	}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	provider, err := instrumentation.NewProvider(context.Background(), instrumentation.Config{Enabled: false})
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg, slog.New(slog.DiscardHandler), provider, instrumentation.AuditLoggingConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNewApp_WiresTools(t *testing.T) {
	a := newTestApp(t, nil)

	assert.Equal(t, []string{
		invite_tools.ToolGetPendingReservations,
		invite_tools.ToolRespondToInvite,
		invite_tools.ToolCheckAuthStatus,
	}, a.dispatcher.ToolNames())

	consent, err := a.adapter.ConsentURL("alice")
	require.NoError(t, err)
	assert.Contains(t, consent, "redirect_uri=https%3A%2F%2Frsvp.example.com%2Foauth%2Fgoogle%2Fcallback")
}

func TestNewApp_SeedsClients(t *testing.T) {
	clients := filepath.Join(t.TempDir(), "clients.yaml")
	require.NoError(t, writeFile(clients, `
clients:
  - client_id: chatgpt
    client_secret: s3cret
    redirect_uris: ["https://chatgpt.com/connector_platform_oauth_redirect"]
`))

	a := newTestApp(t, func(c *config.Config) { c.ClientsFile = clients })

	client, err := a.oauth.Registry().GetClient(context.Background(), "chatgpt")
	require.NoError(t, err)
	assert.False(t, client.IsPublic())
}

func TestNewApp_Router(t *testing.T) {
	a := newTestApp(t, nil)
	handler := server.NewRouter(a.routerConfig())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, oauth.PathProtectedResourceMetadata+"/mcp", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var prm map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prm))
	assert.Equal(t, "https://rsvp.example.com/mcp", prm["resource"])

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/google/callback?state=forged&code=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "forged consent state is rejected")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterClient(t *testing.T) {
	registry := oauth.NewRegistry(oauth.NewMemoryStore(slog.New(slog.DiscardHandler)))

	var out struct {
		ClientID     string   `json:"client_id"`
		ClientSecret string   `json:"client_secret"`
		RedirectURIs []string `json:"redirect_uris"`
		AuthMethod   string   `json:"token_endpoint_auth_method"`
	}

	var buf bytes.Buffer
	require.NoError(t, registerClient(context.Background(), registry, registerClientFlags{
		name:         "Desktop",
		redirectURIs: []string{"https://client.example.com/callback"},
	}, &buf))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.NotEmpty(t, out.ClientID)
	assert.NotEmpty(t, out.ClientSecret)
	assert.Equal(t, oauth.AuthMethodClientSecretBasic, out.AuthMethod)

	_, err := registry.AuthenticateClient(context.Background(), out.ClientID, out.ClientSecret)
	assert.NoError(t, err, "the printed secret authenticates the client")

	buf.Reset()
	require.NoError(t, registerClient(context.Background(), registry, registerClientFlags{
		redirectURIs: []string{"http://127.0.0.1:3334/callback"},
		public:       true,
	}, &buf))
	out.ClientSecret = ""
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Empty(t, out.ClientSecret)
	assert.Equal(t, oauth.AuthMethodNone, out.AuthMethod)

	err = registerClient(context.Background(), registry, registerClientFlags{
		redirectURIs: []string{"javascript:alert(1)"},
	}, io.Discard)
	assert.Error(t, err)
}
