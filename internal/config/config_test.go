package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Transport:        TransportHTTP,
		HTTPAddr:         ":8080",
		BaseURL:          "https://rsvp.example.com",
		DefaultSubject:   "default",
		StdioConcurrency: 8,
		AdapterTimeout:   30 * time.Second,
		ShutdownTimeout:  30 * time.Second,
		AccessTokenTTL:   time.Hour,
		AuthCodeTTL:      10 * time.Minute,
		Store:            StoreMemory,
		Google: GoogleConfig{
			ClientID:     "client.apps.googleusercontent.com",
			ClientSecret: "secret",
			SendUpdates:  "all",
		},
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, TransportStdio, cfg.Transport)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "rsvp:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 30*time.Second, cfg.AdapterTimeout)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, "all", cfg.Google.SendUpdates)
	assert.True(t, cfg.MetricsEnabled)
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("RSVP_STORE=redis\nREDIS_ADDR=redis:6379\nRSVP_ADAPTER_TIMEOUT=5s\n"), 0o600))

	t.Setenv("RSVP_TRANSPORT", "http")
	t.Setenv("RSVP_ADAPTER_TIMEOUT", "10s")
	t.Setenv("RSVP_REQUIRE_SUBJECT", "true")
	t.Cleanup(func() {
		_ = os.Unsetenv("RSVP_STORE")
		_ = os.Unsetenv("REDIS_ADDR")
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, TransportHTTP, cfg.Transport)
	assert.Equal(t, StoreRedis, cfg.Store)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 10*time.Second, cfg.AdapterTimeout, "the process environment wins over .env")
	assert.True(t, cfg.RequireSubject)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("RSVP_ADAPTER_TIMEOUT", "soon")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestResolvedBaseURL(t *testing.T) {
	cfg := &Config{HTTPAddr: ":9000"}
	assert.Equal(t, "http://localhost:9000", cfg.ResolvedBaseURL())

	cfg.HTTPAddr = "127.0.0.1:8080"
	assert.Equal(t, "http://127.0.0.1:8080", cfg.ResolvedBaseURL())

	cfg.BaseURL = "https://rsvp.example.com/"
	assert.Equal(t, "https://rsvp.example.com", cfg.ResolvedBaseURL())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown transport", mutate: func(c *Config) { c.Transport = "sse" }, wantErr: "unsupported transport"},
		{name: "unknown store", mutate: func(c *Config) { c.Store = "postgres" }, wantErr: "unsupported store"},
		{name: "redis without addr", mutate: func(c *Config) { c.Store = StoreRedis }, wantErr: "REDIS_ADDR"},
		{name: "redis with addr", mutate: func(c *Config) { c.Store = StoreRedis; c.Redis.Addr = "localhost:6379" }},
		{name: "plain http base url", mutate: func(c *Config) { c.BaseURL = "http://rsvp.example.com" }, wantErr: "requires HTTPS"},
		{name: "derived localhost base url", mutate: func(c *Config) { c.BaseURL = "" }},
		{name: "missing google client", mutate: func(c *Config) { c.Google.ClientSecret = "" }, wantErr: "GOOGLE_CLIENT_ID"},
		{name: "short state secret", mutate: func(c *Config) { c.Google.StateSecret = "short" }, wantErr: "RSVP_STATE_SECRET"},
		{name: "bad send updates", mutate: func(c *Config) { c.Google.SendUpdates = "everyone" }, wantErr: "RSVP_SEND_UPDATES"},
		{name: "zero timeout", mutate: func(c *Config) { c.AdapterTimeout = 0 }, wantErr: "RSVP_ADAPTER_TIMEOUT"},
		{name: "zero concurrency", mutate: func(c *Config) { c.StdioConcurrency = 0 }, wantErr: "RSVP_STDIO_CONCURRENCY"},
		{
			name: "strict stdio without subject",
			mutate: func(c *Config) {
				c.Transport = TransportStdio
				c.RequireSubject = true
				c.DefaultSubject = ""
			},
			wantErr: "RSVP_DEFAULT_SUBJECT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{name: "https", baseURL: "https://example.com"},
		{name: "https with port", baseURL: "https://example.com:8443"},
		{name: "http localhost", baseURL: "http://localhost:8080"},
		{name: "http 127.0.0.1", baseURL: "http://127.0.0.1:8080"},
		{name: "http ipv6 loopback", baseURL: "http://[::1]:8080"},
		{name: "http remote host", baseURL: "http://example.com", wantErr: true},
		{name: "http private ip", baseURL: "http://192.168.1.10:8080", wantErr: true},
		{name: "ftp scheme", baseURL: "ftp://example.com", wantErr: true},
		{name: "no scheme", baseURL: "example.com", wantErr: true},
		{name: "empty", baseURL: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateBaseURL(tt.baseURL)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadClients(t *testing.T) {
	dir := t.TempDir()

	clients, err := LoadClients("")
	require.NoError(t, err)
	assert.Empty(t, clients)

	path := filepath.Join(dir, "clients.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
clients:
  - client_id: chatgpt
    client_secret: s3cret
    client_name: ChatGPT
    redirect_uris:
      - https://chatgpt.com/connector_platform_oauth_redirect
  - client_id: local-cli
    redirect_uris: ["http://127.0.0.1:33418/callback"]
`), 0o600))

	clients, err = LoadClients(path)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "chatgpt", clients[0].ClientID)
	assert.Equal(t, "s3cret", clients[0].ClientSecret)
	assert.Equal(t, []string{"https://chatgpt.com/connector_platform_oauth_redirect"}, clients[0].RedirectURIs)
	assert.Empty(t, clients[1].ClientSecret)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("clients:\n  - client_name: nameless\n"), 0o600))
	_, err = LoadClients(bad)
	assert.ErrorContains(t, err, "no client_id")

	_, err = LoadClients(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
