package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Store backends for OAuth registry state and calendar authorizations.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// DefaultEnvFile is loaded by Load when present.
const DefaultEnvFile = ".env"

// Config is the process configuration.
type Config struct {
	Transport string `env:"RSVP_TRANSPORT" envDefault:"stdio"`
	HTTPAddr  string `env:"RSVP_HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the externally visible origin. Derived from HTTPAddr when
	// empty.
	BaseURL string `env:"MCP_BASE_URL"`

	Debug bool `env:"RSVP_DEBUG"`

	DefaultSubject   string `env:"RSVP_DEFAULT_SUBJECT" envDefault:"default"`
	RequireSubject   bool   `env:"RSVP_REQUIRE_SUBJECT"`
	StdioConcurrency int    `env:"RSVP_STDIO_CONCURRENCY" envDefault:"8"`

	AdapterTimeout  time.Duration `env:"RSVP_ADAPTER_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"RSVP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	AccessTokenTTL  time.Duration `env:"RSVP_ACCESS_TOKEN_TTL" envDefault:"1h"`
	AuthCodeTTL     time.Duration `env:"RSVP_AUTH_CODE_TTL" envDefault:"10m"`

	Store string `env:"RSVP_STORE" envDefault:"memory"`
	Redis RedisConfig

	Google GoogleConfig

	// ClientsFile lists OAuth clients registered at startup.
	ClientsFile string `env:"RSVP_CLIENTS_FILE"`

	MetricsEnabled  bool   `env:"METRICS_ENABLED" envDefault:"true"`
	MetricsAddr     string `env:"METRICS_ADDR" envDefault:":9090"`
	AuditIncludePII bool   `env:"AUDIT_LOGGING_INCLUDE_PII"`
}

// RedisConfig selects the Redis instance used when Store is redis.
type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"rsvp:"`
}

// GoogleConfig holds the Google OAuth client used for calendar consent.
type GoogleConfig struct {
	ClientID     string `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	// StateSecret signs the consent state. A random secret is generated at
	// startup when empty, which invalidates consents in flight on restart.
	StateSecret string `env:"RSVP_STATE_SECRET"`

	// SendUpdates controls guest notifications for responses: all,
	// externalOnly or none.
	SendUpdates string `env:"RSVP_SEND_UPDATES" envDefault:"all"`
}

// Load reads envFiles (DefaultEnvFile when none are given; missing files
// are skipped) and parses the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// ResolvedBaseURL returns BaseURL, or a localhost URL derived from HTTPAddr.
func (c *Config) ResolvedBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	addr := c.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unsupported transport %q (supported: %s, %s)", c.Transport, TransportStdio, TransportHTTP)
	}

	switch c.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when RSVP_STORE is %s", StoreRedis)
		}
	default:
		return fmt.Errorf("unsupported store %q (supported: %s, %s)", c.Store, StoreMemory, StoreRedis)
	}

	if err := validateBaseURL(c.ResolvedBaseURL()); err != nil {
		return err
	}

	if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
		return errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	if c.Google.StateSecret != "" && len(c.Google.StateSecret) < 32 {
		return errors.New("RSVP_STATE_SECRET must be at least 32 bytes")
	}
	switch c.Google.SendUpdates {
	case "all", "externalOnly", "none":
	default:
		return fmt.Errorf("unsupported RSVP_SEND_UPDATES %q (supported: all, externalOnly, none)", c.Google.SendUpdates)
	}

	if c.RequireSubject && c.Transport == TransportStdio && c.DefaultSubject == "" {
		return errors.New("RSVP_DEFAULT_SUBJECT must be set for the stdio transport")
	}

	for name, d := range map[string]time.Duration{
		"RSVP_ADAPTER_TIMEOUT":  c.AdapterTimeout,
		"RSVP_SHUTDOWN_TIMEOUT": c.ShutdownTimeout,
		"RSVP_ACCESS_TOKEN_TTL": c.AccessTokenTTL,
		"RSVP_AUTH_CODE_TTL":    c.AuthCodeTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive (got %s)", name, d)
		}
	}
	if c.StdioConcurrency <= 0 {
		return fmt.Errorf("RSVP_STDIO_CONCURRENCY must be positive (got %d)", c.StdioConcurrency)
	}
	return nil
}

// validateBaseURL allows plain HTTP only on loopback hosts.
func validateBaseURL(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("OAuth 2.1 requires HTTPS for production (got: %s). Use HTTPS or localhost for development", baseURL)
		}
	} else if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid base URL: %s has no host", baseURL)
	}
	return nil
}
