package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/rsvp/internal/calendar"
	"github.com/teemow/rsvp/internal/config"
	"github.com/teemow/rsvp/internal/instrumentation"
	"github.com/teemow/rsvp/internal/logging"
	"github.com/teemow/rsvp/internal/mcp/oauth"
	"github.com/teemow/rsvp/internal/mcp/protocol"
	"github.com/teemow/rsvp/internal/server"
)

// serveFlags are command-line overrides of the environment configuration.
type serveFlags struct {
	envFile        string
	transport      string
	httpAddr       string
	baseURL        string
	debug          bool
	store          string
	redisAddr      string
	defaultSubject string
	requireSubject bool
	clientsFile    string
	metricsEnabled bool
	metricsAddr    string
}

func newServeCmd() *cobra.Command {
	cmd, _ := newServeCommand()
	return cmd
}

// newServeCommand also returns the flag values bound to the command.
func newServeCommand() (*cobra.Command, *serveFlags) {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server that lists and answers
Google Calendar invitations.

Supports two transports:
  - stdio: newline-delimited JSON-RPC on stdin/stdout (default). A small HTTP
    listener still serves the Google consent callback.
  - http: POST /mcp protected by the built-in OAuth 2.1 authorization server,
    plus the /api REST endpoints and health probes.

Configuration is read from the environment and an optional .env file; flags
override it. See RSVP_*, GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET, MCP_BASE_URL,
REDIS_ADDR and the OTEL_* variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig(cmd, *flags)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&flags.envFile, "env-file", config.DefaultEnvFile, "Optional dotenv file loaded before the environment is parsed")
	cmd.Flags().StringVar(&flags.transport, "transport", config.TransportStdio, "Transport type: stdio or http. Can also use RSVP_TRANSPORT env var.")
	cmd.Flags().StringVar(&flags.httpAddr, "http-addr", ":8080", "HTTP listen address. Can also use RSVP_HTTP_ADDR env var.")
	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "Public base URL, e.g. https://rsvp.example.com. Can also use MCP_BASE_URL env var.")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&flags.store, "store", config.StoreMemory, "Store for OAuth state and calendar authorizations: memory or redis. Can also use RSVP_STORE env var.")
	cmd.Flags().StringVar(&flags.redisAddr, "redis-addr", "", "Redis address (host:port). Can also use REDIS_ADDR env var.")
	cmd.Flags().StringVar(&flags.defaultSubject, "default-subject", protocol.DefaultSubject, "Subject used when a call names none. Can also use RSVP_DEFAULT_SUBJECT env var.")
	cmd.Flags().BoolVar(&flags.requireSubject, "require-subject", false, "Reject calls that name no subject. Can also use RSVP_REQUIRE_SUBJECT env var.")
	cmd.Flags().StringVar(&flags.clientsFile, "clients-file", "", "YAML file of OAuth clients registered at startup. Can also use RSVP_CLIENTS_FILE env var.")
	cmd.Flags().BoolVar(&flags.metricsEnabled, "metrics-enabled", true, "Serve /metrics on a dedicated port (http transport). Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd, flags
}

// loadServeConfig parses the environment and applies the flags the user set.
func loadServeConfig(cmd *cobra.Command, flags serveFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.envFile)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("transport") {
		cfg.Transport = flags.transport
	}
	if changed("http-addr") {
		cfg.HTTPAddr = flags.httpAddr
	}
	if changed("base-url") {
		cfg.BaseURL = flags.baseURL
	}
	if changed("debug") {
		cfg.Debug = flags.debug
	}
	if changed("store") {
		cfg.Store = flags.store
	}
	if changed("redis-addr") {
		cfg.Redis.Addr = flags.redisAddr
	}
	if changed("default-subject") {
		cfg.DefaultSubject = flags.defaultSubject
	}
	if changed("require-subject") {
		cfg.RequireSubject = flags.requireSubject
	}
	if changed("clients-file") {
		cfg.ClientsFile = flags.clientsFile
	}
	if changed("metrics-enabled") {
		cfg.MetricsEnabled = flags.metricsEnabled
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = flags.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	format := logging.FormatJSON
	if cfg.Transport == config.TransportStdio {
		format = logging.FormatText
	}
	return logging.New(logging.Options{Debug: cfg.Debug, Format: format, Output: os.Stderr})
}

func runServe(cfg *config.Config) error {
	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	instrConfig, err := instrumentation.LoadConfig()
	if err != nil {
		return err
	}
	instrConfig.ServiceVersion = version
	instrConfig.Transport = cfg.Transport
	instrConfig.Store = cfg.Store
	if cfg.AuditIncludePII {
		instrConfig.AuditLogging.IncludePII = true
	}
	if err := instrConfig.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation configuration: %w", err)
	}

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during instrumentation shutdown", logging.Err(err))
		}
	}()

	a, err := newApp(ctx, cfg, logger, provider, instrConfig.AuditLogging)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Error during server context shutdown", logging.Err(err))
		}
	}()

	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
	}
	if ms, ok := a.oauthStore.(*oauth.MemoryStore); ok {
		ms.StartCleanup(ctx, 0)
	}

	switch cfg.Transport {
	case config.TransportStdio:
		return runStdio(ctx, a)
	default:
		return runHTTP(ctx, a, provider)
	}
}

// runStdio serves MCP on stdin/stdout. The consent callback still needs an
// HTTP listener, so a callback-only server runs beside it.
func runStdio(ctx context.Context, a *app) error {
	r := chi.NewRouter()
	r.Get(calendar.CallbackPath, a.adapter.ServeCallback)
	r.Method(http.MethodGet, "/healthz", a.health.LivenessHandler())
	callbackServer := server.NewHTTPServer(a.cfg.HTTPAddr, r, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := callbackServer.Start(); err != nil {
			// The MCP session keeps working without the callback; only
			// new consents fail.
			a.logger.Warn("Consent callback listener unavailable", logging.Err(err))
		}
		return nil
	})
	g.Go(func() error {
		defer shutdownHTTP(a, callbackServer.Shutdown)
		return protocol.NewStdioServer(a.dispatcher, os.Stdin, os.Stdout, a.cfg.StdioConcurrency).Serve(gctx)
	})
	return g.Wait()
}

func runHTTP(ctx context.Context, a *app, provider *instrumentation.Provider) error {
	httpServer := server.NewHTTPServer(a.cfg.HTTPAddr, server.NewRouter(a.routerConfig()), a.logger)

	var metricsServer *server.MetricsServer
	if a.cfg.MetricsEnabled && provider.Enabled() && provider.PrometheusHandler() != nil {
		var err error
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    a.cfg.MetricsAddr,
			InstrumentationProvider: provider,
			Logger:                  a.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	}

	a.logger.Info("Starting rsvp MCP server",
		slog.String("version", version),
		slog.String("addr", httpServer.Addr()),
		slog.String("base_url", a.cfg.ResolvedBaseURL()),
		slog.String("store", a.cfg.Store),
		slog.Bool("require_subject", a.cfg.RequireSubject))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	if metricsServer != nil {
		g.Go(metricsServer.Start)
	}
	g.Go(func() error {
		<-gctx.Done()
		a.health.SetReady(false)
		a.logger.Info("Shutdown signal received, stopping servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("error shutting down HTTP server: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("error shutting down metrics server: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("HTTP server gracefully stopped")
	return nil
}

func shutdownHTTP(a *app, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		a.logger.Warn("Error shutting down consent callback listener", logging.Err(err))
	}
}
