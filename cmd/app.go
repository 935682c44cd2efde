package cmd

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/rsvp/internal/calendar"
	"github.com/teemow/rsvp/internal/config"
	"github.com/teemow/rsvp/internal/google"
	"github.com/teemow/rsvp/internal/instrumentation"
	"github.com/teemow/rsvp/internal/invites"
	"github.com/teemow/rsvp/internal/mcp/oauth"
	"github.com/teemow/rsvp/internal/mcp/protocol"
	"github.com/teemow/rsvp/internal/resources"
	"github.com/teemow/rsvp/internal/server"
	"github.com/teemow/rsvp/internal/tools/invite_tools"
)

const serverInstructions = `Use get_pending_reservations to list calendar invitations the user has not answered,
then respond_to_invite with accepted, declined or tentative. If a result carries
authRequired, show the user the authUrl so they can connect their Google Calendar.`

// app holds the wired components shared by both transports.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	redis      *redis.Client
	oauthStore oauth.Store
	oauth      *oauth.Handler
	adapter    *calendar.GoogleAdapter
	sc         *server.ServerContext
	dispatcher *protocol.Dispatcher
	health     *server.HealthChecker
}

// newApp wires storage, the calendar adapter, the invitation service, the
// OAuth authorization server and the MCP dispatcher from cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, provider *instrumentation.Provider, audit instrumentation.AuditLoggingConfig) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var metrics *instrumentation.Metrics
	if provider != nil && provider.Enabled() {
		metrics = provider.Metrics()
	}

	var tokens google.TokenStore
	switch cfg.Store {
	case config.StoreRedis:
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.oauthStore = oauth.NewRedisStore(a.redis, cfg.Redis.KeyPrefix+"oauth:")
		tokens = google.NewRedisTokenStore(a.redis, cfg.Redis.KeyPrefix+"google:")
	default:
		a.oauthStore = oauth.NewMemoryStore(logger)
		tokens = google.NewMemoryTokenStore()
	}

	registry := oauth.NewRegistry(a.oauthStore,
		oauth.WithTokenTTL(cfg.AccessTokenTTL),
		oauth.WithCodeTTL(cfg.AuthCodeTTL),
		oauth.WithRegistryLogger(logger),
	)
	seeds, err := config.LoadClients(cfg.ClientsFile)
	if err != nil {
		return nil, err
	}
	for _, seed := range seeds {
		if err := registry.SeedClient(ctx, seed); err != nil {
			return nil, fmt.Errorf("seed client %s: %w", seed.ClientID, err)
		}
	}

	baseURL := cfg.ResolvedBaseURL()
	a.oauth, err = oauth.NewHandler(&oauth.Config{
		Issuer:  baseURL,
		Logger:  logger,
		Metrics: metrics,
	}, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create OAuth handler: %w", err)
	}

	stateSecret := []byte(cfg.Google.StateSecret)
	if len(stateSecret) == 0 {
		stateSecret = make([]byte, calendar.MinStateSecretLength)
		if _, err := rand.Read(stateSecret); err != nil {
			return nil, fmt.Errorf("generate state secret: %w", err)
		}
		logger.Warn("RSVP_STATE_SECRET not set, using a random secret; pending consents will not survive a restart")
	}
	signer, err := calendar.NewStateSigner(stateSecret, 0)
	if err != nil {
		return nil, err
	}

	oauthConfig := google.NewOAuthConfig(google.OAuthSettings{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  baseURL + calendar.CallbackPath,
	})
	a.adapter, err = calendar.NewGoogleAdapter(oauthConfig, tokens, signer,
		calendar.WithSendUpdates(cfg.Google.SendUpdates),
		calendar.WithMetrics(metrics),
		calendar.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar adapter: %w", err)
	}

	svc := invites.NewService(a.adapter,
		invites.WithTimeout(cfg.AdapterTimeout),
		invites.WithLogger(logger),
	)

	opts := []server.ServerContextOption{server.WithLogger(logger)}
	if metrics != nil {
		opts = append(opts,
			server.WithMetrics(metrics),
			server.WithAuditLogger(instrumentation.NewAuditLoggerWithConfig(logger, audit)))
	}
	a.sc, err = server.NewServerContext(ctx, svc, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}

	a.dispatcher, err = newDispatcher(a.sc, cfg, metrics, logger)
	if err != nil {
		return nil, err
	}

	a.health = server.NewHealthChecker(a.sc)
	if a.redis != nil {
		rdb := a.redis
		a.health.AddCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	return a, nil
}

// newDispatcher builds the MCP method table with the invitation tools.
func newDispatcher(sc *server.ServerContext, cfg *config.Config, metrics *instrumentation.Metrics, logger *slog.Logger) (*protocol.Dispatcher, error) {
	widgets, err := resources.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load widgets: %w", err)
	}

	d := protocol.NewDispatcher(
		protocol.WithServerInfo("rsvp", version),
		protocol.WithInstructions(serverInstructions),
		protocol.WithResources(widgets),
		protocol.WithDefaultSubject(cfg.DefaultSubject),
		protocol.WithRequireSubject(cfg.RequireSubject),
		protocol.WithMetrics(metrics),
		protocol.WithLogger(logger),
	)
	if err := invite_tools.RegisterTools(d, sc); err != nil {
		return nil, err
	}
	return d, nil
}

func (a *app) routerConfig() server.RouterConfig {
	return server.RouterConfig{
		OAuth:           a.oauth,
		Dispatcher:      a.dispatcher,
		Context:         a.sc,
		Health:          a.health,
		ConsentCallback: http.HandlerFunc(a.adapter.ServeCallback),
		DefaultSubject:  a.cfg.DefaultSubject,
		RequireSubject:  a.cfg.RequireSubject,
	}
}

// Close releases the server context and the Redis connection.
func (a *app) Close() error {
	err := a.sc.Shutdown()
	if a.redis != nil {
		if closeErr := a.redis.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
