package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/teemow/rsvp/internal/calendar"
	"github.com/teemow/rsvp/internal/logging"
	"github.com/teemow/rsvp/internal/mcp/oauth"
	"github.com/teemow/rsvp/internal/mcp/protocol"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-Id"

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	OAuth      *oauth.Handler
	Dispatcher *protocol.Dispatcher
	Context    *ServerContext
	Health     *HealthChecker

	// ConsentCallback completes the Google consent flow. Optional.
	ConsentCallback http.Handler

	// DefaultSubject is used by /api requests without an X-Subject header.
	DefaultSubject string
	RequireSubject bool
}

// NewRouter builds the public HTTP handler: discovery, OAuth, the MCP
// endpoint, the REST mirror and health probes.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Context.Logger()

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(httpMetrics(cfg.Context))
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Get(oauth.PathAuthorizationServerMeta, cfg.OAuth.ServeAuthorizationServerMetadata)
	r.Get(oauth.PathOpenIDConfiguration, cfg.OAuth.ServeOpenIDConfiguration)
	r.Get(oauth.PathProtectedResourceMetadata, cfg.OAuth.ServeProtectedResourceMetadata)
	r.Get(oauth.PathProtectedResourceMetadata+oauth.DefaultResourcePath, cfg.OAuth.ServeProtectedResourceMetadata)

	r.Post(oauth.PathRegister, cfg.OAuth.ServeRegister)
	r.Get(oauth.PathAuthorize, cfg.OAuth.ServeAuthorize)
	r.Post(oauth.PathAuthorize, cfg.OAuth.ServeAuthorize)
	r.Post(oauth.PathToken, cfg.OAuth.ServeToken)

	if cfg.ConsentCallback != nil {
		r.Method(http.MethodGet, calendar.CallbackPath, cfg.ConsentCallback)
	}

	r.Handle(oauth.DefaultResourcePath, protocol.NewHTTPHandler(cfg.Dispatcher, cfg.OAuth, logger))

	api := &apiHandler{
		sc:             cfg.Context,
		defaultSubject: cfg.DefaultSubject,
		requireSubject: cfg.RequireSubject,
	}
	r.Route("/api", func(r chi.Router) {
		r.Use(cfg.OAuth.RequireBearer)
		api.Register(r)
	})

	if cfg.Health != nil {
		r.Method(http.MethodGet, "/healthz", cfg.Health.LivenessHandler())
		r.Method(http.MethodGet, "/readyz", cfg.Health.ReadinessHandler())
		r.Method(http.MethodGet, "/healthz/detailed", cfg.Health.DetailedHealthHandler())
	}

	return r
}

// requestID reuses an inbound X-Request-Id or assigns a UUID, and exposes
// it through chi's request id accessor.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), chimw.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// httpMetrics records request counts and latency by route pattern.
func httpMetrics(sc *ServerContext) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metrics := sc.Metrics()
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.RecordHTTPRequest(r.Context(), r.Method, route, status, time.Since(start))
		})
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug("HTTP request",
				logging.RequestID(chimw.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)))
		})
	}
}
