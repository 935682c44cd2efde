package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/teemow/rsvp/internal/instrumentation"
	"github.com/teemow/rsvp/internal/invites"
)

// ServerContext holds the shared dependencies of the tool handlers and the
// REST endpoints.
type ServerContext struct {
	ctx     context.Context
	cancel  context.CancelFunc
	invites *invites.Service
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	logger  *slog.Logger

	mu       sync.RWMutex
	shutdown bool
}

// ServerContextOption configures a ServerContext.
type ServerContextOption func(*ServerContext)

// WithMetrics records tool metrics. Nil disables them.
func WithMetrics(m *instrumentation.Metrics) ServerContextOption {
	return func(sc *ServerContext) { sc.metrics = m }
}

// WithAuditLogger records tool invocations. Nil disables auditing.
func WithAuditLogger(a *instrumentation.AuditLogger) ServerContextOption {
	return func(sc *ServerContext) { sc.audit = a }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerContextOption {
	return func(sc *ServerContext) {
		if logger != nil {
			sc.logger = logger
		}
	}
}

// NewServerContext creates a server context around the invitation service.
func NewServerContext(ctx context.Context, svc *invites.Service, opts ...ServerContextOption) (*ServerContext, error) {
	if svc == nil {
		return nil, errors.New("invites service is required")
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:     shutdownCtx,
		cancel:  cancel,
		invites: svc,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Invites returns the invitation service.
func (sc *ServerContext) Invites() *invites.Service {
	return sc.invites
}

// Metrics returns the metrics recorder, possibly nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger, possibly nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.audit
}

// Logger returns the logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// IsShutdown reports whether Shutdown was called.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context. It is safe to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.shutdown {
		return nil
	}
	sc.shutdown = true
	sc.cancel()
	return nil
}
