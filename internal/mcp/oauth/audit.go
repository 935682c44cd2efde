package oauth

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/teemow/rsvp/internal/instrumentation"
)

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	AuditEventClientRegistered AuditEventType = "client_registered"
	AuditEventCodeIssued       AuditEventType = "code_issued"
	AuditEventTokenIssued      AuditEventType = "token_issued"
	AuditEventAuthFailure      AuditEventType = "auth_failure"
	AuditEventInvalidGrant     AuditEventType = "invalid_grant"
	AuditEventInvalidPKCE      AuditEventType = "invalid_pkce"
	AuditEventInvalidRedirect  AuditEventType = "invalid_redirect"
	AuditEventInvalidToken     AuditEventType = "invalid_token"
	AuditEventCodeReuse        AuditEventType = "code_reuse_detected"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	Timestamp time.Time
	EventType AuditEventType
	ClientID  string
	IPAddress string
	Success   bool

	// ErrorMessage contains error details if Success is false
	ErrorMessage string

	Metadata map[string]string
}

// AuditLogger writes OAuth security events to the log and counts them in
// oauth_events_total. Codes and tokens never reach it unhashed.
type AuditLogger struct {
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	now     func() time.Time
}

// NewAuditLogger creates a new audit logger. metrics may be nil.
func NewAuditLogger(logger *slog.Logger, metrics *instrumentation.Metrics) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// LogEvent logs an audit event with structured logging
func (a *AuditLogger) LogEvent(event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = a.now()
	}

	level := slog.LevelInfo
	result := instrumentation.ResultSuccess
	if !event.Success {
		level = slog.LevelWarn
		result = instrumentation.ResultFailure
	}

	attrs := []slog.Attr{
		slog.String("event_type", string(event.EventType)),
		slog.Time("timestamp", event.Timestamp),
		slog.Bool("success", event.Success),
	}
	if event.ClientID != "" {
		attrs = append(attrs, slog.String("client_id", event.ClientID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.ErrorMessage != "" {
		attrs = append(attrs, slog.String("error", event.ErrorMessage))
	}
	for _, key := range slices.Sorted(maps.Keys(event.Metadata)) {
		attrs = append(attrs, slog.String("meta_"+key, event.Metadata[key]))
	}

	a.logger.LogAttrs(context.Background(), level, "audit_event", attrs...)
	a.metrics.RecordOAuthEvent(context.Background(), string(event.EventType), result, event.ClientID)
}

// LogClientRegistered logs a dynamic or seeded client registration.
func (a *AuditLogger) LogClientRegistered(clientID, authMethod, ipAddress string) {
	a.LogEvent(AuditEvent{
		EventType: AuditEventClientRegistered,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Success:   true,
		Metadata:  map[string]string{"auth_method": authMethod},
	})
}

// LogCodeIssued logs an authorization code issuance.
func (a *AuditLogger) LogCodeIssued(clientID, ipAddress string, pkce bool) {
	a.LogEvent(AuditEvent{
		EventType: AuditEventCodeIssued,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Success:   true,
		Metadata:  map[string]string{"pkce": boolString(pkce)},
	})
}

// LogTokenIssued logs an access token issuance.
func (a *AuditLogger) LogTokenIssued(clientID, ipAddress, grantType, scope string) {
	a.LogEvent(AuditEvent{
		EventType: AuditEventTokenIssued,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Success:   true,
		Metadata:  map[string]string{"grant_type": grantType, "scope": scope},
	})
}

// LogAuthFailure logs a failed client authentication.
func (a *AuditLogger) LogAuthFailure(clientID, ipAddress, reason string) {
	a.LogEvent(AuditEvent{
		EventType:    AuditEventAuthFailure,
		ClientID:     clientID,
		IPAddress:    ipAddress,
		ErrorMessage: reason,
	})
}

// LogInvalidRedirect logs an authorize call naming an unregistered redirect URI.
func (a *AuditLogger) LogInvalidRedirect(clientID, ipAddress string) {
	a.LogEvent(AuditEvent{
		EventType:    AuditEventInvalidRedirect,
		ClientID:     clientID,
		IPAddress:    ipAddress,
		ErrorMessage: "redirect_uri not registered for client",
	})
}

// LogGrantRejected logs a failed code redemption, classified by reason.
func (a *AuditLogger) LogGrantRejected(clientID, ipAddress, reason string) {
	eventType := AuditEventInvalidGrant
	switch reason {
	case ReasonPKCEMismatch, ReasonPKCEMissingVerifier:
		eventType = AuditEventInvalidPKCE
	case ReasonConsumed:
		eventType = AuditEventCodeReuse
	}
	a.LogEvent(AuditEvent{
		EventType:    eventType,
		ClientID:     clientID,
		IPAddress:    ipAddress,
		ErrorMessage: reason,
	})
}

// LogInvalidToken logs a rejected bearer token.
func (a *AuditLogger) LogInvalidToken(ipAddress, reason string) {
	a.LogEvent(AuditEvent{
		EventType:    AuditEventInvalidToken,
		IPAddress:    ipAddress,
		ErrorMessage: reason,
	})
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
