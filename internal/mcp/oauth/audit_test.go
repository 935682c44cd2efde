package oauth

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedAuditLogger() (*AuditLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewAuditLogger(logger, nil), &buf
}

func decodeAuditEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return entry
}

func TestAuditLogger_LogEvent(t *testing.T) {
	audit, buf := newBufferedAuditLogger()

	audit.LogTokenIssued("client-1", "10.0.0.1", GrantTypeClientCredentials, "calendar")

	entry := decodeAuditEntry(t, buf)
	assert.Equal(t, "audit_event", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "token_issued", entry["event_type"])
	assert.Equal(t, "client-1", entry["client_id"])
	assert.Equal(t, "10.0.0.1", entry["ip_address"])
	assert.Equal(t, "client_credentials", entry["meta_grant_type"])
	assert.Equal(t, "calendar", entry["meta_scope"])
	assert.Equal(t, true, entry["success"])
}

func TestAuditLogger_LogGrantRejected(t *testing.T) {
	tests := []struct {
		reason string
		want   AuditEventType
	}{
		{ReasonPKCEMismatch, AuditEventInvalidPKCE},
		{ReasonPKCEMissingVerifier, AuditEventInvalidPKCE},
		{ReasonConsumed, AuditEventCodeReuse},
		{ReasonRedirectMismatch, AuditEventInvalidGrant},
		{ReasonExpired, AuditEventInvalidGrant},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			audit, buf := newBufferedAuditLogger()
			audit.LogGrantRejected("client-1", "10.0.0.1", tt.reason)

			entry := decodeAuditEntry(t, buf)
			assert.Equal(t, "WARN", entry["level"])
			assert.Equal(t, string(tt.want), entry["event_type"])
			assert.Equal(t, tt.reason, entry["error"])
			assert.Equal(t, false, entry["success"])
		})
	}
}

func TestAuditLogger_InvalidTokenHasNoClient(t *testing.T) {
	audit, buf := newBufferedAuditLogger()
	audit.LogInvalidToken("10.0.0.1", "unknown")

	entry := decodeAuditEntry(t, buf)
	_, ok := entry["client_id"]
	assert.False(t, ok)
	assert.Equal(t, "invalid_token", entry["event_type"])
}
