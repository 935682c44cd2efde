package instrumentation

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/rsvp/internal/logging"
)

const (
	testSubject = "user-42"
	testTool    = "respond_to_invite"
)

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		records = append(records, rec)
	}
	return records
}

func TestToolInvocation_Complete(t *testing.T) {
	ti := NewToolInvocation(testTool)
	if ti.StartTime.IsZero() {
		t.Fatal("StartTime should be set")
	}

	ti.CompleteSuccess()
	if !ti.Success {
		t.Error("Success = false, want true")
	}
	if ti.Status() != StatusSuccess {
		t.Errorf("Status() = %q, want %q", ti.Status(), StatusSuccess)
	}

	ti = NewToolInvocation(testTool).CompleteWithError(errors.New("event not found"))
	if ti.Success {
		t.Error("Success = true, want false")
	}
	if ti.Error != "event not found" {
		t.Errorf("Error = %q, want %q", ti.Error, "event not found")
	}
	if ti.Status() != StatusError {
		t.Errorf("Status() = %q, want %q", ti.Status(), StatusError)
	}
}

func TestAuditLogger_HashesSubjectByDefault(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	ti := NewToolInvocation(testTool).
		WithSubject(testSubject).
		WithEvent("evt-1", "accepted").
		CompleteSuccess()
	al.LogToolInvocation(ti)

	records := decodeLogLines(t, &buf)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "tool_executed", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, testTool, rec[logging.KeyTool])
	assert.Equal(t, logging.AnonymizeSubject(testSubject), rec[logging.KeySubjectHash])
	assert.Equal(t, "evt-1", rec["event_id"])
	assert.Equal(t, "accepted", rec["response"])
	assert.NotContains(t, buf.String(), testSubject+"\"")
}

func TestAuditLogger_IncludePII(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{Enabled: true, IncludePII: true})

	al.LogToolInvocation(NewToolInvocation(testTool).WithSubject(testSubject).CompleteWithError(errors.New("denied")))

	records := decodeLogLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "tool_failed", records[0]["msg"])
	assert.Equal(t, "WARN", records[0]["level"])
	assert.Equal(t, testSubject, records[0]["subject"])
	assert.Equal(t, "denied", records[0][logging.KeyError])
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{Enabled: false})

	al.LogToolInvocation(NewToolInvocation(testTool).CompleteSuccess())
	assert.Zero(t, buf.Len())

	var nilLogger *AuditLogger
	assert.NotPanics(t, func() { nilLogger.LogToolInvocation(NewToolInvocation(testTool)) })
}
