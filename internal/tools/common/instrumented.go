package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/codes"

	"github.com/teemow/rsvp/internal/instrumentation"
	"github.com/teemow/rsvp/internal/logging"
	"github.com/teemow/rsvp/internal/server"
)

// InstrumentedToolHandler wraps a tool handler with a trace span, metrics
// and audit logging. A result with IsError set counts as a failure.
//
// Usage:
//
//	d.AddTool(mcpserver.ServerTool{Tool: tool, Handler: common.InstrumentedToolHandler("my_tool", sc, handler)}, meta)
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		subject := SubjectFromContext(ctx)
		eventID := request.GetString("event_id", "")

		attrs := instrumentation.NewSpanAttributeBuilder().
			WithTool(toolName).
			WithSubjectHash(logging.AnonymizeSubject(subject)).
			WithEventID(eventID).
			Build()
		ctx, span := instrumentation.StartToolSpan(ctx, toolName, attrs...)
		defer span.End()

		metrics := sc.Metrics()
		auditLogger := sc.AuditLogger()

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSubject(subject).
			WithSpanContext(ctx)
		if eventID != "" {
			invocation.WithEvent(eventID, request.GetString("response", ""))
		}

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		switch {
		case err != nil:
			status = instrumentation.StatusError
			invocation.CompleteWithError(err)
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			status = instrumentation.StatusError
			invocation.Complete(false, nil)
			span.SetStatus(codes.Error, "tool returned an error result")
		default:
			invocation.CompleteSuccess()
			instrumentation.SetSpanSuccess(span)
		}

		if metrics != nil {
			metrics.RecordToolInvocation(ctx, toolName, status, duration)
		}
		if auditLogger != nil {
			auditLogger.LogToolInvocation(invocation)
		}

		return result, err
	}
}
