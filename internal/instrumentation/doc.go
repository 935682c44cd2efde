// Package instrumentation provides OpenTelemetry instrumentation for the rsvp
// server.
//
// # Metrics
//
// Server/HTTP:
//   - http_requests_total, http_request_duration_seconds by method, route and status
//   - mcp_requests_total by JSON-RPC method and outcome
//
// MCP tools:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds by tool and status
//
// Calendar adapter:
//   - calendar_api_operations_total, calendar_api_operation_duration_seconds by operation and status
//
// OAuth authorization server:
//   - oauth_events_total by event (client_registered, code_issued, token_issued, ...) and result
//
// # Tracing
//
// Spans are created for protocol dispatch (rpc.<method>), tool invocations
// (tool.<name>) and calendar API calls (calendar.<operation>).
//
// # Configuration
//
// LoadConfig reads the environment:
//   - INSTRUMENTATION_ENABLED (default true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default 0.1)
//   - OTEL_SERVICE_NAME (default rsvp)
package instrumentation
