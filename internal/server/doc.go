// Package server hosts the rsvp HTTP surface and the shared context used by
// tool handlers.
//
// # Key Components
//
// ServerContext carries the invitation service together with metrics, the
// audit logger and the logger.
//
// NewRouter builds the chi router serving:
//   - Authorization Server Metadata (RFC 8414) and its OIDC alias
//   - Protected Resource Metadata (RFC 9728), also under /mcp
//   - Dynamic Client Registration (RFC 7591), authorize and token endpoints
//   - The Google consent callback
//   - The bearer-protected MCP endpoint at /mcp
//   - REST mirrors of the tools under /api
//   - /healthz, /readyz and /healthz/detailed
//
// HTTPServer and MetricsServer wrap the public and the Prometheus listeners
// with graceful shutdown.
package server
