package oauth

import (
	"log/slog"
	"strings"

	"github.com/teemow/rsvp/internal/instrumentation"
)

// DefaultResourcePath is the path of the protected MCP endpoint.
const DefaultResourcePath = "/mcp"

// Config holds the OAuth handler configuration
type Config struct {
	// Issuer is the externally visible base URL of this server, e.g.
	// https://rsvp.example.com. It is both the authorization server issuer and
	// the origin of the protected resource.
	Issuer string

	// ResourcePath is appended to Issuer to form the resource URI.
	// Default: /mcp
	ResourcePath string

	// SupportedScopes are advertised in discovery metadata.
	SupportedScopes []string

	// RequirePKCEForPublicClients rejects authorize calls from public clients
	// that omit a code challenge. Default: true via NewHandler.
	RequirePKCEForPublicClients *bool

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

func (c *Config) issuer() string {
	return strings.TrimRight(c.Issuer, "/")
}

// ResourceURI returns the protected resource identifier.
func (c *Config) ResourceURI() string {
	return c.issuer() + c.ResourcePath
}

// ProtectedResourceMetadataURL returns the RFC 9728 metadata document URL.
func (c *Config) ProtectedResourceMetadataURL() string {
	return c.issuer() + PathProtectedResourceMetadata
}

func (c *Config) requirePKCEForPublic() bool {
	return c.RequirePKCEForPublicClients == nil || *c.RequirePKCEForPublicClients
}
