package oauth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Handler serves the authorization server endpoints and checks bearer
// tokens for the protected resource.
type Handler struct {
	config   *Config
	registry *Registry
	audit    *AuditLogger
	logger   *slog.Logger
}

// NewHandler creates a new OAuth handler
func NewHandler(config *Config, registry *Registry) (*Handler, error) {
	if config.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	parsedURL, err := url.Parse(config.Issuer)
	if err != nil || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid issuer URL %q", config.Issuer)
	}
	// Plain http only for loopback development setups.
	if parsedURL.Scheme != "https" && !isLoopbackHost(parsedURL.Hostname()) {
		return nil, fmt.Errorf("issuer must use HTTPS in production (got %s://)", parsedURL.Scheme)
	}

	if config.ResourcePath == "" {
		config.ResourcePath = DefaultResourcePath
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		config:   config,
		registry: registry,
		audit:    NewAuditLogger(logger, config.Metrics),
		logger:   logger,
	}, nil
}

// Registry returns the underlying registry.
func (h *Handler) Registry() *Registry {
	return h.registry
}

// Config returns the handler configuration.
func (h *Handler) Config() *Config {
	return h.config
}

func (h *Handler) authorizationServerMetadata() AuthorizationServerMetadata {
	issuer := h.config.issuer()
	return AuthorizationServerMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + PathAuthorize,
		TokenEndpoint:                     issuer + PathToken,
		RegistrationEndpoint:              issuer + PathRegister,
		ResponseTypesSupported:            SupportedResponseTypes,
		ResponseModesSupported:            []string{"query"},
		GrantTypesSupported:               SupportedGrantTypes,
		CodeChallengeMethodsSupported:     SupportedCodeChallengeMethods,
		TokenEndpointAuthMethodsSupported: SupportedTokenAuthMethods,
		ScopesSupported:                   h.config.SupportedScopes,
	}
}

// ServeAuthorizationServerMetadata serves RFC 8414 metadata.
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.authorizationServerMetadata())
}

// ServeOpenIDConfiguration serves the same document with the OpenID
// Connect discovery fields clients look for.
func (h *Handler) ServeOpenIDConfiguration(w http.ResponseWriter, r *http.Request) {
	metadata := h.authorizationServerMetadata()
	metadata.SubjectTypesSupported = []string{"public"}
	h.writeJSON(w, http.StatusOK, metadata)
}

// ServeProtectedResourceMetadata serves RFC 9728 metadata naming this server
// as the only authorization server for the MCP endpoint.
func (h *Handler) ServeProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, ProtectedResourceMetadata{
		Resource:               h.config.ResourceURI(),
		AuthorizationServers:   []string{h.config.issuer()},
		BearerMethodsSupported: []string{"header"},
		ScopesSupported:        h.config.SupportedScopes,
	})
}

// setSecurityHeaders sets security headers on HTTP responses
func (h *Handler) setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-XSS-Protection", "1; mode=block")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	w.Header().Set("Referrer-Policy", "no-referrer")

	if strings.HasPrefix(h.config.Issuer, "https://") {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	h.setSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// writeError is a helper to write OAuth error responses
func (h *Handler) writeError(w http.ResponseWriter, oauthErr *OAuthError) {
	h.logger.Debug("OAuth error", "code", oauthErr.Code, "description", oauthErr.Description, "status", oauthErr.Status)
	h.writeJSON(w, oauthErr.Status, ErrorResponse{
		Error:            oauthErr.Code,
		ErrorDescription: oauthErr.Description,
	})
}

// clientIP returns the remote address without port, for audit records.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
