package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// contextKey is the type for context keys
type contextKey string

// tokenContextKey stores the validated *AccessToken in the request context.
const tokenContextKey contextKey = "oauth_access_token"

// ContextWithToken returns ctx carrying token.
func ContextWithToken(ctx context.Context, token *AccessToken) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// TokenFromContext returns the access token stored by RequireBearer or
// ContextWithToken.
func TokenFromContext(ctx context.Context) (*AccessToken, bool) {
	token, ok := ctx.Value(tokenContextKey).(*AccessToken)
	return token, ok
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// Authenticate validates the request's bearer token. The returned reason is
// a short machine string for logs when validation fails.
func (h *Handler) Authenticate(r *http.Request) (*AccessToken, string) {
	raw, ok := BearerToken(r)
	if !ok {
		return nil, "missing_token"
	}

	token, err := h.registry.LookupAccessToken(r.Context(), raw)
	switch {
	case err == nil:
		return token, ""
	case errors.Is(err, ErrTokenExpired):
		h.audit.LogInvalidToken(clientIP(r), "expired")
		return nil, "expired_token"
	case errors.Is(err, ErrTokenNotFound):
		h.audit.LogInvalidToken(clientIP(r), "unknown")
		return nil, "invalid_token"
	default:
		h.logger.Error("Token lookup failed", "error", err)
		return nil, "lookup_failed"
	}
}

// Challenge returns the WWW-Authenticate value sent with 401 responses from
// protected routes. It names the resource, the issuer and the RFC 9728
// metadata document.
func (h *Handler) Challenge() string {
	return fmt.Sprintf(`Bearer resource="%s", as_uri="%s", resource_metadata="%s"`,
		h.config.ResourceURI(), h.config.issuer(), h.config.ProtectedResourceMetadataURL())
}

// RequireBearer rejects requests without a valid bearer token using a 401
// OAuth error and the Challenge header. Valid tokens are put in the context.
func (h *Handler) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, reason := h.Authenticate(r)
		if token == nil {
			h.writeUnauthorizedError(w, reason)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithToken(r.Context(), token)))
	})
}

func (h *Handler) writeUnauthorizedError(w http.ResponseWriter, reason string) {
	w.Header().Set("WWW-Authenticate", h.Challenge())
	desc := "Missing or invalid access token"
	if reason == "expired_token" {
		desc = "Access token expired"
	}
	h.writeError(w, ErrInvalidToken(desc))
}
