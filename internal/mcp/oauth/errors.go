package oauth

import (
	"errors"
	"fmt"
	"net/http"
)

// Registry and store errors.
var (
	ErrClientNotFound        = errors.New("client not found")
	ErrCodeNotFound          = errors.New("authorization code not found")
	ErrCodeConsumed          = errors.New("authorization code already consumed")
	ErrTokenNotFound         = errors.New("access token not found")
	ErrTokenExpired          = errors.New("access token expired")
	ErrUnknownClient         = errors.New("unknown client")
	ErrInvalidClientMetadata = errors.New("invalid client metadata")
	ErrInvalidClient         = errors.New("invalid client credentials")
)

// OAuthError represents an OAuth 2.0 error response
type OAuthError struct {
	Code        string // OAuth error code (e.g., "invalid_request", "invalid_grant")
	Description string // Human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewOAuthError creates a new OAuth error
func NewOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// OAuth error constructors.
var (
	// ErrInvalidRequest indicates the request is malformed or missing required parameters
	ErrInvalidRequest = func(desc string) *OAuthError {
		return NewOAuthError("invalid_request", desc, http.StatusBadRequest)
	}

	// ErrInvalidGrant indicates the authorization code is invalid, expired or already used
	ErrInvalidGrant = func(desc string) *OAuthError {
		return NewOAuthError("invalid_grant", desc, http.StatusBadRequest)
	}

	// ErrInvalidClientAuth indicates client authentication failed
	ErrInvalidClientAuth = func(desc string) *OAuthError {
		return NewOAuthError("invalid_client", desc, http.StatusUnauthorized)
	}

	// ErrUnknownClientID is returned by the authorize endpoint, which never answers 401
	ErrUnknownClientID = func(desc string) *OAuthError {
		return NewOAuthError("invalid_client", desc, http.StatusBadRequest)
	}

	// ErrUnauthorizedClient is returned when an authenticated client uses a
	// grant it did not register for
	ErrUnauthorizedClient = func(desc string) *OAuthError {
		return NewOAuthError("unauthorized_client", desc, http.StatusBadRequest)
	}

	ErrUnsupportedGrantType = func(desc string) *OAuthError {
		return NewOAuthError("unsupported_grant_type", desc, http.StatusBadRequest)
	}

	ErrUnsupportedResponseType = func(desc string) *OAuthError {
		return NewOAuthError("unsupported_response_type", desc, http.StatusBadRequest)
	}

	ErrInvalidClientMetadataResp = func(desc string) *OAuthError {
		return NewOAuthError("invalid_client_metadata", desc, http.StatusBadRequest)
	}

	// ErrInvalidToken indicates the access token is invalid or expired
	ErrInvalidToken = func(desc string) *OAuthError {
		return NewOAuthError("invalid_token", desc, http.StatusUnauthorized)
	}

	// ErrServerError indicates an internal server error occurred
	ErrServerError = func(desc string) *OAuthError {
		return NewOAuthError("server_error", desc, http.StatusInternalServerError)
	}
)
