package invites

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports malformed or missing input. It is returned before
// the calendar is contacted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// AuthRequiredError means the subject has not connected a calendar. AuthURL
// is the consent link that fixes it.
type AuthRequiredError struct {
	AuthURL string
	Message string
}

func (e *AuthRequiredError) Error() string {
	return e.Message
}

// AdapterErrorKind classifies calendar failures for callers.
type AdapterErrorKind string

const (
	KindNotFound      AdapterErrorKind = "not_found"
	KindNotAuthorized AdapterErrorKind = "not_authorized"
	KindNotAttendee   AdapterErrorKind = "not_attendee"
	KindExpiredAuth   AdapterErrorKind = "expired_auth"
	KindTimeout       AdapterErrorKind = "timeout"
	KindFailure       AdapterErrorKind = "adapter_failure"
)

// AdapterError is a calendar failure rendered for the caller. Err keeps the
// underlying cause for logs.
type AdapterError struct {
	Kind    AdapterErrorKind
	Message string
	AuthURL string
	Err     error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// ErrorPayload is the structured body of a failed operation.
type ErrorPayload struct {
	Error        string `json:"error"`
	Code         string `json:"code,omitempty"`
	Field        string `json:"field,omitempty"`
	AuthRequired bool   `json:"authRequired,omitempty"`
	AuthURL      string `json:"authUrl,omitempty"`
}

// AuthRequired is returned instead of an error when the calendar is not
// connected, so the caller can offer a connect button.
type AuthRequired struct {
	AuthRequired bool   `json:"authRequired"`
	AuthURL      string `json:"authUrl"`
	Message      string `json:"message"`
}

// Payload converts an operation outcome into the body returned to the
// caller. isError is false for successes and for the authorization-required
// outcome.
func Payload(v any, err error) (payload any, isError bool) {
	if err == nil {
		return v, false
	}

	var authErr *AuthRequiredError
	if errors.As(err, &authErr) {
		return AuthRequired{AuthRequired: true, AuthURL: authErr.AuthURL, Message: authErr.Message}, false
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ErrorPayload{Error: validationErr.Message, Code: "validation_error", Field: validationErr.Field}, true
	}

	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return ErrorPayload{
			Error:        adapterErr.Message,
			Code:         string(adapterErr.Kind),
			AuthRequired: adapterErr.Kind == KindExpiredAuth,
			AuthURL:      adapterErr.AuthURL,
		}, true
	}

	return ErrorPayload{Error: "internal error", Code: "internal_error"}, true
}

// HTTPStatus is the REST status code for an operation outcome.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var authErr *AuthRequiredError
	if errors.As(err, &authErr) {
		return http.StatusOK
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest
	}

	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		switch adapterErr.Kind {
		case KindNotFound:
			return http.StatusNotFound
		case KindNotAuthorized, KindNotAttendee, KindExpiredAuth:
			return http.StatusForbidden
		case KindTimeout:
			return http.StatusGatewayTimeout
		default:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}
