package calendar

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// classifyError maps a Google API failure onto the adapter sentinels. The
// original error stays in the chain for logging.
func classifyError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound, http.StatusGone:
			return fmt.Errorf("%s: %w: %w", op, ErrEventNotFound, err)
		case http.StatusUnauthorized:
			return fmt.Errorf("%s: %w: %w", op, ErrAuthorizationExpired, err)
		case http.StatusForbidden:
			if isRateLimited(apiErr) {
				return fmt.Errorf("%s: %w", op, err)
			}
			return fmt.Errorf("%s: %w: %w", op, ErrNotAuthorized, err)
		}
	}

	// A failed refresh means the consent was revoked or has lapsed.
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%s: %w: %w", op, ErrAuthorizationExpired, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isRateLimited(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return false
}
