package google

import (
	calendar "google.golang.org/api/calendar/v3"
	oauth2api "google.golang.org/api/oauth2/v2"
)

// DefaultOAuthScopes are requested on the consent screen. Event access is
// enough to list and answer invitations; the email scope identifies the
// connected account.
var DefaultOAuthScopes = []string{
	oauth2api.OpenIDScope,
	oauth2api.UserinfoEmailScope,
	calendar.CalendarEventsScope,
}
