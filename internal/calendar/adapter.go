package calendar

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrEventNotFound is returned when the event does not exist or was deleted.
	ErrEventNotFound = errors.New("event not found")

	// ErrNotAuthorized is returned when the calendar API denies access to
	// the event or calendar.
	ErrNotAuthorized = errors.New("not authorized for this event")

	// ErrNotAttendee is returned when the subject is not on the attendee list.
	ErrNotAttendee = errors.New("subject is not an attendee of this event")

	// ErrAuthorizationExpired is returned when the stored consent can no
	// longer produce an access token and must be granted again.
	ErrAuthorizationExpired = errors.New("calendar authorization expired")
)

// ResponseStatus is an attendee's answer to an invitation.
type ResponseStatus string

const (
	ResponseAccepted    ResponseStatus = "accepted"
	ResponseDeclined    ResponseStatus = "declined"
	ResponseTentative   ResponseStatus = "tentative"
	ResponseNeedsAction ResponseStatus = "needsAction"
)

// ValidResponses are the answers a subject can give.
var ValidResponses = []ResponseStatus{ResponseAccepted, ResponseDeclined, ResponseTentative}

// ParseResponse maps user input to a ResponseStatus. needsAction is not a
// valid answer.
func ParseResponse(s string) (ResponseStatus, bool) {
	switch ResponseStatus(strings.ToLower(strings.TrimSpace(s))) {
	case ResponseAccepted:
		return ResponseAccepted, true
	case ResponseDeclined:
		return ResponseDeclined, true
	case ResponseTentative:
		return ResponseTentative, true
	}
	return "", false
}

// Adapter is what the invitation tools need from a calendar backend.
// Every method acts on behalf of subject.
type Adapter interface {
	// ListPendingInvites returns events in [start, end) that the subject has
	// not answered and does not organize, ordered by start time.
	ListPendingInvites(ctx context.Context, subject string, start, end time.Time) ([]PendingInvite, error)

	// RespondToEvent sets the subject's own attendance status. Other
	// attendees are left as they are.
	RespondToEvent(ctx context.Context, subject, eventID string, response ResponseStatus) (*RespondResult, error)

	IsAuthorized(ctx context.Context, subject string) bool
	ConsentURL(subject string) (string, error)
	UserEmail(ctx context.Context, subject string) (string, error)
}
