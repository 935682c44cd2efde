package invites

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/teemow/rsvp/internal/calendar"
	"github.com/teemow/rsvp/internal/logging"
)

const (
	// DefaultTimeout bounds every calendar call.
	DefaultTimeout = 30 * time.Second

	// DefaultWindow is how far ahead ListPending looks when no end date is
	// given.
	DefaultWindow = 14 * 24 * time.Hour

	dateLayout = "2006-01-02"

	authRequiredMessage = "Connect your Google Calendar to see and answer your invitations."
)

// ListResult is the payload of a successful ListPending.
type ListResult struct {
	Invites   []calendar.PendingInvite `json:"invites"`
	StartDate string                   `json:"startDate"`
	EndDate   string                   `json:"endDate"`
	Count     int                      `json:"count"`
}

// RespondResult is the payload of a successful Respond.
type RespondResult struct {
	Success      bool   `json:"success"`
	EventID      string `json:"eventId"`
	Response     string `json:"response"`
	EventSummary string `json:"eventSummary"`
	Message      string `json:"message"`
}

// AuthStatus reports whether the subject has connected a calendar.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	AuthURL       string `json:"authUrl,omitempty"`
}

// Service runs invitation operations against a calendar adapter.
type Service struct {
	adapter calendar.Adapter
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout bounds each adapter call. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock sets the time source used for default date ranges.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a Service backed by adapter.
func NewService(adapter calendar.Adapter, opts ...Option) *Service {
	s := &Service{
		adapter: adapter,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListPending returns the subject's unanswered invitations between
// startDate and endDate. Both are optional and accept RFC 3339 or
// YYYY-MM-DD; a date-only end includes that whole day.
func (s *Service) ListPending(ctx context.Context, subject, startDate, endDate string) (*ListResult, error) {
	start, end, err := s.dateRange(startDate, endDate)
	if err != nil {
		return nil, err
	}

	if err := s.requireAuthorization(ctx, subject); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	invites, err := s.adapter.ListPendingInvites(ctx, subject, start, end)
	if err != nil {
		return nil, s.adapterError(ctx, subject, "Failed to list pending invitations", err)
	}
	if invites == nil {
		invites = []calendar.PendingInvite{}
	}

	return &ListResult{
		Invites:   invites,
		StartDate: start.Format(time.RFC3339),
		EndDate:   end.Format(time.RFC3339),
		Count:     len(invites),
	}, nil
}

// Respond records the subject's answer to an invitation. Giving the same
// answer twice is not an error.
func (s *Service) Respond(ctx context.Context, subject, eventID, response string) (*RespondResult, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, &ValidationError{Field: "event_id", Message: "event_id is required"}
	}
	if strings.TrimSpace(response) == "" {
		return nil, &ValidationError{Field: "response", Message: "response is required"}
	}
	status, ok := calendar.ParseResponse(response)
	if !ok {
		return nil, &ValidationError{
			Field:   "response",
			Message: "response must be one of accepted, declined, tentative",
		}
	}

	if err := s.requireAuthorization(ctx, subject); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.adapter.RespondToEvent(ctx, subject, eventID, status)
	if err != nil {
		return nil, s.adapterError(ctx, subject, "Failed to respond to invitation", err)
	}

	s.logger.Info("Invitation answered",
		logging.SubjectHash(subject), slog.String("event_id", eventID), logging.Status(string(status)))

	return &RespondResult{
		Success:      true,
		EventID:      eventID,
		Response:     string(status),
		EventSummary: result.EventSummary,
		Message:      confirmation(status, result.EventSummary),
	}, nil
}

// AuthStatus reports the subject's calendar connection. It never fails:
// lookup problems are logged and reported as not connected.
func (s *Service) AuthStatus(ctx context.Context, subject string) *AuthStatus {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.adapter.IsAuthorized(ctx, subject) {
		email, err := s.adapter.UserEmail(ctx, subject)
		if err == nil {
			return &AuthStatus{Authenticated: true, Email: email}
		}
		if !errors.Is(err, calendar.ErrAuthorizationExpired) {
			s.logger.Warn("Failed to read calendar email", logging.SubjectHash(subject), logging.Err(err))
			return &AuthStatus{Authenticated: true}
		}
	}

	url, err := s.adapter.ConsentURL(subject)
	if err != nil {
		s.logger.Error("Failed to build consent URL", logging.SubjectHash(subject), logging.Err(err))
	}
	return &AuthStatus{Authenticated: false, AuthURL: url}
}

func (s *Service) requireAuthorization(ctx context.Context, subject string) error {
	if s.adapter.IsAuthorized(ctx, subject) {
		return nil
	}
	url, err := s.adapter.ConsentURL(subject)
	if err != nil {
		return &AdapterError{Kind: KindFailure, Message: "Failed to start calendar authorization", Err: err}
	}
	return &AuthRequiredError{AuthURL: url, Message: authRequiredMessage}
}

// adapterError classifies an adapter failure. The cause is logged, not
// shown.
func (s *Service) adapterError(ctx context.Context, subject, message string, err error) error {
	s.logger.Warn(message, logging.SubjectHash(subject), logging.Err(err))

	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil:
		return &AdapterError{Kind: KindTimeout, Message: "The calendar did not respond in time", Err: err}
	case errors.Is(err, calendar.ErrEventNotFound):
		return &AdapterError{Kind: KindNotFound, Message: "Event not found", Err: err}
	case errors.Is(err, calendar.ErrNotAttendee):
		return &AdapterError{Kind: KindNotAttendee, Message: "You are not an attendee of this event", Err: err}
	case errors.Is(err, calendar.ErrNotAuthorized):
		return &AdapterError{Kind: KindNotAuthorized, Message: "You are not allowed to change this event", Err: err}
	case errors.Is(err, calendar.ErrAuthorizationExpired):
		adapterErr := &AdapterError{
			Kind:    KindExpiredAuth,
			Message: "Your calendar authorization has expired. Please reconnect your calendar.",
			Err:     err,
		}
		if url, urlErr := s.adapter.ConsentURL(subject); urlErr == nil {
			adapterErr.AuthURL = url
		}
		return adapterErr
	}
	return &AdapterError{Kind: KindFailure, Message: message, Err: err}
}

// dateRange resolves optional bounds. The end defaults to DefaultWindow
// after the start.
func (s *Service) dateRange(startDate, endDate string) (time.Time, time.Time, error) {
	start := s.now()
	if strings.TrimSpace(startDate) != "" {
		parsed, _, err := parseDate(startDate)
		if err != nil {
			return time.Time{}, time.Time{}, &ValidationError{Field: "start_date", Message: err.Error()}
		}
		start = parsed
	}

	end := start.Add(DefaultWindow)
	if strings.TrimSpace(endDate) != "" {
		parsed, dateOnly, err := parseDate(endDate)
		if err != nil {
			return time.Time{}, time.Time{}, &ValidationError{Field: "end_date", Message: err.Error()}
		}
		if dateOnly {
			parsed = parsed.AddDate(0, 0, 1)
		}
		end = parsed
	}

	if !end.After(start) {
		return time.Time{}, time.Time{}, &ValidationError{Field: "end_date", Message: "end_date must be after start_date"}
	}
	return start, end, nil
}

func parseDate(value string) (t time.Time, dateOnly bool, err error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, false, nil
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("%q is not an RFC 3339 timestamp or YYYY-MM-DD date", value)
}

func confirmation(status calendar.ResponseStatus, summary string) string {
	if summary == "" {
		summary = "the event"
	} else {
		summary = fmt.Sprintf("%q", summary)
	}
	switch status {
	case calendar.ResponseAccepted:
		return "You accepted " + summary + "."
	case calendar.ResponseDeclined:
		return "You declined " + summary + "."
	default:
		return "You tentatively accepted " + summary + "."
	}
}
