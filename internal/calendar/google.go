package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/teemow/rsvp/internal/google"
	"github.com/teemow/rsvp/internal/instrumentation"
	"github.com/teemow/rsvp/internal/logging"
)

const (
	primaryCalendarID = "primary"
	listPageSize      = 250
)

// GoogleAdapter implements Adapter on the Google Calendar API.
type GoogleAdapter struct {
	oauthConfig *oauth2.Config
	tokens      google.TokenStore
	state       *StateSigner
	clients     *clientCache

	apiEndpoint string
	sendUpdates string
	metrics     *instrumentation.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// GoogleOption configures a GoogleAdapter.
type GoogleOption func(*GoogleAdapter)

// WithAPIEndpoint sends calendar and userinfo calls to endpoint instead of
// www.googleapis.com.
func WithAPIEndpoint(endpoint string) GoogleOption {
	return func(a *GoogleAdapter) {
		a.apiEndpoint = endpoint
	}
}

// WithClientCacheTTL sets how long per-subject clients are reused.
func WithClientCacheTTL(ttl time.Duration) GoogleOption {
	return func(a *GoogleAdapter) {
		a.clients = newClientCache(ttl)
	}
}

// WithSendUpdates sets who Google notifies about a response: all,
// externalOnly or none.
func WithSendUpdates(mode string) GoogleOption {
	return func(a *GoogleAdapter) {
		a.sendUpdates = mode
	}
}

func WithMetrics(metrics *instrumentation.Metrics) GoogleOption {
	return func(a *GoogleAdapter) {
		a.metrics = metrics
	}
}

func WithLogger(logger *slog.Logger) GoogleOption {
	return func(a *GoogleAdapter) {
		a.logger = logger
	}
}

// NewGoogleAdapter creates an adapter that authorizes each subject with the
// consent stored in tokens.
func NewGoogleAdapter(config *oauth2.Config, tokens google.TokenStore, state *StateSigner, opts ...GoogleOption) (*GoogleAdapter, error) {
	if config == nil {
		return nil, fmt.Errorf("oauth config is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if state == nil {
		return nil, fmt.Errorf("state signer is required")
	}

	a := &GoogleAdapter{
		oauthConfig: config,
		tokens:      tokens,
		state:       state,
		clients:     newClientCache(DefaultClientCacheTTL),
		sendUpdates: "all",
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *GoogleAdapter) serviceOptions(client *http.Client) []option.ClientOption {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if a.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(a.apiEndpoint))
	}
	return opts
}

// client returns the authorized API access for subject.
func (a *GoogleAdapter) client(ctx context.Context, subject string) (*subjectClient, error) {
	return a.clients.get(subject, func() (*subjectClient, error) {
		record, err := a.tokens.Load(ctx, subject)
		if errors.Is(err, google.ErrNoToken) {
			return nil, ErrAuthorizationExpired
		}
		if err != nil {
			return nil, fmt.Errorf("load calendar authorization: %w", err)
		}

		ts := google.NewTokenSource(a.oauthConfig, a.tokens, subject, record, a.logger)
		httpClient := google.NewHTTPClient(context.Background(), ts)

		svc, err := calendar.NewService(context.Background(), a.serviceOptions(httpClient)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Calendar service: %w", err)
		}
		return &subjectClient{svc: svc, httpClient: httpClient, email: record.Email}, nil
	})
}

// observe runs fn inside a calendar span and records its outcome.
func (a *GoogleAdapter) observe(ctx context.Context, operation, subject string, fn func(context.Context) error) error {
	ctx, span := instrumentation.StartCalendarAPISpan(ctx, operation)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		if errors.Is(err, ErrAuthorizationExpired) {
			a.clients.invalidate(subject)
			// A lapsed grant must not keep reporting the subject as connected.
			if delErr := a.tokens.Delete(context.WithoutCancel(ctx), subject); delErr != nil {
				a.logger.Warn("Failed to drop expired calendar authorization",
					logging.SubjectHash(subject), logging.Err(delErr))
			}
		}
		a.logger.Debug("Calendar operation failed",
			logging.Operation(operation), logging.SubjectHash(subject), logging.Err(err))
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	a.metrics.RecordCalendarAPIOperation(ctx, operation, status, time.Since(start))
	return err
}

// ListPendingInvites implements Adapter.
func (a *GoogleAdapter) ListPendingInvites(ctx context.Context, subject string, start, end time.Time) ([]PendingInvite, error) {
	var invites []PendingInvite
	err := a.observe(ctx, instrumentation.OperationListPending, subject, func(ctx context.Context) error {
		c, err := a.client(ctx, subject)
		if err != nil {
			return err
		}

		var events []*calendar.Event
		call := c.svc.Events.List(primaryCalendarID).
			TimeMin(start.Format(time.RFC3339)).
			TimeMax(end.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(listPageSize)

		err = call.Pages(ctx, func(page *calendar.Events) error {
			events = append(events, page.Items...)
			return nil
		})
		if err != nil {
			return classifyError("failed to list events", err)
		}

		invites = filterPending(events, c.email)
		return nil
	})
	return invites, err
}

// RespondToEvent implements Adapter. The attendee list is sent back as
// returned by the API with only the subject's status changed.
func (a *GoogleAdapter) RespondToEvent(ctx context.Context, subject, eventID string, response ResponseStatus) (*RespondResult, error) {
	var result *RespondResult
	err := a.observe(ctx, instrumentation.OperationRespond, subject, func(ctx context.Context) error {
		c, err := a.client(ctx, subject)
		if err != nil {
			return err
		}

		event, err := c.svc.Events.Get(primaryCalendarID, eventID).Context(ctx).Do()
		if err != nil {
			return classifyError("failed to get event", err)
		}
		if event.Status == "cancelled" {
			return fmt.Errorf("event %s is cancelled: %w", eventID, ErrEventNotFound)
		}

		self := selfAttendee(event, c.email)
		if self == nil {
			return ErrNotAttendee
		}

		attendees := make([]*calendar.EventAttendee, 0, len(event.Attendees))
		for _, att := range event.Attendees {
			if att == nil {
				continue
			}
			entry := *att
			if att == self {
				entry.ResponseStatus = string(response)
			}
			attendees = append(attendees, &entry)
		}

		patch := c.svc.Events.Patch(primaryCalendarID, eventID, &calendar.Event{Attendees: attendees}).Context(ctx)
		if a.sendUpdates != "" {
			patch = patch.SendUpdates(a.sendUpdates)
		}
		patched, err := patch.Do()
		if err != nil {
			return classifyError("failed to update event", err)
		}

		summary := patched.Summary
		if summary == "" {
			summary = event.Summary
		}
		result = &RespondResult{EventID: eventID, EventSummary: summary, Response: response}
		return nil
	})
	return result, err
}

// IsAuthorized implements Adapter.
func (a *GoogleAdapter) IsAuthorized(ctx context.Context, subject string) bool {
	record, err := a.tokens.Load(ctx, subject)
	if err != nil {
		if !errors.Is(err, google.ErrNoToken) {
			a.logger.Warn("Failed to load calendar authorization", logging.SubjectHash(subject), logging.Err(err))
		}
		return false
	}
	return record.Usable()
}

// ConsentURL implements Adapter. The URL asks for offline access so the
// grant survives access token expiry.
func (a *GoogleAdapter) ConsentURL(subject string) (string, error) {
	state, err := a.state.Sign(subject)
	if err != nil {
		return "", err
	}
	return a.oauthConfig.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	), nil
}

// UserEmail implements Adapter. The email captured at consent time is used
// when present; otherwise it is fetched once and remembered.
func (a *GoogleAdapter) UserEmail(ctx context.Context, subject string) (string, error) {
	record, err := a.tokens.Load(ctx, subject)
	if errors.Is(err, google.ErrNoToken) {
		return "", ErrAuthorizationExpired
	}
	if err != nil {
		return "", fmt.Errorf("load calendar authorization: %w", err)
	}
	if record.Email != "" {
		return record.Email, nil
	}

	c, err := a.client(ctx, subject)
	if err != nil {
		return "", err
	}
	email, err := a.fetchEmail(ctx, subject, c.httpClient)
	if err != nil {
		return "", err
	}

	record.Email = email
	if err := a.tokens.Save(ctx, subject, record); err != nil {
		a.logger.Warn("Failed to remember calendar email", logging.SubjectHash(subject), logging.Err(err))
	}
	a.clients.invalidate(subject)
	return email, nil
}

func (a *GoogleAdapter) fetchEmail(ctx context.Context, subject string, client *http.Client) (string, error) {
	var email string
	err := a.observe(ctx, instrumentation.OperationUserInfo, subject, func(ctx context.Context) error {
		svc, err := oauth2api.NewService(ctx, a.serviceOptions(client)...)
		if err != nil {
			return fmt.Errorf("failed to create userinfo service: %w", err)
		}
		info, err := svc.Userinfo.Get().Context(ctx).Do()
		if err != nil {
			return classifyError("failed to get user info", err)
		}
		email = strings.TrimSpace(info.Email)
		return nil
	})
	return email, err
}
