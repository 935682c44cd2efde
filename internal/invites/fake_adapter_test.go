package invites

import (
	"context"
	"sync"
	"time"

	"github.com/teemow/rsvp/internal/calendar"
)

// fakeAdapter is an in-memory calendar.Adapter that records calls.
type fakeAdapter struct {
	mu sync.Mutex

	authorized map[string]bool
	emails     map[string]string
	events     map[string]*fakeEvent
	invites    []calendar.PendingInvite

	listErr    error
	respondErr error
	emailErr   error
	block      bool

	listCalls    int
	respondCalls int
	lastStart    time.Time
	lastEnd      time.Time
}

type fakeEvent struct {
	summary string
	status  calendar.ResponseStatus
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		authorized: map[string]bool{},
		emails:     map[string]string{},
		events:     map[string]*fakeEvent{},
	}
}

func (f *fakeAdapter) ListPendingInvites(ctx context.Context, subject string, start, end time.Time) ([]calendar.PendingInvite, error) {
	f.mu.Lock()
	f.listCalls++
	f.lastStart, f.lastEnd = start, end
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.invites, nil
}

func (f *fakeAdapter) RespondToEvent(_ context.Context, _ string, eventID string, response calendar.ResponseStatus) (*calendar.RespondResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respondCalls++

	if f.respondErr != nil {
		return nil, f.respondErr
	}
	event, ok := f.events[eventID]
	if !ok {
		return nil, calendar.ErrEventNotFound
	}
	event.status = response
	return &calendar.RespondResult{EventID: eventID, EventSummary: event.summary, Response: response}, nil
}

func (f *fakeAdapter) IsAuthorized(_ context.Context, subject string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authorized[subject]
}

func (f *fakeAdapter) ConsentURL(subject string) (string, error) {
	return "https://accounts.example.com/consent?subject=" + subject, nil
}

func (f *fakeAdapter) UserEmail(_ context.Context, subject string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emailErr != nil {
		return "", f.emailErr
	}
	return f.emails[subject], nil
}
