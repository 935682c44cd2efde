package calendar

import (
	"cmp"
	"slices"
	"strings"
	"time"

	calendar "google.golang.org/api/calendar/v3"
)

// PendingInvite is an unanswered invitation.
type PendingInvite struct {
	EventID        string     `json:"eventId"`
	Summary        string     `json:"summary"`
	Description    string     `json:"description,omitempty"`
	Location       string     `json:"location,omitempty"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        time.Time  `json:"endTime"`
	IsAllDay       bool       `json:"isAllDay"`
	OrganizerEmail string     `json:"organizerEmail"`
	OrganizerName  string     `json:"organizerName,omitempty"`
	Attendees      []Attendee `json:"attendees"`
	CalendarLink   string     `json:"calendarLink"`
}

// Attendee is one entry of an event's guest list.
type Attendee struct {
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status"`
}

// RespondResult describes a recorded answer.
type RespondResult struct {
	EventID      string         `json:"eventId"`
	EventSummary string         `json:"eventSummary"`
	Response     ResponseStatus `json:"response"`
}

const dateLayout = "2006-01-02"

// parseEventTime reads a timed or all-day boundary.
func parseEventTime(edt *calendar.EventDateTime) (t time.Time, allDay bool) {
	if edt == nil {
		return time.Time{}, false
	}
	if edt.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, edt.DateTime); err == nil {
			return parsed, false
		}
	}
	if edt.Date != "" {
		if parsed, err := time.Parse(dateLayout, edt.Date); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// selfAttendee finds the subject's own attendee entry. The API marks it with
// Self; email is the fallback for responses fetched without that flag.
func selfAttendee(event *calendar.Event, email string) *calendar.EventAttendee {
	for _, att := range event.Attendees {
		if att != nil && att.Self {
			return att
		}
	}
	if email == "" {
		return nil
	}
	for _, att := range event.Attendees {
		if att != nil && strings.EqualFold(att.Email, email) {
			return att
		}
	}
	return nil
}

// isOrganizer reports whether the subject organizes event.
func isOrganizer(event *calendar.Event, email string) bool {
	if event.Organizer == nil {
		return false
	}
	if event.Organizer.Self {
		return true
	}
	return email != "" && strings.EqualFold(event.Organizer.Email, email)
}

// isPending reports whether event awaits the subject's answer.
func isPending(event *calendar.Event, email string) bool {
	if event == nil || event.Status == "cancelled" {
		return false
	}
	if isOrganizer(event, email) {
		return false
	}
	self := selfAttendee(event, email)
	return self != nil && self.ResponseStatus == string(ResponseNeedsAction)
}

func toPendingInvite(event *calendar.Event) PendingInvite {
	invite := PendingInvite{
		EventID:      event.Id,
		Summary:      event.Summary,
		Description:  event.Description,
		Location:     event.Location,
		CalendarLink: event.HtmlLink,
		Attendees:    make([]Attendee, 0, len(event.Attendees)),
	}
	if invite.Summary == "" {
		invite.Summary = "(no title)"
	}

	invite.StartTime, invite.IsAllDay = parseEventTime(event.Start)
	invite.EndTime, _ = parseEventTime(event.End)

	if event.Organizer != nil {
		invite.OrganizerEmail = event.Organizer.Email
		invite.OrganizerName = event.Organizer.DisplayName
	}

	for _, att := range event.Attendees {
		if att == nil || att.Resource {
			continue
		}
		invite.Attendees = append(invite.Attendees, Attendee{
			Email:  att.Email,
			Name:   att.DisplayName,
			Status: att.ResponseStatus,
		})
	}
	return invite
}

// filterPending keeps pending events and orders them by start time.
func filterPending(events []*calendar.Event, email string) []PendingInvite {
	invites := make([]PendingInvite, 0, len(events))
	for _, event := range events {
		if isPending(event, email) {
			invites = append(invites, toPendingInvite(event))
		}
	}
	slices.SortStableFunc(invites, func(a, b PendingInvite) int {
		return cmp.Compare(a.StartTime.UnixNano(), b.StartTime.UnixNano())
	})
	return invites
}
