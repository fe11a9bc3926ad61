// Package calendar wraps the Google Calendar API for availability lookups
// and event creation.
package calendar

import (
	"context"
	"fmt"
	"time"

	cal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/mkarlin/mailpilot/internal/auth"
	"github.com/mkarlin/mailpilot/internal/types"
)

// Service wraps an authenticated Calendar API client for a single calendar.
type Service struct {
	svc        *cal.Service
	calendarID string
}

// New builds a Calendar service from an authenticated session. Empty
// calendarID means the primary calendar.
func New(ctx context.Context, session *auth.Session, calendarID string) (*Service, error) {
	svc, err := cal.NewService(ctx, option.WithHTTPClient(session.Client))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Service{svc: svc, calendarID: calendarID}, nil
}

// ListUpcoming returns up to limit events starting from now, soonest first.
func (s *Service) ListUpcoming(ctx context.Context, limit int) ([]types.Event, error) {
	resp, err := s.svc.Events.List(s.calendarID).
		TimeMin(time.Now().UTC().Format(time.RFC3339)).
		MaxResults(int64(limit)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}

	events := make([]types.Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		ev := types.Event{
			ID:          item.Id,
			Summary:     item.Summary,
			Description: item.Description,
			Start:       eventTime(item.Start),
			End:         eventTime(item.End),
			Location:    item.Location,
			Link:        item.HtmlLink,
		}
		if item.Organizer != nil {
			ev.Organizer = item.Organizer.Email
		}
		for _, att := range item.Attendees {
			ev.Attendees = append(ev.Attendees, att.Email)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Busy returns the calendar's busy ranges between start and end as half-open
// UTC intervals.
func (s *Service) Busy(ctx context.Context, start, end time.Time) ([]types.BusyRange, error) {
	resp, err := s.svc.Freebusy.Query(&cal.FreeBusyRequest{
		TimeMin: start.UTC().Format(time.RFC3339),
		TimeMax: end.UTC().Format(time.RFC3339),
		Items:   []*cal.FreeBusyRequestItem{{Id: s.calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query: %w", err)
	}

	info, ok := resp.Calendars[s.calendarID]
	if !ok {
		return nil, nil
	}

	ranges := make([]types.BusyRange, 0, len(info.Busy))
	for _, period := range info.Busy {
		from, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			continue
		}
		to, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			continue
		}
		ranges = append(ranges, types.BusyRange{Start: from.UTC(), End: to.UTC()})
	}
	return ranges, nil
}

// CreateEvent inserts an event and returns its ID. Attendees receive
// invitation emails when present.
func (s *Service) CreateEvent(ctx context.Context, summary, description, location string, start, end time.Time, attendees []string) (string, error) {
	event := &cal.Event{
		Summary:     summary,
		Description: description,
		Location:    location,
		Start:       &cal.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &cal.EventDateTime{DateTime: end.Format(time.RFC3339)},
	}
	for _, addr := range attendees {
		event.Attendees = append(event.Attendees, &cal.EventAttendee{Email: addr})
	}

	sendUpdates := "none"
	if len(attendees) > 0 {
		sendUpdates = "all"
	}

	created, err := s.svc.Events.Insert(s.calendarID, event).
		SendUpdates(sendUpdates).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("create event %q: %w", summary, err)
	}
	return created.Id, nil
}

// eventTime prefers the timed value and falls back to the all-day date.
func eventTime(dt *cal.EventDateTime) string {
	if dt == nil {
		return ""
	}
	if dt.DateTime != "" {
		return dt.DateTime
	}
	return dt.Date
}
