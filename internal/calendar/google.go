package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/starford/notegraph/internal/apperr"
)

const dateLayout = "2006-01-02"

// Google is the Provider backed by the Google Calendar API.
type Google struct {
	oauth *OAuth
}

// NewGoogle creates a Google Calendar provider using o for credentials.
func NewGoogle(o *OAuth) *Google {
	return &Google{oauth: o}
}

func (g *Google) service(ctx context.Context, userID int64) (*gcal.Service, error) {
	ts, err := g.oauth.TokenSource(ctx, userID)
	if err != nil {
		return nil, err
	}
	srv, err := gcal.NewService(ctx, g.oauth.clientOptions(ctx, ts)...)
	if err != nil {
		return nil, fmt.Errorf("calendar: unable to create client: %w", err)
	}
	return srv, nil
}

// Connected implements Provider.
func (g *Google) Connected(ctx context.Context, userID int64) (bool, error) {
	return g.oauth.Connected(ctx, userID)
}

// CreateEvent implements Provider.
func (g *Google) CreateEvent(ctx context.Context, userID int64, e Event) (*Event, error) {
	srv, err := g.service(ctx, userID)
	if err != nil {
		return nil, err
	}
	calID := calendarOrPrimary(e.CalendarID)
	out, err := srv.Events.Insert(calID, toAPI(e)).Context(ctx).Do()
	if err != nil {
		return nil, apiError("create event", err)
	}
	return fromAPI(calID, out), nil
}

// UpdateEvent implements Provider.
func (g *Google) UpdateEvent(ctx context.Context, userID int64, e Event) (*Event, error) {
	srv, err := g.service(ctx, userID)
	if err != nil {
		return nil, err
	}
	calID := calendarOrPrimary(e.CalendarID)
	out, err := srv.Events.Update(calID, e.ID, toAPI(e)).Context(ctx).Do()
	if err != nil {
		return nil, apiError("update event", err)
	}
	return fromAPI(calID, out), nil
}

// DeleteEvent implements Provider.
func (g *Google) DeleteEvent(ctx context.Context, userID int64, calendarID, eventID string) error {
	srv, err := g.service(ctx, userID)
	if err != nil {
		return err
	}
	if err := srv.Events.Delete(calendarOrPrimary(calendarID), eventID).Context(ctx).Do(); err != nil {
		return apiError("delete event", err)
	}
	return nil
}

// GetEvent implements Provider.
func (g *Google) GetEvent(ctx context.Context, userID int64, calendarID, eventID string) (*Event, error) {
	srv, err := g.service(ctx, userID)
	if err != nil {
		return nil, err
	}
	calID := calendarOrPrimary(calendarID)
	out, err := srv.Events.Get(calID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, apiError("get event", err)
	}
	return fromAPI(calID, out), nil
}

// ListEvents implements Provider. Recurring events are expanded.
func (g *Google) ListEvents(ctx context.Context, userID int64, calendarID string, from, to time.Time, limit int) ([]Event, error) {
	srv, err := g.service(ctx, userID)
	if err != nil {
		return nil, err
	}
	calID := calendarOrPrimary(calendarID)
	call := srv.Events.List(calID).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(from.Format(time.RFC3339))
	if !to.IsZero() {
		call = call.TimeMax(to.Format(time.RFC3339))
	}
	if limit > 0 {
		call = call.MaxResults(int64(limit))
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return nil, apiError("list events", err)
	}
	events := make([]Event, 0, len(res.Items))
	for _, it := range res.Items {
		events = append(events, *fromAPI(calID, it))
	}
	return events, nil
}

// ListCalendars implements Provider.
func (g *Google) ListCalendars(ctx context.Context, userID int64) ([]Calendar, error) {
	srv, err := g.service(ctx, userID)
	if err != nil {
		return nil, err
	}
	res, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, apiError("list calendars", err)
	}
	out := make([]Calendar, 0, len(res.Items))
	for _, c := range res.Items {
		out = append(out, Calendar{ID: c.Id, Summary: c.Summary, Primary: c.Primary, TimeZone: c.TimeZone})
	}
	return out, nil
}

func calendarOrPrimary(id string) string {
	if id == "" {
		return PrimaryCalendar
	}
	return id
}

// apiError maps Google API failures onto the service error kinds.
func apiError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound, http.StatusGone:
			return fmt.Errorf("calendar: %s: %w", op, apperr.ErrNotFound)
		case http.StatusUnauthorized:
			return fmt.Errorf("calendar: %s: %w", op, apperr.ErrAuthRequired)
		}
	}
	return fmt.Errorf("calendar: %s: %w: %v", op, apperr.ErrUpstream, err)
}

func toAPI(e Event) *gcal.Event {
	minutes := e.ReminderMinutes
	if minutes <= 0 {
		minutes = DefaultReminderMinutes
	}
	ev := &gcal.Event{
		Summary:     e.Title,
		Description: e.Description,
		Location:    e.Location,
		Reminders: &gcal.EventReminders{
			UseDefault:      false,
			Overrides:       []*gcal.EventReminder{{Method: "popup", Minutes: int64(minutes)}},
			ForceSendFields: []string{"UseDefault"},
		},
	}
	if e.AllDay {
		end := e.End
		if !end.After(e.Start) {
			end = e.Start.AddDate(0, 0, 1)
		}
		ev.Start = &gcal.EventDateTime{Date: e.Start.Format(dateLayout)}
		ev.End = &gcal.EventDateTime{Date: end.Format(dateLayout)}
		return ev
	}
	ev.Start = &gcal.EventDateTime{DateTime: e.Start.Format(time.RFC3339)}
	ev.End = &gcal.EventDateTime{DateTime: e.End.Format(time.RFC3339)}
	return ev
}

func fromAPI(calendarID string, ev *gcal.Event) *Event {
	out := &Event{
		ID:          ev.Id,
		CalendarID:  calendarID,
		Title:       ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Status:      ev.Status,
		Link:        ev.HtmlLink,
	}
	out.Start, out.AllDay = parseEventTime(ev.Start)
	out.End, _ = parseEventTime(ev.End)
	if ev.Reminders != nil {
		for _, r := range ev.Reminders.Overrides {
			if r.Method == "popup" {
				out.ReminderMinutes = int(r.Minutes)
				break
			}
		}
	}
	return out
}

func parseEventTime(dt *gcal.EventDateTime) (t time.Time, allDay bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, _ = time.Parse(time.RFC3339, dt.DateTime)
		return t, false
	}
	t, _ = time.Parse(dateLayout, dt.Date)
	return t, true
}
