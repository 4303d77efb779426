// Package calendar connects users to Google Calendar: the OAuth credential
// lifecycle, event CRUD and the agent that turns dated notes into events.
package calendar

import (
	"context"
	"time"
)

// PrimaryCalendar is the calendar id used when none is given.
const PrimaryCalendar = "primary"

// DefaultReminderMinutes is the popup lead time used when none is given.
const DefaultReminderMinutes = 30

// Event is a calendar event as the rest of the service sees it.
type Event struct {
	ID              string    `json:"id"`
	CalendarID      string    `json:"calendar_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Location        string    `json:"location,omitempty"`
	Start           time.Time `json:"start_time"`
	End             time.Time `json:"end_time"`
	AllDay          bool      `json:"is_all_day"`
	ReminderMinutes int       `json:"reminder_minutes"`
	Status          string    `json:"status,omitempty"`
	Link            string    `json:"html_link,omitempty"`
}

// Calendar is one entry of the user's calendar list.
type Calendar struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Primary  bool   `json:"primary"`
	TimeZone string `json:"time_zone,omitempty"`
}

// Provider performs event CRUD on behalf of a user. Implementations return
// apperr.ErrAuthRequired when the user has no live credential and
// apperr.ErrNotFound for missing or deleted events.
type Provider interface {
	Connected(ctx context.Context, userID int64) (bool, error)
	CreateEvent(ctx context.Context, userID int64, e Event) (*Event, error)
	UpdateEvent(ctx context.Context, userID int64, e Event) (*Event, error)
	DeleteEvent(ctx context.Context, userID int64, calendarID, eventID string) error
	GetEvent(ctx context.Context, userID int64, calendarID, eventID string) (*Event, error)
	ListEvents(ctx context.Context, userID int64, calendarID string, from, to time.Time, limit int) ([]Event, error)
	ListCalendars(ctx context.Context, userID int64) ([]Calendar, error)
}
