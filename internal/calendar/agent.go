package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/heuristics"
	"github.com/starford/notegraph/internal/llm"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/store"
)

// SyncResult summarizes one user's link reconciliation.
type SyncResult struct {
	UserID  int64 `json:"user_id"`
	Checked int   `json:"checked"`
	Removed int   `json:"removed"`
}

// Agent turns dated notes into calendar events and keeps the note links
// in step with the external calendar.
type Agent struct {
	db       *store.DB
	provider Provider
	llm      *llm.Client
	rules    *heuristics.Analyzer
	logger   *slog.Logger
	now      func() time.Time
}

// NewAgent creates a calendar agent.
func NewAgent(db *store.DB, provider Provider, client *llm.Client, rules *heuristics.Analyzer, logger *slog.Logger) *Agent {
	return &Agent{db: db, provider: provider, llm: client, rules: rules, logger: logger, now: time.Now}
}

// SetClock replaces the time source used to resolve relative dates.
func (a *Agent) SetClock(now func() time.Time) { a.now = now }

// Now returns the agent's current time.
func (a *Agent) Now() time.Time { return a.now() }

// Provider returns the calendar backend.
func (a *Agent) Provider() Provider { return a.provider }

// Drafts extracts events from note text. Text without both an event word and
// a time or date yields nothing. The model is asked first; when it fails or
// finds nothing the local parser produces at most one one-hour event.
func (a *Agent) Drafts(ctx context.Context, title, content string) []llm.EventDraft {
	if !a.rules.HasTemporalMarkers(content) {
		return nil
	}
	now := a.now()
	drafts, err := a.llm.ExtractEvents(ctx, content, now)
	if err == nil && len(drafts) > 0 {
		return drafts
	}
	if err != nil {
		a.logger.Warn("analysis: fallback", slog.String("aspect", "events"), slog.String("error", err.Error()))
	}

	start, ok := heuristics.ParseWhen(content, now)
	if !ok {
		return nil
	}
	if strings.TrimSpace(title) == "" {
		title = a.rules.Title(content, a.rules.DetectLanguage(content))
	}
	return []llm.EventDraft{{
		Title:           title,
		Description:     heuristics.Truncate(strings.TrimSpace(content), 500),
		Start:           start,
		End:             start.Add(time.Hour),
		ReminderMinutes: DefaultReminderMinutes,
	}}
}

// CreateEvent creates an event in the user's primary calendar.
func (a *Agent) CreateEvent(ctx context.Context, userID int64, d llm.EventDraft) (*Event, error) {
	if strings.TrimSpace(d.Title) == "" {
		return nil, apperr.Validation("event title is required")
	}
	if d.Start.IsZero() {
		return nil, apperr.Validation("event start time is required")
	}
	end := d.End
	if !end.After(d.Start) {
		end = d.Start.Add(time.Hour)
	}
	reminder := d.ReminderMinutes
	if reminder <= 0 {
		reminder = DefaultReminderMinutes
	}
	return a.provider.CreateEvent(ctx, userID, Event{
		CalendarID:      PrimaryCalendar,
		Title:           d.Title,
		Description:     d.Description,
		Location:        d.Location,
		Start:           d.Start,
		End:             end,
		AllDay:          d.AllDay,
		ReminderMinutes: reminder,
	})
}

// Link records ev as attached to a note.
func (a *Agent) Link(ctx context.Context, userID, noteID int64, ev *Event, byAI bool) (*models.CalendarEventLink, error) {
	return a.db.CreateEventLink(ctx, models.CalendarEventLink{
		NoteID:          noteID,
		UserID:          userID,
		EventID:         ev.ID,
		CalendarID:      ev.CalendarID,
		Title:           ev.Title,
		Description:     ev.Description,
		Location:        ev.Location,
		StartTime:       ev.Start,
		EndTime:         ev.End,
		AllDay:          ev.AllDay,
		ReminderMinutes: ev.ReminderMinutes,
		CreatedByAI:     byAI,
	})
}

// ProcessNote creates an event for every draft found in the note and links
// it. Users without a calendar connection are skipped.
func (a *Agent) ProcessNote(ctx context.Context, note models.Note) ([]models.CalendarEventLink, error) {
	connected, err := a.provider.Connected(ctx, note.UserID)
	if err != nil {
		return nil, err
	}
	links := []models.CalendarEventLink{}
	if !connected {
		return links, nil
	}
	for _, d := range a.Drafts(ctx, note.Title, note.Content) {
		d.Description = fmt.Sprintf("Created from note: %s\n\n%s", note.Title, d.Description)
		ev, err := a.CreateEvent(ctx, note.UserID, d)
		if errors.Is(err, apperr.ErrAuthRequired) {
			return links, err
		}
		if err != nil {
			a.logger.Error("create event failed",
				slog.Int64("note_id", note.ID), slog.String("error", err.Error()))
			continue
		}
		link, err := a.Link(ctx, note.UserID, note.ID, ev, true)
		if err != nil {
			return links, err
		}
		links = append(links, *link)
	}
	return links, nil
}

// DeleteForNote removes the note's events from the calendar and drops the
// links. Events already gone upstream are unlinked as well. A link whose
// event could not be deleted is kept and the first such error is returned,
// so a retry can finish the cleanup.
func (a *Agent) DeleteForNote(ctx context.Context, userID, noteID int64) (int, error) {
	links, err := a.db.NoteEventLinks(ctx, userID, noteID)
	if err != nil {
		return 0, err
	}
	var (
		removed int
		failed  error
	)
	for _, l := range links {
		err := a.provider.DeleteEvent(ctx, userID, l.CalendarID, l.EventID)
		if errors.Is(err, apperr.ErrAuthRequired) {
			return removed, err
		}
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			a.logger.Warn("delete event failed",
				slog.String("event_id", l.EventID), slog.String("error", err.Error()))
			if failed == nil {
				failed = fmt.Errorf("calendar: delete event %s: %w", l.EventID, err)
			}
			continue
		}
		if err := a.db.DeleteEventLink(ctx, userID, l.ID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return removed, err
		}
		removed++
	}
	return removed, failed
}

// ResyncNote replaces the note's events after a content change.
func (a *Agent) ResyncNote(ctx context.Context, note models.Note) ([]models.CalendarEventLink, error) {
	if _, err := a.DeleteForNote(ctx, note.UserID, note.ID); err != nil {
		return nil, err
	}
	return a.ProcessNote(ctx, note)
}

// SyncUser drops links whose events were deleted or cancelled upstream.
func (a *Agent) SyncUser(ctx context.Context, userID int64) (*SyncResult, error) {
	links, err := a.db.UserEventLinks(ctx, userID)
	if err != nil {
		return nil, err
	}
	res := &SyncResult{UserID: userID}
	for _, l := range links {
		res.Checked++
		ev, err := a.provider.GetEvent(ctx, userID, l.CalendarID, l.EventID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
		case err != nil:
			return res, err
		case ev.Status != "cancelled":
			continue
		}
		if err := a.db.DeleteEventLink(ctx, userID, l.ID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return res, err
		}
		res.Removed++
	}
	return res, nil
}

// Upcoming lists the user's events starting within the given window from
// now. A non-positive window means 24 hours.
func (a *Agent) Upcoming(ctx context.Context, userID int64, within time.Duration, limit int) ([]Event, error) {
	if within <= 0 {
		within = 24 * time.Hour
	}
	now := a.now()
	return a.provider.ListEvents(ctx, userID, PrimaryCalendar, now, now.Add(within), limit)
}
