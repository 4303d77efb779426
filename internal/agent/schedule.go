package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/calendar"
	"github.com/starford/notegraph/internal/llm"
)

// Scheduled is an event created on request together with its reminder note.
type Scheduled struct {
	Event   *calendar.Event `json:"event"`
	NoteID  int64           `json:"note_id"`
	Message string          `json:"message"`
}

// Schedule creates an explicitly described event and records it in a
// reminder note linked to the event. Unlike the Reminder workflow it fails
// when the calendar is not connected.
func (a *Agent) Schedule(ctx context.Context, userID int64, d llm.EventDraft, lang string) (*Scheduled, error) {
	if a.calendar == nil {
		return nil, fmt.Errorf("agent: schedule: %w", apperr.ErrAuthRequired)
	}
	ev, err := a.calendar.CreateEvent(ctx, userID, d)
	if err != nil {
		return nil, err
	}
	m := msgs(lang)
	note, err := a.notes.Create(ctx, userID,
		fmt.Sprintf(m.reminderTitle, ev.Title),
		fmt.Sprintf(m.reminderBody, ev.Start.Format(time.RFC3339), d.Description, ev.ID))
	if err != nil {
		return nil, err
	}
	if _, err := a.calendar.Link(ctx, userID, note.ID, ev, false); err != nil {
		return nil, err
	}
	a.scheduleAnalysis(ctx, userID, note.ID)
	return &Scheduled{Event: ev, NoteID: note.ID, Message: m.eventCreated}, nil
}
