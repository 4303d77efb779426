package noteservice

import (
	"context"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
)

// AnalyzeCalendar runs event detection on the note and links new events.
func (s *Service) AnalyzeCalendar(ctx context.Context, userID, id int64) ([]models.CalendarEventLink, error) {
	if s.calendar == nil {
		return nil, apperr.ErrAuthRequired
	}
	note, err := s.db.GetNote(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.calendar.ProcessNote(ctx, *note)
}

// CalendarEvents lists the events linked to the note.
func (s *Service) CalendarEvents(ctx context.Context, userID, id int64) ([]models.CalendarEventLink, error) {
	if _, err := s.db.GetNote(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.db.NoteEventLinks(ctx, userID, id)
}
