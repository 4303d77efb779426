package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
)

const eventColumns = `id, note_id, user_id, event_id, calendar_id, title, description, location,
	start_time, end_time, is_all_day, reminder_minutes, created_by_ai, created_at`

func scanEventLink(s rowScanner) (*models.CalendarEventLink, error) {
	var (
		e            models.CalendarEventLink
		allDay, byAI int
	)
	if err := s.Scan(&e.ID, &e.NoteID, &e.UserID, &e.EventID, &e.CalendarID, &e.Title, &e.Description,
		&e.Location, &e.StartTime, &e.EndTime, &allDay, &e.ReminderMinutes, &byAI, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.AllDay = allDay != 0
	e.CreatedByAI = byAI != 0
	return &e, nil
}

func (db *DB) queryEventLinks(ctx context.Context, query string, args ...any) ([]models.CalendarEventLink, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query event links: %w", err)
	}
	defer rows.Close()
	var out []models.CalendarEventLink
	for rows.Next() {
		e, err := scanEventLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// CreateEventLink records an external calendar event attached to a note.
func (db *DB) CreateEventLink(ctx context.Context, e models.CalendarEventLink) (*models.CalendarEventLink, error) {
	if e.CalendarID == "" {
		e.CalendarID = "primary"
	}
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO calendar_events (note_id, user_id, event_id, calendar_id, title, description, location,
			start_time, end_time, is_all_day, reminder_minutes, created_by_ai, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.NoteID, e.UserID, e.EventID, e.CalendarID, e.Title, e.Description, e.Location,
		e.StartTime.UTC(), e.EndTime.UTC(), boolToInt(e.AllDay), e.ReminderMinutes, boolToInt(e.CreatedByAI), db.now())
	if err != nil {
		return nil, fmt.Errorf("store: insert event link: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: event link id: %w", err)
	}
	out, err := scanEventLink(db.conn.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM calendar_events WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("store: reload event link: %w", err)
	}
	return out, nil
}

// NoteEventLinks lists the calendar links of one note.
func (db *DB) NoteEventLinks(ctx context.Context, userID, noteID int64) ([]models.CalendarEventLink, error) {
	return db.queryEventLinks(ctx,
		`SELECT `+eventColumns+` FROM calendar_events WHERE user_id = ? AND note_id = ? ORDER BY start_time`,
		userID, noteID)
}

// UserEventLinks lists every calendar link of the user.
func (db *DB) UserEventLinks(ctx context.Context, userID int64) ([]models.CalendarEventLink, error) {
	return db.queryEventLinks(ctx,
		`SELECT `+eventColumns+` FROM calendar_events WHERE user_id = ? ORDER BY start_time`, userID)
}

// DeleteEventLink removes one link row. The external event is not touched.
func (db *DB) DeleteEventLink(ctx context.Context, userID, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM calendar_events WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("store: delete event link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: event link %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// GetEventLink returns a single link owned by the user.
func (db *DB) GetEventLink(ctx context.Context, userID, id int64) (*models.CalendarEventLink, error) {
	e, err := scanEventLink(db.conn.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM calendar_events WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: event link %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get event link: %w", err)
	}
	return e, nil
}
