package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/notegraph/internal/calendar"
	"github.com/starford/notegraph/internal/models"
)

// NotePayload addresses a single note.
type NotePayload struct {
	NoteID int64 `json:"note_id"`
}

// BatchPayload addresses several notes of one user.
type BatchPayload struct {
	NoteIDs []int64 `json:"note_ids"`
}

// CreateNotePayload is the input of a background note creation.
type CreateNotePayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdateNotePayload is the input of a background note update.
type UpdateNotePayload struct {
	NoteID  int64   `json:"note_id"`
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// SweepConfig controls the periodic sweeps. A zero interval disables a sweep.
type SweepConfig struct {
	UnprocessedInterval time.Duration
	CalendarInterval    time.Duration
	MaintenanceInterval time.Duration
	Limit               int
	RetainFinished      time.Duration
}

// SweepResult reports what one unprocessed-notes sweep enqueued.
type SweepResult struct {
	Notes int      `json:"notes"`
	Jobs  []string `json:"jobs"`
}

// AnalyzeKey is the dedup key serializing analysis of one note.
func AnalyzeKey(noteID int64) string { return fmt.Sprintf("analyze:note:%d", noteID) }

// NoteCalendarKey is the dedup key serializing the calendar events of one note.
func NoteCalendarKey(noteID int64) string { return fmt.Sprintf("calendar:note:%d", noteID) }

// DeleteKey is the dedup key of a queued note deletion.
func DeleteKey(noteID int64) string { return fmt.Sprintf("delete:note:%d", noteID) }

// CalendarKey is the dedup key of a user's calendar sync.
func CalendarKey(userID int64) string { return fmt.Sprintf("calendar:user:%d", userID) }

// InstallSweeps registers the sweep job kinds and schedules them. The
// analyze_note and sync_calendar_user handlers are expected to be
// registered by the caller.
func (q *Queue) InstallSweeps(cfg SweepConfig) {
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	if cfg.RetainFinished <= 0 {
		cfg.RetainFinished = 7 * 24 * time.Hour
	}

	q.Register(KindSweepUnprocessed, func(ctx context.Context, _ *models.Job) (any, error) {
		return q.SweepUnprocessed(ctx, cfg.Limit)
	})
	q.Register(KindSyncCalendarAll, func(ctx context.Context, _ *models.Job) (any, error) {
		n, err := q.SweepCalendars(ctx)
		return map[string]int{"users": n}, err
	})

	q.Every(KindSweepUnprocessed, cfg.UnprocessedInterval, func(ctx context.Context) error {
		_, err := q.Submit(ctx, KindSweepUnprocessed, 0, "sweep:unprocessed", struct{}{})
		return err
	})
	q.Every(KindSyncCalendarAll, cfg.CalendarInterval, func(ctx context.Context) error {
		_, err := q.Submit(ctx, KindSyncCalendarAll, 0, "sweep:calendar", struct{}{})
		return err
	})
	q.Every("maintenance", cfg.MaintenanceInterval, func(ctx context.Context) error {
		return q.Maintenance(ctx, cfg.RetainFinished)
	})
}

// SweepUnprocessed enqueues an analysis for at most limit notes that were
// never analyzed. Notes whose analysis is already queued keep that job.
func (q *Queue) SweepUnprocessed(ctx context.Context, limit int) (*SweepResult, error) {
	notes, err := q.db.UnprocessedNotes(ctx, limit)
	if err != nil {
		return nil, err
	}
	res := &SweepResult{Notes: len(notes), Jobs: []string{}}
	for _, n := range notes {
		job, err := q.Submit(ctx, KindAnalyzeNote, n.UserID, AnalyzeKey(n.ID), NotePayload{NoteID: n.ID})
		if err != nil {
			return res, err
		}
		res.Jobs = append(res.Jobs, job.ID)
	}
	if len(notes) > 0 {
		q.logger.Info("jobs: unprocessed sweep", slog.Int("notes", len(notes)))
	}
	return res, nil
}

// SweepCalendars enqueues a calendar sync for every user holding a Google credential.
func (q *Queue) SweepCalendars(ctx context.Context) (int, error) {
	users, err := q.db.UsersWithOAuthToken(ctx, calendar.ProviderGoogle)
	if err != nil {
		return 0, err
	}
	for _, id := range users {
		if _, err := q.Submit(ctx, KindSyncCalendar, id, CalendarKey(id), struct{}{}); err != nil {
			return 0, err
		}
	}
	return len(users), nil
}

// Maintenance purges expired analysis cache rows and old finished jobs.
func (q *Queue) Maintenance(ctx context.Context, retain time.Duration) error {
	cached, err := q.db.PurgeExpiredCache(ctx)
	if err != nil {
		return err
	}
	jobs, err := q.db.PurgeFinishedJobs(ctx, retain)
	if err != nil {
		return err
	}
	if cached > 0 || jobs > 0 {
		q.logger.Info("jobs: maintenance", slog.Int64("cache_rows", cached), slog.Int64("jobs", jobs))
	}
	return nil
}
