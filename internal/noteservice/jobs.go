package noteservice

import (
	"context"
	"errors"
	"log/slog"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/jobs"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/store"
)

// Scheduler runs background work. *jobs.Queue implements it.
type Scheduler interface {
	Submit(ctx context.Context, kind string, userID int64, dedupKey string, payload any) (*models.Job, error)
	// Exclusive runs fn while no job holding key runs.
	Exclusive(ctx context.Context, key string, fn func(context.Context) error) error
}

// RegisterJobs binds the note job kinds to this service. From then on
// follow-up analysis is queued on q, and analysis of one note never
// overlaps with another analysis of it.
func (s *Service) RegisterJobs(q *jobs.Queue) {
	s.queue = q

	q.Register(jobs.KindCreateNote, func(ctx context.Context, job *models.Job) (any, error) {
		p, err := jobs.Decode[jobs.CreateNotePayload](job)
		if err != nil {
			return nil, err
		}
		note, err := s.Create(ctx, job.UserID, p.Title, p.Content)
		if err != nil {
			return nil, err
		}
		// The row exists now, so nothing below may fail the job: a retry
		// would insert the note a second time.
		if _, err := s.AutoConnect(ctx, *note); err != nil {
			s.logger.Error("auto connect failed", slog.Int64("note_id", note.ID), slog.String("error", err.Error()))
		}
		s.followUp(ctx, *note)
		return note, nil
	})
	q.Register(jobs.KindUpdateNote, func(ctx context.Context, job *models.Job) (any, error) {
		p, err := jobs.Decode[jobs.UpdateNotePayload](job)
		if err != nil {
			return nil, err
		}
		note, changed, err := s.edit(ctx, job.UserID, p.NoteID, store.NoteUpdate{Title: p.Title, Content: p.Content})
		if err != nil {
			return nil, err
		}
		if changed {
			s.followUp(ctx, *note)
		}
		return note, nil
	})
	q.Register(jobs.KindDeleteNote, func(ctx context.Context, job *models.Job) (any, error) {
		p, err := jobs.Decode[jobs.NotePayload](job)
		if err != nil {
			return nil, err
		}
		if err := s.Delete(ctx, job.UserID, p.NoteID); err != nil {
			return nil, err
		}
		return map[string]int64{"deleted": p.NoteID}, nil
	})
	q.Register(jobs.KindAnalyzeNote, func(ctx context.Context, job *models.Job) (any, error) {
		p, err := jobs.Decode[jobs.NotePayload](job)
		if err != nil {
			return nil, err
		}
		return s.Analyze(ctx, job.UserID, p.NoteID)
	})
	q.Register(jobs.KindAnalyzeBatch, func(ctx context.Context, job *models.Job) (any, error) {
		p, err := jobs.Decode[jobs.BatchPayload](job)
		if err != nil {
			return nil, err
		}
		return s.AnalyzeBatch(ctx, job.UserID, p.NoteIDs)
	})
	q.Register(jobs.KindSyncNoteCalendar, func(ctx context.Context, job *models.Job) (any, error) {
		p, err := jobs.Decode[jobs.NotePayload](job)
		if err != nil {
			return nil, err
		}
		if s.calendar == nil {
			return nil, apperr.Validation("calendar integration is disabled")
		}
		note, err := s.db.GetNote(ctx, job.UserID, p.NoteID)
		if err != nil {
			return nil, err
		}
		links, err := s.calendar.ResyncNote(ctx, *note)
		if errors.Is(err, apperr.ErrAuthRequired) {
			s.logger.Warn("calendar disconnected", slog.Int64("user_id", note.UserID))
			return map[string]int{"events": 0}, nil
		}
		if err != nil {
			return nil, err
		}
		return map[string]int{"events": len(links)}, nil
	})
	q.Register(jobs.KindSyncCalendar, func(ctx context.Context, job *models.Job) (any, error) {
		if s.calendar == nil {
			return nil, apperr.Validation("calendar integration is disabled")
		}
		return s.calendar.SyncUser(ctx, job.UserID)
	})
}

// ScheduleAnalysis queues analysis of the user's note under its per-note
// key, so requests for a note whose analysis has not started yet share one
// job. Without a queue the note is analyzed inline and no job is returned.
func (s *Service) ScheduleAnalysis(ctx context.Context, userID, id int64) (*models.Job, error) {
	if s.queue == nil {
		_, err := s.Analyze(ctx, userID, id)
		return nil, err
	}
	if _, err := s.db.GetNote(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.queue.Submit(ctx, jobs.KindAnalyzeNote, userID, jobs.AnalyzeKey(id), jobs.NotePayload{NoteID: id})
}

// ScheduleDelete queues deletion of the user's note.
func (s *Service) ScheduleDelete(ctx context.Context, userID, id int64) (*models.Job, error) {
	if s.queue == nil {
		return nil, apperr.Validation("background jobs are disabled")
	}
	if _, err := s.db.GetNote(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.queue.Submit(ctx, jobs.KindDeleteNote, userID, jobs.DeleteKey(id), jobs.NotePayload{NoteID: id})
}

// followUp queues analysis and calendar reconciliation of a note a job just
// wrote. Failures are only logged; the unprocessed sweep picks up notes
// whose analysis was never queued.
func (s *Service) followUp(ctx context.Context, note models.Note) {
	// The attempt may have run out of time; the note is written regardless.
	ctx = context.WithoutCancel(ctx)
	if _, err := s.ScheduleAnalysis(ctx, note.UserID, note.ID); err != nil {
		s.logger.Error("schedule analysis failed", slog.Int64("note_id", note.ID), slog.String("error", err.Error()))
	}
	if s.calendar == nil {
		return
	}
	if _, err := s.queue.Submit(ctx, jobs.KindSyncNoteCalendar, note.UserID,
		jobs.NoteCalendarKey(note.ID), jobs.NotePayload{NoteID: note.ID}); err != nil {
		s.logger.Error("schedule calendar sync failed", slog.Int64("note_id", note.ID), slog.String("error", err.Error()))
	}
}

// exclusive runs fn under key when the service has a queue.
func (s *Service) exclusive(ctx context.Context, key string, fn func(context.Context) error) error {
	if s.queue == nil {
		return fn(ctx)
	}
	return s.queue.Exclusive(ctx, key, fn)
}
