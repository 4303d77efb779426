package noteservice

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/starford/notegraph/internal/analysis"
	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/calendar"
	"github.com/starford/notegraph/internal/graph"
	"github.com/starford/notegraph/internal/heuristics"
	"github.com/starford/notegraph/internal/jobs"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/store"
)

// Publisher receives note change notifications.
type Publisher interface {
	Publish(userID int64, eventType string, data any)
	PublishNoteEvent(userID int64, kind string, noteID int64)
}

type nopPublisher struct{}

func (nopPublisher) Publish(int64, string, any)            {}
func (nopPublisher) PublishNoteEvent(int64, string, int64) {}

// Note event kinds.
const (
	EventCreated  = "created"
	EventUpdated  = "updated"
	EventDeleted  = "deleted"
	EventAnalyzed = "analyzed"
)

// Service coordinates the store, the analysis pipeline and the side effects
// of note changes (calendar events, graph mirror, notifications).
type Service struct {
	db       *store.DB
	analyzer *analysis.Analyzer
	calendar *calendar.Agent
	events   Publisher
	graph    graph.Mirror
	logger   *slog.Logger
	// queue is set by RegisterJobs.
	queue Scheduler
}

// Option configures a Service.
type Option func(*Service)

// WithCalendar enables calendar side effects.
func WithCalendar(a *calendar.Agent) Option {
	return func(s *Service) { s.calendar = a }
}

// WithPublisher sets the notification sink.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithGraph sets the graph mirror.
func WithGraph(g graph.Mirror) Option {
	return func(s *Service) {
		if g != nil {
			s.graph = g
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a note service.
func NewService(db *store.DB, analyzer *analysis.Analyzer, opts ...Option) *Service {
	s := &Service{
		db:       db,
		analyzer: analyzer,
		events:   nopPublisher{},
		graph:    graph.Noop{},
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Analyzer returns the analysis pipeline.
func (s *Service) Analyzer() *analysis.Analyzer { return s.analyzer }

// Calendar returns the calendar agent, nil when calendar integration is off.
func (s *Service) Calendar() *calendar.Agent { return s.calendar }

// Store returns the underlying store.
func (s *Service) Store() *store.DB { return s.db }

// Create persists a note without analysis. An empty title is generated from
// the content in the content's language.
func (s *Service) Create(ctx context.Context, userID int64, title, content string) (*models.Note, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validation("content is required")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = s.GenerateTitle(ctx, content)
	}
	note, err := s.db.CreateNote(ctx, models.Note{
		UserID:     userID,
		Title:      title,
		Content:    content,
		Importance: models.DefaultImportance,
	})
	if err != nil {
		return nil, err
	}
	s.mirrorNote(ctx, *note)
	s.events.PublishNoteEvent(userID, EventCreated, note.ID)
	return note, nil
}

// GenerateTitle returns a title for content, never empty.
func (s *Service) GenerateTitle(ctx context.Context, content string) string {
	lang := s.analyzer.Language(ctx, content).Value
	if t := strings.TrimSpace(s.analyzer.Title(ctx, content, lang).Value); t != "" {
		return t
	}
	return heuristics.DefaultTitle(lang)
}

// CreateNote persists a note and runs the full pipeline on it: analysis,
// automatic connections and calendar events.
func (s *Service) CreateNote(ctx context.Context, userID int64, title, content string) (*models.Note, error) {
	note, err := s.Create(ctx, userID, title, content)
	if err != nil {
		return nil, err
	}
	note, _, err = s.analyze(ctx, *note)
	if err != nil {
		return nil, err
	}
	if _, err := s.AutoConnect(ctx, *note); err != nil {
		s.logger.Error("auto connect failed", slog.Int64("note_id", note.ID), slog.String("error", err.Error()))
	}
	s.syncCalendar(ctx, *note, false)
	return note, nil
}

// Get returns the user's note.
func (s *Service) Get(ctx context.Context, userID, id int64) (*models.Note, error) {
	return s.db.GetNote(ctx, userID, id)
}

// List returns a page of the user's notes, optionally filtered by a search term.
func (s *Service) List(ctx context.Context, userID int64, skip, limit int, search string) ([]models.Note, error) {
	if search = strings.TrimSpace(search); search != "" {
		return s.db.SearchNotes(ctx, userID, search, skip, limit)
	}
	return s.db.ListNotes(ctx, userID, skip, limit)
}

// Recent returns the most recently updated notes; limit is clamped to 1..50.
func (s *Service) Recent(ctx context.Context, userID int64, limit int) ([]models.Note, error) {
	switch {
	case limit <= 0:
		limit = 10
	case limit > 50:
		limit = 50
	}
	return s.db.RecentNotes(ctx, userID, limit)
}

// Count returns how many notes the user owns.
func (s *Service) Count(ctx context.Context, userID int64) (int, error) {
	return s.db.CountNotes(ctx, userID)
}

// WithConnections returns the note together with every edge touching it.
func (s *Service) WithConnections(ctx context.Context, userID, id int64) (*models.NoteWithConnections, error) {
	note, err := s.db.GetNote(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	conns, err := s.db.ListConnections(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return &models.NoteWithConnections{Note: *note, Connections: conns}, nil
}

// Update applies u, re-analyzes the note and replaces its calendar events.
func (s *Service) Update(ctx context.Context, userID, id int64, u store.NoteUpdate) (*models.Note, error) {
	note, changed, err := s.edit(ctx, userID, id, u)
	if err != nil || !changed {
		return note, err
	}
	note, _, err = s.analyze(ctx, *note)
	if err != nil {
		return nil, err
	}
	s.syncCalendar(ctx, *note, true)
	return note, nil
}

// edit applies u without side effects beyond the notification. changed
// reports whether title or content were part of the update.
func (s *Service) edit(ctx context.Context, userID, id int64, u store.NoteUpdate) (*models.Note, bool, error) {
	if u.Content != nil && strings.TrimSpace(*u.Content) == "" {
		return nil, false, apperr.Validation("content must not be empty")
	}
	note, err := s.db.UpdateNote(ctx, userID, id, u)
	if err != nil {
		return nil, false, err
	}
	s.events.PublishNoteEvent(userID, EventUpdated, note.ID)
	return note, u.Title != nil || u.Content != nil, nil
}

// Delete removes the note, its connections and its calendar events. When
// an event cannot be deleted upstream the note is kept and the error
// returned. A disconnected calendar does not block the deletion.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	if _, err := s.db.GetNote(ctx, userID, id); err != nil {
		return err
	}
	if s.calendar != nil {
		_, err := s.calendar.DeleteForNote(ctx, userID, id)
		switch {
		case errors.Is(err, apperr.ErrAuthRequired):
			s.logger.Warn("calendar disconnected, dropping event links", slog.Int64("note_id", id))
		case err != nil:
			return err
		}
	}
	if err := s.db.DeleteNote(ctx, userID, id); err != nil {
		return err
	}
	if err := s.graph.DeleteNote(ctx, id); err != nil {
		s.logger.Warn("graph mirror failed", slog.Int64("note_id", id), slog.String("error", err.Error()))
	}
	s.events.PublishNoteEvent(userID, EventDeleted, id)
	return nil
}

// syncCalendar creates events for the note, replacing existing ones when
// replace is set. Calendar failures never fail the note operation.
func (s *Service) syncCalendar(ctx context.Context, note models.Note, replace bool) {
	if s.calendar == nil {
		return
	}
	err := s.exclusive(ctx, jobs.NoteCalendarKey(note.ID), func(ctx context.Context) error {
		var err error
		if replace {
			_, err = s.calendar.ResyncNote(ctx, note)
		} else {
			_, err = s.calendar.ProcessNote(ctx, note)
		}
		return err
	})
	if err == nil {
		return
	}
	if errors.Is(err, apperr.ErrAuthRequired) {
		s.logger.Warn("calendar disconnected", slog.Int64("user_id", note.UserID))
		return
	}
	s.logger.Error("calendar sync failed", slog.Int64("note_id", note.ID), slog.String("error", err.Error()))
}

func (s *Service) mirrorNote(ctx context.Context, n models.Note) {
	if err := s.graph.UpsertNote(ctx, n); err != nil {
		s.logger.Warn("graph mirror failed", slog.Int64("note_id", n.ID), slog.String("error", err.Error()))
	}
}
