package noteservice

import (
	"context"
	"log/slog"

	"github.com/starford/notegraph/internal/models"
)

// Connect creates the edge source->target. Both notes must belong to userID.
func (s *Service) Connect(ctx context.Context, userID, sourceID, targetID int64, relation string) (*models.Connection, error) {
	c, err := s.db.CreateConnection(ctx, userID, sourceID, targetID, relation)
	if err != nil {
		return nil, err
	}
	s.mirrorConnection(ctx, *c)
	s.events.PublishNoteEvent(userID, EventUpdated, sourceID)
	return c, nil
}

// Connections lists every edge touching the note.
func (s *Service) Connections(ctx context.Context, userID, noteID int64) ([]models.Connection, error) {
	return s.db.ListConnections(ctx, userID, noteID)
}

// ConnectedNotes lists the notes on the other end of the note's edges.
func (s *Service) ConnectedNotes(ctx context.Context, userID, noteID int64) ([]models.Note, error) {
	return s.db.ConnectedNotes(ctx, userID, noteID)
}

// Disconnect deletes an edge owned by userID.
func (s *Service) Disconnect(ctx context.Context, userID, connectionID int64) error {
	c, err := s.db.DeleteConnection(ctx, userID, connectionID)
	if err != nil {
		return err
	}
	if err := s.graph.DeleteConnection(ctx, connectionID); err != nil {
		s.logger.Warn("graph mirror failed", slog.Int64("connection_id", connectionID), slog.String("error", err.Error()))
	}
	s.events.PublishNoteEvent(userID, EventUpdated, c.SourceID)
	return nil
}

func (s *Service) mirrorConnection(ctx context.Context, c models.Connection) {
	if err := s.graph.UpsertConnection(ctx, c); err != nil {
		s.logger.Warn("graph mirror failed", slog.Int64("connection_id", c.ID), slog.String("error", err.Error()))
	}
}
