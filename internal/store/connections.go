package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
)

// CreateConnection adds the directed edge source->target.
// Both notes must belong to userID; a second edge for the same pair is
// rejected with ErrAlreadyExists and leaves the first untouched.
func (db *DB) CreateConnection(ctx context.Context, userID, sourceID, targetID int64, relation string) (*models.Connection, error) {
	if sourceID == targetID {
		return nil, apperr.Validation("a note cannot be connected to itself")
	}
	if relation == "" {
		relation = models.RelationRelated
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var owned int
	if err := tx.QueryRowContext(ctx, `
		SELECT count(*) FROM notes WHERE user_id = ? AND id IN (?, ?)
	`, userID, sourceID, targetID).Scan(&owned); err != nil {
		return nil, fmt.Errorf("store: check endpoints: %w", err)
	}
	if owned != 2 {
		return nil, fmt.Errorf("store: connection endpoints %d->%d: %w", sourceID, targetID, apperr.ErrNotFound)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO connections (source_id, target_id, relation, created_at)
		VALUES (?, ?, ?, ?)
	`, sourceID, targetID, relation, db.now())
	if err != nil {
		return nil, fmt.Errorf("store: insert connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("store: connection %d->%d: %w", sourceID, targetID, apperr.ErrAlreadyExists)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: connection id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit connection: %w", err)
	}
	return db.getConnection(ctx, id)
}

func (db *DB) getConnection(ctx context.Context, id int64) (*models.Connection, error) {
	var c models.Connection
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, source_id, target_id, relation, created_at FROM connections WHERE id = ?
	`, id).Scan(&c.ID, &c.SourceID, &c.TargetID, &c.Relation, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: connection %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get connection: %w", err)
	}
	return &c, nil
}

// ListConnections returns every edge where the note is source or target.
func (db *DB) ListConnections(ctx context.Context, userID, noteID int64) ([]models.Connection, error) {
	if _, err := db.GetNote(ctx, userID, noteID); err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, source_id, target_id, relation, created_at
		FROM connections
		WHERE source_id = ? OR target_id = ?
		ORDER BY id
	`, noteID, noteID)
	if err != nil {
		return nil, fmt.Errorf("store: list connections: %w", err)
	}
	defer rows.Close()

	out := []models.Connection{}
	for rows.Next() {
		var c models.Connection
		if err := rows.Scan(&c.ID, &c.SourceID, &c.TargetID, &c.Relation, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ConnectedNotes returns the notes on the other end of the note's edges.
func (db *DB) ConnectedNotes(ctx context.Context, userID, noteID int64) ([]models.Note, error) {
	if _, err := db.GetNote(ctx, userID, noteID); err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+noteColumns+` FROM notes
		WHERE user_id = ? AND id IN (
			SELECT target_id FROM connections WHERE source_id = ?
			UNION
			SELECT source_id FROM connections WHERE target_id = ?
		)
		ORDER BY id
	`, userID, noteID, noteID)
	if err != nil {
		return nil, fmt.Errorf("store: connected notes: %w", err)
	}
	return collectNotes(rows)
}

// DeleteConnection removes an edge whose source note belongs to userID.
func (db *DB) DeleteConnection(ctx context.Context, userID, connectionID int64) (*models.Connection, error) {
	c, err := db.getConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM connections
		WHERE id = ? AND source_id IN (SELECT id FROM notes WHERE user_id = ?)
	`, connectionID, userID)
	if err != nil {
		return nil, fmt.Errorf("store: delete connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("store: connection %d: %w", connectionID, apperr.ErrNotFound)
	}
	return c, nil
}
