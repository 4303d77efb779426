//go:build !sqlite_fts5

package store

import (
	"context"
	"database/sql"

	"github.com/starford/notegraph/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses a LIKE substring match on the notes table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ int64, _, _ string, _ []string) error {
	return nil
}

func ftsDelete(_ *sql.Tx, _ int64) {}

// SearchNotes returns the user's notes whose title or content contains
// term, compared literally and without regard to case.
func (db *DB) SearchNotes(ctx context.Context, userID int64, term string, skip, limit int) ([]models.Note, error) {
	if limit <= 0 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}
	return db.searchLike(ctx, userID, term, skip, limit)
}
