//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/notegraph/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			note_id UNINDEXED,
			title,
			content,
			tags,
			tokenize = 'trigram'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, id int64, title, content string, tags []string) error {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE note_id = ?`, id)
	_, err := tx.Exec(`INSERT INTO notes_fts (note_id, title, content, tags) VALUES (?, ?, ?, ?)`,
		id, title, content, strings.Join(tags, " "))
	if err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, id int64) {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE note_id = ?`, id)
}

// SearchNotes matches term as a literal, case-insensitive substring through
// the trigram FTS5 index. Terms shorter than three characters fall back to
// LIKE, which trigram cannot serve.
func (db *DB) SearchNotes(ctx context.Context, userID int64, term string, skip, limit int) ([]models.Note, error) {
	if limit <= 0 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}
	if len([]rune(term)) < 3 {
		return db.searchLike(ctx, userID, term, skip, limit)
	}
	quoted := `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+noteColumns+` FROM notes
		WHERE user_id = ? AND id IN (SELECT note_id FROM notes_fts WHERE notes_fts MATCH ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID, quoted, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return collectNotes(rows)
}
