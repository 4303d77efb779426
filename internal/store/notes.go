package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
)

const noteColumns = `id, user_id, title, content, category, importance, tags, summary,
	ai_processed, ai_processed_at, created_at, updated_at`

// NoteUpdate carries the user-editable fields; nil means unchanged.
type NoteUpdate struct {
	Title   *string
	Content *string
}

// AnalysisFields are the note columns owned by the analysis pipeline.
type AnalysisFields struct {
	Category   string
	Importance int
	Tags       []string
	Summary    string
}

// CategoryCount is one row of the category read model.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(s rowScanner) (*models.Note, error) {
	var (
		n           models.Note
		processed   int
		processedAt sql.NullTime
	)
	if err := s.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.Category, &n.Importance,
		&n.Tags, &n.Summary, &processed, &processedAt, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.AIProcessed = processed != 0
	if processedAt.Valid {
		t := processedAt.Time
		n.AIProcessedAt = &t
	}
	if n.Importance == 0 {
		n.Importance = models.DefaultImportance
	}
	return &n, nil
}

func collectNotes(rows *sql.Rows) ([]models.Note, error) {
	defer rows.Close()
	out := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// CreateNote inserts n for its owner and returns the stored row.
func (db *DB) CreateNote(ctx context.Context, n models.Note) (*models.Note, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	now := db.now()
	if n.Importance == 0 {
		n.Importance = models.DefaultImportance
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO notes (user_id, title, content, category, importance, tags, summary, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.UserID, n.Title, n.Content, n.Category, models.ClampImportance(n.Importance), n.Tags, n.Summary, now, now)
	if err != nil {
		return nil, fmt.Errorf("store: insert note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: note id: %w", err)
	}
	if err := ftsUpsert(tx, id, n.Title, n.Content, n.Tags); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit note: %w", err)
	}
	return db.GetNote(ctx, n.UserID, id)
}

// GetNote returns the note if it exists and belongs to userID.
func (db *DB) GetNote(ctx context.Context, userID, id int64) (*models.Note, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ? AND user_id = ?`, id, userID)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: note %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get note: %w", err)
	}
	return n, nil
}

// ListNotes returns a page of the user's notes, newest first.
func (db *DB) ListNotes(ctx context.Context, userID int64, skip, limit int) ([]models.Note, error) {
	if limit <= 0 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+noteColumns+` FROM notes
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("store: list notes: %w", err)
	}
	return collectNotes(rows)
}

// RecentNotes returns the user's most recently updated notes.
func (db *DB) RecentNotes(ctx context.Context, userID int64, limit int) ([]models.Note, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+noteColumns+` FROM notes
		WHERE user_id = ?
		ORDER BY updated_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent notes: %w", err)
	}
	return collectNotes(rows)
}

// CountNotes returns how many notes the user owns.
func (db *DB) CountNotes(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM notes WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count notes: %w", err)
	}
	return n, nil
}

// NotesByIDs returns the subset of ids that exist and belong to userID.
func (db *DB) NotesByIDs(ctx context.Context, userID int64, ids []int64) ([]models.Note, error) {
	if len(ids) == 0 {
		return []models.Note{}, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+noteColumns+` FROM notes
		WHERE user_id = ? AND id IN (`+placeholders+`)
		ORDER BY id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: notes by ids: %w", err)
	}
	return collectNotes(rows)
}

// UpdateNote applies u to the user's note and returns the new row.
func (db *DB) UpdateNote(ctx context.Context, userID, id int64, u NoteUpdate) (*models.Note, error) {
	current, err := db.GetNote(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if u.Title != nil {
		current.Title = *u.Title
	}
	if u.Content != nil {
		current.Content = *u.Content
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		UPDATE notes SET title = ?, content = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, current.Title, current.Content, db.now(), id, userID); err != nil {
		return nil, fmt.Errorf("store: update note: %w", err)
	}
	if err := ftsUpsert(tx, id, current.Title, current.Content, current.Tags); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit update: %w", err)
	}
	return db.GetNote(ctx, userID, id)
}

// SaveAnalysis persists analysis output and marks the note processed.
func (db *DB) SaveAnalysis(ctx context.Context, userID, id int64, a AnalysisFields) error {
	now := db.now()
	res, err := db.conn.ExecContext(ctx, `
		UPDATE notes SET category = ?, importance = ?, tags = ?, summary = ?,
			ai_processed = 1, ai_processed_at = ?
		WHERE id = ? AND user_id = ?
	`, a.Category, models.ClampImportance(a.Importance), models.Tags(a.Tags), a.Summary, now, id, userID)
	if err != nil {
		return fmt.Errorf("store: save analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: note %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// DeleteNote removes the note, every connection touching it and its calendar links.
func (db *DB) DeleteNote(ctx context.Context, userID, id int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM notes WHERE id = ? AND user_id = ?`, id, userID).Scan(&exists); err != nil {
		return fmt.Errorf("store: check note: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("store: note %d: %w", id, apperr.ErrNotFound)
	}

	ftsDelete(tx, id)
	if _, err := tx.ExecContext(ctx, `DELETE FROM connections WHERE source_id = ? OR target_id = ?`, id, id); err != nil {
		return fmt.Errorf("store: delete connections: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM calendar_events WHERE note_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete calendar links: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND user_id = ?`, id, userID); err != nil {
		return fmt.Errorf("store: delete note: %w", err)
	}
	return tx.Commit()
}

// NotesByCategory lists the user's notes in category, newest first.
// The reserved General category also matches notes with no category.
func (db *DB) NotesByCategory(ctx context.Context, userID int64, category string) ([]models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE user_id = ? AND category = ? ORDER BY created_at DESC, id DESC`
	if category == models.GeneralCategory {
		query = `SELECT ` + noteColumns + ` FROM notes WHERE user_id = ? AND (category = '' OR category = ?) ORDER BY created_at DESC, id DESC`
	}
	rows, err := db.conn.QueryContext(ctx, query, userID, category)
	if err != nil {
		return nil, fmt.Errorf("store: notes by category: %w", err)
	}
	return collectNotes(rows)
}

// CategoryCounts returns per-category note counts sorted by count descending.
func (db *DB) CategoryCounts(ctx context.Context, userID int64) ([]CategoryCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT CASE WHEN trim(category) = '' THEN ? ELSE trim(category) END AS cat, count(*)
		FROM notes WHERE user_id = ?
		GROUP BY cat
	`, models.GeneralCategory, userID)
	if err != nil {
		return nil, fmt.Errorf("store: category counts: %w", err)
	}
	defer rows.Close()

	out := []CategoryCount{}
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out, rows.Err()
}

// UnprocessedNotes returns up to limit notes across all users that were never analyzed.
func (db *DB) UnprocessedNotes(ctx context.Context, limit int) ([]models.Note, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+noteColumns+` FROM notes
		WHERE ai_processed = 0
		ORDER BY id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: unprocessed notes: %w", err)
	}
	return collectNotes(rows)
}
