package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/notegraph/internal/models"
)

// driverName is go-sqlite3 with a Unicode-aware fold() function. The
// built-in lower() and LIKE only fold ASCII letters.
const driverName = "sqlite3_notegraph"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(c *sqlite3.SQLiteConn) error {
			return c.RegisterFunc("fold", strings.ToLower, true)
		},
	})
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns term into a literal, case-folded substring pattern
// for LIKE ... ESCAPE '\'.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}

// searchLike matches term literally against the folded title and content.
func (db *DB) searchLike(ctx context.Context, userID int64, term string, skip, limit int) ([]models.Note, error) {
	like := likePattern(term)
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+noteColumns+` FROM notes
		WHERE user_id = ? AND (fold(title) LIKE ? ESCAPE '\' OR fold(content) LIKE ? ESCAPE '\')
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID, like, like, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return collectNotes(rows)
}
