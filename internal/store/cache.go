package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CacheGet returns the cached value for key. ok is false on a miss or when
// the entry has expired.
func (db *DB) CacheGet(ctx context.Context, key string) (value []byte, ok bool, err error) {
	var expires time.Time
	err = db.conn.QueryRowContext(ctx, `SELECT value, expires_at FROM analysis_cache WHERE key = ?`, key).
		Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: cache get: %w", err)
	}
	if !expires.After(db.now()) {
		return nil, false, nil
	}
	return value, true, nil
}

// CacheSet stores value under key for ttl, replacing any previous entry.
func (db *DB) CacheSet(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO analysis_cache (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, db.now().Add(ttl))
	if err != nil {
		return fmt.Errorf("store: cache set: %w", err)
	}
	return nil
}

// PurgeExpiredCache deletes expired cache entries and returns how many were removed.
func (db *DB) PurgeExpiredCache(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM analysis_cache WHERE expires_at <= ?`, db.now())
	if err != nil {
		return 0, fmt.Errorf("store: purge cache: %w", err)
	}
	return res.RowsAffected()
}
