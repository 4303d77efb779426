package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
)

// SaveOAuthToken upserts the user's credential for t.Provider.
// An empty refresh token keeps the one already stored, since Google only
// returns it on the first consent.
func (db *DB) SaveOAuthToken(ctx context.Context, t models.OAuthToken) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO oauth_tokens (user_id, provider, access_token, refresh_token, token_type, expiry, scope, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider) DO UPDATE SET
			access_token  = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token = '' THEN oauth_tokens.refresh_token ELSE excluded.refresh_token END,
			token_type    = excluded.token_type,
			expiry        = excluded.expiry,
			scope         = CASE WHEN excluded.scope = '' THEN oauth_tokens.scope ELSE excluded.scope END,
			updated_at    = excluded.updated_at
	`, t.UserID, t.Provider, t.AccessToken, t.RefreshToken, t.TokenType, t.Expiry.UTC(), t.Scope, db.now())
	if err != nil {
		return fmt.Errorf("store: save oauth token: %w", err)
	}
	return nil
}

// GetOAuthToken returns the user's credential for provider.
func (db *DB) GetOAuthToken(ctx context.Context, userID int64, provider string) (*models.OAuthToken, error) {
	var (
		t      models.OAuthToken
		expiry sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT user_id, provider, access_token, refresh_token, token_type, expiry, scope, updated_at
		FROM oauth_tokens WHERE user_id = ? AND provider = ?
	`, userID, provider).Scan(&t.UserID, &t.Provider, &t.AccessToken, &t.RefreshToken, &t.TokenType, &expiry, &t.Scope, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: %s token for user %d: %w", provider, userID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get oauth token: %w", err)
	}
	if expiry.Valid {
		t.Expiry = expiry.Time
	}
	return &t, nil
}

// DeleteOAuthToken drops the credential and the cached Google profile fields.
func (db *DB) DeleteOAuthToken(ctx context.Context, userID int64, provider string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE user_id = ? AND provider = ?`, userID, provider); err != nil {
		return fmt.Errorf("store: delete oauth token: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET google_id = '', google_name = '', google_picture = '' WHERE id = ?
	`, userID); err != nil {
		return fmt.Errorf("store: clear google profile: %w", err)
	}
	return tx.Commit()
}

// UsersWithOAuthToken lists user ids holding a credential for provider.
func (db *DB) UsersWithOAuthToken(ctx context.Context, provider string) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT user_id FROM oauth_tokens WHERE provider = ? ORDER BY user_id`, provider)
	if err != nil {
		return nil, fmt.Errorf("store: users with token: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CreateRefreshToken stores a new session refresh credential and deactivates
// every other active one of the user.
func (db *DB) CreateRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `UPDATE refresh_tokens SET is_active = 0 WHERE user_id = ? AND is_active = 1`, userID); err != nil {
		return fmt.Errorf("store: deactivate refresh tokens: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at, is_active, created_at) VALUES (?, ?, ?, 1, ?)
	`, userID, tokenHash, expiresAt.UTC(), db.now()); err != nil {
		return fmt.Errorf("store: insert refresh token: %w", err)
	}
	return tx.Commit()
}

// ActiveRefreshToken returns the token with tokenHash if it is active and unexpired.
func (db *DB) ActiveRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var (
		t      models.RefreshToken
		active int
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, is_active, created_at
		FROM refresh_tokens WHERE token_hash = ?
	`, tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &active, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: refresh token: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get refresh token: %w", err)
	}
	t.Active = active != 0
	if !t.Active || !t.ExpiresAt.After(db.now()) {
		return nil, fmt.Errorf("store: refresh token inactive: %w", apperr.ErrNotFound)
	}
	return &t, nil
}

// DeactivateRefreshTokens revokes every session refresh credential of the user.
func (db *DB) DeactivateRefreshTokens(ctx context.Context, userID int64) error {
	if _, err := db.conn.ExecContext(ctx, `UPDATE refresh_tokens SET is_active = 0 WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("store: deactivate refresh tokens: %w", err)
	}
	return nil
}

// ActiveRefreshTokenCount is used by tests and diagnostics.
func (db *DB) ActiveRefreshTokenCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM refresh_tokens WHERE user_id = ? AND is_active = 1`, userID).Scan(&n)
	return n, err
}
