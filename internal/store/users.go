package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
)

const userColumns = `id, email, username, hashed_password, is_active, google_id, google_name, google_picture, created_at`

func scanUser(s rowScanner) (*models.User, error) {
	var (
		u      models.User
		active int
	)
	if err := s.Scan(&u.ID, &u.Email, &u.Username, &u.HashedPassword, &active,
		&u.GoogleID, &u.GoogleName, &u.GooglePicture, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.IsActive = active != 0
	return &u, nil
}

// CreateUser registers a new account. Emails are unique.
func (db *DB) CreateUser(ctx context.Context, email, username, hashedPassword string) (*models.User, error) {
	if _, err := db.GetUserByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("store: user %s: %w", email, apperr.ErrAlreadyExists)
	}
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (email, username, hashed_password, created_at) VALUES (?, ?, ?, ?)
	`, email, username, hashedPassword, db.now())
	if err != nil {
		return nil, fmt.Errorf("store: insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: user id: %w", err)
	}
	return db.GetUser(ctx, id)
}

// EnsureUser returns the account for email, creating it without a password if missing.
func (db *DB) EnsureUser(ctx context.Context, email, username string) (*models.User, error) {
	u, err := db.GetUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	return db.CreateUser(ctx, email, username, "")
}

// GetUser looks a user up by id.
func (db *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: user %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail looks a user up by email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: user %s: %w", email, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user by email: %w", err)
	}
	return u, nil
}

// SetGoogleProfile stores the profile fields returned by the Google userinfo endpoint.
func (db *DB) SetGoogleProfile(ctx context.Context, userID int64, googleID, name, picture string) error {
	if _, err := db.conn.ExecContext(ctx, `
		UPDATE users SET google_id = ?, google_name = ?, google_picture = ? WHERE id = ?
	`, googleID, name, picture, userID); err != nil {
		return fmt.Errorf("store: set google profile: %w", err)
	}
	return nil
}
