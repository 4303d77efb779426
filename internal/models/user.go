package models

import "time"

// User is an application account. Google profile fields are filled after
// the calendar OAuth flow and cleared on disconnect.
type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"`
	IsActive       bool      `json:"is_active"`
	GoogleID       string    `json:"google_id,omitempty"`
	GoogleName     string    `json:"google_name,omitempty"`
	GooglePicture  string    `json:"google_picture,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// OAuthToken is the single live third-party credential of a user for one provider.
type OAuthToken struct {
	UserID       int64
	Provider     string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	Scope        string
	UpdatedAt    time.Time
}

// RefreshToken is an application session refresh credential. Only its hash is stored.
type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	Active    bool
	CreatedAt time.Time
}
