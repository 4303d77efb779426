// Package auth issues and verifies application sessions: bcrypt password
// hashes, short-lived JWT access tokens, rotating opaque refresh tokens and
// signed OAuth state values.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/checksum"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/store"
)

const (
	typeAccess = "access"
	typeState  = "oauth_state"

	stateTTL = 10 * time.Minute
)

// Config holds the session settings.
type Config struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Tokens is a freshly issued session.
type Tokens struct {
	AccessToken   string    `json:"access_token"`
	TokenType     string    `json:"token_type"`
	ExpiresIn     int       `json:"expires_in"`
	RefreshToken  string    `json:"-"`
	RefreshExpiry time.Time `json:"-"`
}

// Service manages user credentials and sessions.
type Service struct {
	db  *store.DB
	cfg Config
	now func() time.Time
}

// New creates a session service. Zero TTLs default to 30 minutes and 7 days.
func New(db *store.DB, cfg Config) *Service {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 30 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Service{db: db, cfg: cfg, now: time.Now}
}

// SetClock replaces the time source used for token lifetimes.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// AccessTTL returns the access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.cfg.AccessTTL }

// RefreshTTL returns the refresh token lifetime.
func (s *Service) RefreshTTL() time.Duration { return s.cfg.RefreshTTL }

// Register creates an account with a hashed password.
func (s *Service) Register(ctx context.Context, email, username, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	err := validation.Errors{
		"email":    validation.Validate(email, validation.Required, is.EmailFormat),
		"password": validation.Validate(password, validation.Required, validation.Length(6, 128)),
	}.Filter()
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if strings.TrimSpace(username) == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	return s.db.CreateUser(ctx, email, username, string(hash))
}

// Authenticate checks an email and password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.db.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("auth: incorrect email or password: %w", apperr.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if u.HashedPassword == "" || bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password)) != nil {
		return nil, fmt.Errorf("auth: incorrect email or password: %w", apperr.ErrUnauthorized)
	}
	if !u.IsActive {
		return nil, fmt.Errorf("auth: inactive user: %w", apperr.ErrUnauthorized)
	}
	return u, nil
}

// Issue creates an access token and a refresh token for the user. Any
// previously active refresh token of the user stops working.
func (s *Service) Issue(ctx context.Context, userID int64) (*Tokens, error) {
	now := s.now()
	access, err := s.sign(jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"typ": typeAccess,
		"iat": now.Unix(),
		"exp": now.Add(s.cfg.AccessTTL).Unix(),
	})
	if err != nil {
		return nil, err
	}
	refresh := uuid.NewString()
	expiry := now.Add(s.cfg.RefreshTTL)
	if err := s.db.CreateRefreshToken(ctx, userID, checksum.Sum([]byte(refresh)), expiry); err != nil {
		return nil, err
	}
	return &Tokens{
		AccessToken:   access,
		TokenType:     "bearer",
		ExpiresIn:     int(s.cfg.AccessTTL.Seconds()),
		RefreshToken:  refresh,
		RefreshExpiry: expiry,
	}, nil
}

// Refresh exchanges a refresh token for a new session, rotating the refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("auth: missing refresh token: %w", apperr.ErrUnauthorized)
	}
	rt, err := s.db.ActiveRefreshToken(ctx, checksum.Sum([]byte(refreshToken)))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("auth: invalid refresh token: %w", apperr.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	return s.Issue(ctx, rt.UserID)
}

// Logout revokes every refresh token of the user.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	return s.db.DeactivateRefreshTokens(ctx, userID)
}

// ParseAccess verifies an access token and returns its user id.
func (s *Service) ParseAccess(token string) (int64, error) {
	return s.parse(token, typeAccess)
}

// NewState returns a signed OAuth state value binding the flow to userID.
func (s *Service) NewState(userID int64) (string, error) {
	now := s.now()
	return s.sign(jwt.MapClaims{
		"sub":   strconv.FormatInt(userID, 10),
		"typ":   typeState,
		"nonce": uuid.NewString(),
		"exp":   now.Add(stateTTL).Unix(),
	})
}

// ParseState verifies a state value from the OAuth callback.
func (s *Service) ParseState(state string) (int64, error) {
	return s.parse(state, typeState)
}

func (s *Service) sign(claims jwt.MapClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) parse(tokenString, typ string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return 0, fmt.Errorf("auth: invalid token: %w: %v", apperr.ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid || claims["typ"] != typ {
		return 0, fmt.Errorf("auth: invalid token claims: %w", apperr.ErrUnauthorized)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return 0, fmt.Errorf("auth: invalid subject: %w", apperr.ErrUnauthorized)
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("auth: invalid subject: %w", apperr.ErrUnauthorized)
	}
	return id, nil
}
