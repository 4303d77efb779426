package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/store"
)

// ProviderGoogle is the provider name of stored Google credentials.
const ProviderGoogle = "google"

// refreshLead is how close to expiry a stored access token is refreshed.
const refreshLead = 5 * time.Minute

// Config holds the Google OAuth client settings. AuthURL, TokenURL and
// APIEndpoint override Google's defaults.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIEndpoint  string
}

// Profile is the Google account the user connected.
type Profile struct {
	GoogleID string `json:"google_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Picture  string `json:"picture"`
}

// Status describes a user's calendar connection.
type Status struct {
	Connected bool       `json:"connected"`
	Expiry    *time.Time `json:"expires_at,omitempty"`
	Scope     string     `json:"scope,omitempty"`
	Name      string     `json:"google_name,omitempty"`
	Picture   string     `json:"google_picture,omitempty"`
}

// OAuth manages the per-user Google credential: code exchange, storage,
// refresh ahead of expiry and disconnect.
type OAuth struct {
	cfg         *oauth2.Config
	apiEndpoint string
	db          *store.DB
	logger      *slog.Logger
	now         func() time.Time
}

// NewOAuth creates the OAuth service. The returned service reports
// Enabled() == false when no client id is configured.
func NewOAuth(c Config, db *store.DB, logger *slog.Logger) *OAuth {
	endpoint := google.Endpoint
	if c.AuthURL != "" {
		endpoint.AuthURL = c.AuthURL
	}
	if c.TokenURL != "" {
		endpoint.TokenURL = c.TokenURL
	}
	return &OAuth{
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Endpoint:     endpoint,
			Scopes: []string{
				"openid",
				oauth2api.UserinfoEmailScope,
				oauth2api.UserinfoProfileScope,
				gcal.CalendarScope,
			},
		},
		apiEndpoint: c.APIEndpoint,
		db:          db,
		logger:      logger,
		now:         time.Now,
	}
}

// Enabled reports whether a Google client is configured.
func (o *OAuth) Enabled() bool { return o.cfg.ClientID != "" }

// SetClock replaces the time source used for expiry checks.
func (o *OAuth) SetClock(now func() time.Time) { o.now = now }

// AuthURL returns the consent URL. Offline access with forced approval makes
// Google issue a refresh token.
func (o *OAuth) AuthURL(state string) string {
	return o.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Connect exchanges an authorization code, stores the credential and
// copies the Google profile onto the user.
func (o *OAuth) Connect(ctx context.Context, userID int64, code string) (*Profile, error) {
	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("calendar: exchange code: %w: %v", apperr.ErrUpstream, err)
	}

	svc, err := oauth2api.NewService(ctx, o.clientOptions(ctx, oauth2.StaticTokenSource(tok))...)
	if err != nil {
		return nil, fmt.Errorf("calendar: userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: fetch profile: %w: %v", apperr.ErrUpstream, err)
	}

	if err := o.save(ctx, userID, tok); err != nil {
		return nil, err
	}
	if err := o.db.SetGoogleProfile(ctx, userID, info.Id, info.Name, info.Picture); err != nil {
		return nil, err
	}
	return &Profile{GoogleID: info.Id, Email: info.Email, Name: info.Name, Picture: info.Picture}, nil
}

// Disconnect clears the stored credential and cached profile fields.
func (o *OAuth) Disconnect(ctx context.Context, userID int64) error {
	return o.db.DeleteOAuthToken(ctx, userID, ProviderGoogle)
}

// Status reports whether the user has a stored credential.
func (o *OAuth) Status(ctx context.Context, userID int64) (*Status, error) {
	tok, err := o.db.GetOAuthToken(ctx, userID, ProviderGoogle)
	if errors.Is(err, apperr.ErrNotFound) {
		return &Status{}, nil
	}
	if err != nil {
		return nil, err
	}
	st := &Status{Connected: true, Scope: tok.Scope}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		st.Expiry = &exp
	}
	if u, err := o.db.GetUser(ctx, userID); err == nil {
		st.Name, st.Picture = u.GoogleName, u.GooglePicture
	}
	return st, nil
}

// Connected reports whether the user has a stored credential.
func (o *OAuth) Connected(ctx context.Context, userID int64) (bool, error) {
	_, err := o.db.GetOAuthToken(ctx, userID, ProviderGoogle)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// TokenSource returns a live token for the user. A token expiring within
// five minutes is refreshed first. When the refresh token is missing or
// rejected the credential is removed and apperr.ErrAuthRequired returned.
// Any other refresh failure keeps the credential and wraps apperr.ErrUpstream.
func (o *OAuth) TokenSource(ctx context.Context, userID int64) (oauth2.TokenSource, error) {
	stored, err := o.db.GetOAuthToken(ctx, userID, ProviderGoogle)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("calendar: user %d not connected: %w", userID, apperr.ErrAuthRequired)
	}
	if err != nil {
		return nil, err
	}

	tok := &oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		TokenType:    stored.TokenType,
		Expiry:       stored.Expiry,
	}
	if !tok.Expiry.IsZero() && tok.Expiry.Sub(o.now()) > refreshLead {
		return oauth2.StaticTokenSource(tok), nil
	}

	if tok.RefreshToken == "" {
		o.drop(ctx, userID, "no refresh token")
		return nil, fmt.Errorf("calendar: user %d has no refresh token: %w", userID, apperr.ErrAuthRequired)
	}
	// An already expired token forces the oauth2 package to refresh.
	fresh, err := o.cfg.TokenSource(ctx, &oauth2.Token{
		RefreshToken: tok.RefreshToken,
		Expiry:       o.now().Add(-time.Hour),
	}).Token()
	if err != nil {
		if !refreshRejected(err) {
			return nil, fmt.Errorf("calendar: refresh token for user %d: %w: %v", userID, apperr.ErrUpstream, err)
		}
		o.drop(ctx, userID, err.Error())
		return nil, fmt.Errorf("calendar: refresh token for user %d: %w", userID, apperr.ErrAuthRequired)
	}
	if err := o.save(ctx, userID, fresh); err != nil {
		return nil, err
	}
	return oauth2.StaticTokenSource(fresh), nil
}

// HTTPClient returns an authenticated client for the user.
func (o *OAuth) HTTPClient(ctx context.Context, userID int64) (*http.Client, error) {
	ts, err := o.TokenSource(ctx, userID)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

func (o *OAuth) clientOptions(ctx context.Context, ts oauth2.TokenSource) []option.ClientOption {
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if o.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(o.apiEndpoint))
	}
	return opts
}

func (o *OAuth) save(ctx context.Context, userID int64, tok *oauth2.Token) error {
	scope, _ := tok.Extra("scope").(string)
	return o.db.SaveOAuthToken(ctx, models.OAuthToken{
		UserID:       userID,
		Provider:     ProviderGoogle,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
		Scope:        scope,
	})
}

// refreshRejected reports whether the token endpoint refused the refresh
// token itself. Network errors and server failures do not count.
func refreshRejected(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	if re.ErrorCode != "" {
		return re.ErrorCode == "invalid_grant"
	}
	if re.Response == nil {
		return false
	}
	return re.Response.StatusCode == http.StatusBadRequest || re.Response.StatusCode == http.StatusUnauthorized
}

func (o *OAuth) drop(ctx context.Context, userID int64, reason string) {
	o.logger.Warn("calendar: credential revoked", slog.Int64("user_id", userID), slog.String("reason", reason))
	if err := o.db.DeleteOAuthToken(ctx, userID, ProviderGoogle); err != nil {
		o.logger.Error("calendar: delete credential failed", slog.String("error", err.Error()))
	}
}
