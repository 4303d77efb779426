package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/store"
)

type fakeGoogle struct {
	srv          *httptest.Server
	tokenStatus  int
	tokenError   string
	tokenCalls   atomic.Int32
	lastEventRaw atomic.Value
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	g := &fakeGoogle{tokenStatus: http.StatusOK, tokenError: `{"error":"invalid_grant"}`}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		g.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if g.tokenStatus != http.StatusOK {
			w.WriteHeader(g.tokenStatus)
			_, _ = io.WriteString(w, g.tokenError)
			return
		}
		body := `{"access_token":"fresh-access","token_type":"Bearer","expires_in":3600,"scope":"calendar"}`
		if r.FormValue("grant_type") == "authorization_code" {
			body = `{"access_token":"first-access","refresh_token":"first-refresh","token_type":"Bearer","expires_in":3600}`
		}
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"g-42","email":"ann@example.com","name":"Ann","picture":"https://img/ann.png"}`)
	})
	mux.HandleFunc("POST /calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		g.lastEventRaw.Store(raw)
		var ev map[string]any
		_ = json.Unmarshal(raw, &ev)
		ev["id"] = "evt-1"
		ev["status"] = "confirmed"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ev)
	})
	mux.HandleFunc("GET /calendars/primary/events/missing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"Not Found"}}`)
	})
	g.srv = httptest.NewServer(mux)
	t.Cleanup(g.srv.Close)
	return g
}

func testStore(t *testing.T) *store.DB {
	t.Helper()
	f, err := os.CreateTemp("", "notegraph-calendar-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	db, err := store.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testOAuth(t *testing.T, g *fakeGoogle, db *store.DB) *OAuth {
	t.Helper()
	return NewOAuth(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/auth/google/callback",
		AuthURL:      g.srv.URL + "/auth",
		TokenURL:     g.srv.URL + "/token",
		APIEndpoint:  g.srv.URL + "/",
	}, db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func saveToken(t *testing.T, db *store.DB, userID int64, refresh string, expiry time.Time) {
	t.Helper()
	err := db.SaveOAuthToken(context.Background(), models.OAuthToken{
		UserID: userID, Provider: ProviderGoogle, AccessToken: "old-access",
		RefreshToken: refresh, TokenType: "Bearer", Expiry: expiry,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAuthURLRequestsOfflineAccess(t *testing.T) {
	o := testOAuth(t, newFakeGoogle(t), testStore(t))
	u := o.AuthURL("state-1")
	for _, want := range []string{"access_type=offline", "prompt=consent", "state=state-1", "client_id=client"} {
		if !strings.Contains(u, want) {
			t.Errorf("AuthURL = %q, missing %q", u, want)
		}
	}
}

func TestConnectStoresTokenAndProfile(t *testing.T) {
	ctx := context.Background()
	db := testStore(t)
	u, _ := db.CreateUser(ctx, "ann@example.com", "ann", "")
	o := testOAuth(t, newFakeGoogle(t), db)

	p, err := o.Connect(ctx, u.ID, "code-1")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if p.GoogleID != "g-42" || p.Name != "Ann" {
		t.Errorf("profile = %+v", p)
	}
	tok, err := db.GetOAuthToken(ctx, u.ID, ProviderGoogle)
	if err != nil {
		t.Fatalf("GetOAuthToken: %v", err)
	}
	if tok.AccessToken != "first-access" || tok.RefreshToken != "first-refresh" {
		t.Errorf("stored token = %+v", tok)
	}
	st, err := o.Status(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Connected || st.Name != "Ann" {
		t.Errorf("status = %+v", st)
	}
}

func TestTokenSourceKeepsValidToken(t *testing.T) {
	ctx := context.Background()
	db := testStore(t)
	u, _ := db.CreateUser(ctx, "a@x.io", "a", "")
	g := newFakeGoogle(t)
	o := testOAuth(t, g, db)
	saveToken(t, db, u.ID, "r1", time.Now().Add(time.Hour))

	ts, err := o.TokenSource(ctx, u.ID)
	if err != nil {
		t.Fatalf("TokenSource: %v", err)
	}
	tok, _ := ts.Token()
	if tok.AccessToken != "old-access" {
		t.Errorf("access = %q, want old-access", tok.AccessToken)
	}
	if g.tokenCalls.Load() != 0 {
		t.Errorf("token endpoint called %d times, want 0", g.tokenCalls.Load())
	}
}

func TestTokenSourceRefreshesNearExpiry(t *testing.T) {
	ctx := context.Background()
	db := testStore(t)
	u, _ := db.CreateUser(ctx, "a@x.io", "a", "")
	o := testOAuth(t, newFakeGoogle(t), db)
	saveToken(t, db, u.ID, "r1", time.Now().Add(2*time.Minute))

	ts, err := o.TokenSource(ctx, u.ID)
	if err != nil {
		t.Fatalf("TokenSource: %v", err)
	}
	tok, _ := ts.Token()
	if tok.AccessToken != "fresh-access" {
		t.Errorf("access = %q, want fresh-access", tok.AccessToken)
	}
	stored, _ := db.GetOAuthToken(ctx, u.ID, ProviderGoogle)
	if stored.AccessToken != "fresh-access" {
		t.Errorf("stored access = %q", stored.AccessToken)
	}
	if stored.RefreshToken != "r1" {
		t.Errorf("stored refresh = %q, want r1 kept", stored.RefreshToken)
	}
}

func TestTokenSourceRevokedRefreshDisconnects(t *testing.T) {
	ctx := context.Background()
	db := testStore(t)
	u, _ := db.CreateUser(ctx, "a@x.io", "a", "")
	g := newFakeGoogle(t)
	g.tokenStatus = http.StatusBadRequest
	o := testOAuth(t, g, db)
	saveToken(t, db, u.ID, "revoked", time.Now().Add(-time.Minute))

	_, err := o.TokenSource(ctx, u.ID)
	if !errors.Is(err, apperr.ErrAuthRequired) {
		t.Fatalf("err = %v, want ErrAuthRequired", err)
	}
	if ok, _ := o.Connected(ctx, u.ID); ok {
		t.Error("user still connected after failed refresh")
	}
}

func TestTokenSourceTransientRefreshFailureKeepsCredential(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		body   string
	}{
		{"unavailable", http.StatusServiceUnavailable, `{"error":"backend_error"}`},
		{"server error without body", http.StatusInternalServerError, ""},
		{"bad request with other code", http.StatusBadRequest, `{"error":"invalid_client"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			db := testStore(t)
			u, _ := db.CreateUser(ctx, "a@x.io", "a", "")
			g := newFakeGoogle(t)
			g.tokenStatus, g.tokenError = tc.status, tc.body
			o := testOAuth(t, g, db)
			saveToken(t, db, u.ID, "still-valid", time.Now().Add(-time.Minute))

			_, err := o.TokenSource(ctx, u.ID)
			if !errors.Is(err, apperr.ErrUpstream) {
				t.Fatalf("err = %v, want ErrUpstream", err)
			}
			if errors.Is(err, apperr.ErrAuthRequired) {
				t.Fatalf("err = %v, must not ask for re-authorization", err)
			}
			stored, err := db.GetOAuthToken(ctx, u.ID, ProviderGoogle)
			if err != nil {
				t.Fatalf("credential dropped: %v", err)
			}
			if stored.RefreshToken != "still-valid" {
				t.Errorf("refresh token = %q", stored.RefreshToken)
			}
		})
	}
}

func TestTokenSourceRejectedWithoutErrorCode(t *testing.T) {
	ctx := context.Background()
	db := testStore(t)
	u, _ := db.CreateUser(ctx, "a@x.io", "a", "")
	g := newFakeGoogle(t)
	g.tokenStatus, g.tokenError = http.StatusUnauthorized, ""
	o := testOAuth(t, g, db)
	saveToken(t, db, u.ID, "revoked", time.Now().Add(-time.Minute))

	if _, err := o.TokenSource(ctx, u.ID); !errors.Is(err, apperr.ErrAuthRequired) {
		t.Fatalf("err = %v, want ErrAuthRequired", err)
	}
	if ok, _ := o.Connected(ctx, u.ID); ok {
		t.Error("user still connected after rejected refresh")
	}
}

func TestTokenSourceWithoutRefreshToken(t *testing.T) {
	ctx := context.Background()
	db := testStore(t)
	u, _ := db.CreateUser(ctx, "a@x.io", "a", "")
	o := testOAuth(t, newFakeGoogle(t), db)
	saveToken(t, db, u.ID, "", time.Now().Add(time.Minute))

	if _, err := o.TokenSource(ctx, u.ID); !errors.Is(err, apperr.ErrAuthRequired) {
		t.Fatalf("err = %v, want ErrAuthRequired", err)
	}
	if _, err := o.TokenSource(ctx, u.ID+100); !errors.Is(err, apperr.ErrAuthRequired) {
		t.Fatalf("unknown user err = %v, want ErrAuthRequired", err)
	}
}

func TestGoogleCreateEventSendsPopupReminder(t *testing.T) {
	ctx := context.Background()
	db := testStore(t)
	u, _ := db.CreateUser(ctx, "a@x.io", "a", "")
	g := newFakeGoogle(t)
	saveToken(t, db, u.ID, "r1", time.Now().Add(time.Hour))
	cal := NewGoogle(testOAuth(t, g, db))

	start := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	ev, err := cal.CreateEvent(ctx, u.ID, Event{Title: "Dentist", Start: start, End: start.Add(time.Hour)})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if ev.ID != "evt-1" || ev.CalendarID != PrimaryCalendar {
		t.Errorf("event = %+v", ev)
	}
	if !ev.Start.Equal(start) {
		t.Errorf("start = %v, want %v", ev.Start, start)
	}

	var sent struct {
		Summary   string `json:"summary"`
		Reminders struct {
			UseDefault *bool `json:"useDefault"`
			Overrides  []struct {
				Method  string `json:"method"`
				Minutes int    `json:"minutes"`
			} `json:"overrides"`
		} `json:"reminders"`
	}
	raw, _ := g.lastEventRaw.Load().([]byte)
	if err := json.Unmarshal(raw, &sent); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if sent.Summary != "Dentist" {
		t.Errorf("summary = %q", sent.Summary)
	}
	if sent.Reminders.UseDefault == nil || *sent.Reminders.UseDefault {
		t.Error("useDefault must be sent as false")
	}
	if len(sent.Reminders.Overrides) != 1 || sent.Reminders.Overrides[0].Minutes != DefaultReminderMinutes {
		t.Errorf("overrides = %+v", sent.Reminders.Overrides)
	}
}

func TestGoogleMissingEventIsNotFound(t *testing.T) {
	ctx := context.Background()
	db := testStore(t)
	u, _ := db.CreateUser(ctx, "a@x.io", "a", "")
	g := newFakeGoogle(t)
	saveToken(t, db, u.ID, "r1", time.Now().Add(time.Hour))
	cal := NewGoogle(testOAuth(t, g, db))

	if _, err := cal.GetEvent(ctx, u.ID, "", "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
