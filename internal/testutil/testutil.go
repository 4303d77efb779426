// Package testutil provides shared test helpers: temporary databases and
// scripted stand-ins for the model and calendar providers.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/calendar"
	"github.com/starford/notegraph/internal/llm"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/store"
)

// TestStore creates a temporary SQLite database that is automatically cleaned up.
func TestStore(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "notegraph-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestUser creates a user in db.
func TestUser(t *testing.T, db *store.DB, email string) *models.User {
	t.Helper()
	u, err := db.CreateUser(context.Background(), email, email, "")
	if err != nil {
		t.Fatal(err)
	}
	return u
}

// ErrScripted is returned by ScriptedLLM for ops without an answer when Strict is set.
var ErrScripted = errors.New("testutil: no scripted answer")

// ScriptedLLM is an llm.Provider answering from a per-op table.
// With Fail set every call returns an upstream error.
type ScriptedLLM struct {
	mu      sync.Mutex
	Answers map[string]string
	Fail    bool
	// Strict makes ops missing from Answers fail instead of answering "".
	Strict bool
	calls   []llm.Request
}

// FailingLLM returns a provider whose every call fails.
func FailingLLM() *ScriptedLLM { return &ScriptedLLM{Fail: true} }

// NewScriptedLLM returns a provider answering from answers; other ops fail.
func NewScriptedLLM(answers map[string]string) *ScriptedLLM {
	return &ScriptedLLM{Answers: answers, Strict: true}
}

// Name implements llm.Provider.
func (s *ScriptedLLM) Name() string { return "scripted" }

// Generate implements llm.Provider.
func (s *ScriptedLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if s.Fail {
		return "", apperr.ErrUpstream
	}
	a, ok := s.Answers[req.Op]
	if !ok && s.Strict {
		return "", errors.Join(ErrScripted, apperr.ErrUpstream)
	}
	return a, nil
}

// Calls returns the ops requested so far, in order.
func (s *ScriptedLLM) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Op
	}
	return out
}

// FakeCalendar is an in-memory calendar.Provider. Every user counts as
// connected unless listed in Disconnected.
type FakeCalendar struct {
	mu           sync.Mutex
	next         int
	events       map[string]calendar.Event
	Disconnected map[int64]bool
	// FailCreate makes CreateEvent return an upstream error.
	FailCreate bool
	// FailDelete makes DeleteEvent return an upstream error.
	FailDelete bool
}

// NewFakeCalendar returns an empty fake calendar.
func NewFakeCalendar() *FakeCalendar {
	return &FakeCalendar{events: map[string]calendar.Event{}, Disconnected: map[int64]bool{}}
}

func fakeKey(userID int64, eventID string) string {
	return fmt.Sprintf("%d/%s", userID, eventID)
}

// Connected implements calendar.Provider.
func (f *FakeCalendar) Connected(_ context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Disconnected[userID], nil
}

// CreateEvent implements calendar.Provider.
func (f *FakeCalendar) CreateEvent(_ context.Context, userID int64, e calendar.Event) (*calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Disconnected[userID] {
		return nil, apperr.ErrAuthRequired
	}
	if f.FailCreate {
		return nil, apperr.ErrUpstream
	}
	f.next++
	e.ID = fmt.Sprintf("evt-%d", f.next)
	if e.CalendarID == "" {
		e.CalendarID = calendar.PrimaryCalendar
	}
	e.Status = "confirmed"
	f.events[fakeKey(userID, e.ID)] = e
	return &e, nil
}

// UpdateEvent implements calendar.Provider.
func (f *FakeCalendar) UpdateEvent(_ context.Context, userID int64, e calendar.Event) (*calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[fakeKey(userID, e.ID)]; !ok {
		return nil, apperr.ErrNotFound
	}
	f.events[fakeKey(userID, e.ID)] = e
	return &e, nil
}

// SetFailDelete toggles FailDelete while other goroutines use the fake.
func (f *FakeCalendar) SetFailDelete(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailDelete = fail
}

// DeleteEvent implements calendar.Provider.
func (f *FakeCalendar) DeleteEvent(_ context.Context, userID int64, _, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Disconnected[userID] {
		return apperr.ErrAuthRequired
	}
	if f.FailDelete {
		return apperr.ErrUpstream
	}
	k := fakeKey(userID, eventID)
	if _, ok := f.events[k]; !ok {
		return apperr.ErrNotFound
	}
	delete(f.events, k)
	return nil
}

// GetEvent implements calendar.Provider.
func (f *FakeCalendar) GetEvent(_ context.Context, userID int64, _, eventID string) (*calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[fakeKey(userID, eventID)]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &e, nil
}

// ListEvents implements calendar.Provider.
func (f *FakeCalendar) ListEvents(_ context.Context, userID int64, _ string, from, to time.Time, limit int) ([]calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := fmt.Sprintf("%d/", userID)
	out := []calendar.Event{}
	for k, e := range f.events {
		if !strings.HasPrefix(k, prefix) || e.Start.Before(from) || (!to.IsZero() && e.Start.After(to)) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListCalendars implements calendar.Provider.
func (f *FakeCalendar) ListCalendars(_ context.Context, _ int64) ([]calendar.Calendar, error) {
	return []calendar.Calendar{{ID: calendar.PrimaryCalendar, Summary: "Primary", Primary: true}}, nil
}

// Events returns a copy of the user's stored events.
func (f *FakeCalendar) Events(userID int64) []calendar.Event {
	out, _ := f.ListEvents(context.Background(), userID, "", time.Time{}, time.Time{}, 0)
	return out
}

// Cancel marks an event cancelled, as Google does for deleted recurring items.
func (f *FakeCalendar) Cancel(userID int64, eventID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := fakeKey(userID, eventID)
	if e, ok := f.events[k]; ok {
		e.Status = "cancelled"
		f.events[k] = e
	}
}
