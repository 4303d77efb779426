package calendar_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/calendar"
	"github.com/starford/notegraph/internal/heuristics"
	"github.com/starford/notegraph/internal/llm"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/store"
	"github.com/starford/notegraph/internal/testutil"
)

var fixedNow = time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

func newAgent(t *testing.T, p llm.Provider) (*calendar.Agent, *store.DB, *testutil.FakeCalendar) {
	t.Helper()
	db := testutil.TestStore(t)
	fake := testutil.NewFakeCalendar()
	a := calendar.NewAgent(db, fake, llm.NewClient(p), heuristics.New(heuristics.DefaultRules()),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.SetClock(func() time.Time { return fixedNow })
	return a, db, fake
}

func createNote(t *testing.T, db *store.DB, userID int64, title, content string) *models.Note {
	t.Helper()
	n, err := db.CreateNote(context.Background(), models.Note{UserID: userID, Title: title, Content: content})
	require.NoError(t, err)
	return n
}

func TestDraftsRequireEventAndTime(t *testing.T) {
	a, _, _ := newAgent(t, testutil.FailingLLM())
	ctx := context.Background()

	assert.Empty(t, a.Drafts(ctx, "", "Buy milk and bread"))
	assert.Empty(t, a.Drafts(ctx, "", "Meeting notes from the retrospective"))

	drafts := a.Drafts(ctx, "Sync", "Meeting with the team tomorrow at 10:00")
	require.Len(t, drafts, 1)
	assert.Equal(t, "Sync", drafts[0].Title)
	assert.Equal(t, time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC), drafts[0].Start)
	assert.Equal(t, time.Hour, drafts[0].End.Sub(drafts[0].Start))
	assert.Equal(t, calendar.DefaultReminderMinutes, drafts[0].ReminderMinutes)
}

func TestDraftsPreferModel(t *testing.T) {
	p := testutil.NewScriptedLLM(map[string]string{
		llm.OpEvents: `[{"title":"Standup","start_time":"2026-10-16T10:00:00Z","end_time":"2026-10-16T10:15:00Z","reminder_minutes":10}]`,
	})
	a, _, _ := newAgent(t, p)

	drafts := a.Drafts(context.Background(), "", "Standup meeting tomorrow at 10:00")
	require.Len(t, drafts, 1)
	assert.Equal(t, "Standup", drafts[0].Title)
	assert.Equal(t, 15*time.Minute, drafts[0].End.Sub(drafts[0].Start))
	assert.Equal(t, 10, drafts[0].ReminderMinutes)
}

func TestProcessNoteLinksEvents(t *testing.T) {
	a, db, fake := newAgent(t, testutil.FailingLLM())
	ctx := context.Background()
	u := testutil.TestUser(t, db, "ann@example.com")
	n := createNote(t, db, u.ID, "Dentist", "Doctor visit tomorrow at 15:30")

	links, err := a.ProcessNote(ctx, *n)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.True(t, links[0].CreatedByAI)
	assert.Equal(t, calendar.PrimaryCalendar, links[0].CalendarID)

	events := fake.Events(u.ID)
	require.Len(t, events, 1)
	assert.Equal(t, links[0].EventID, events[0].ID)
	assert.Contains(t, events[0].Description, "Created from note: Dentist")
}

func TestProcessNoteSkipsDisconnectedUser(t *testing.T) {
	a, db, fake := newAgent(t, testutil.FailingLLM())
	u := testutil.TestUser(t, db, "ann@example.com")
	fake.Disconnected[u.ID] = true
	n := createNote(t, db, u.ID, "Call", "Call with Bob tomorrow at 9:00")

	links, err := a.ProcessNote(context.Background(), *n)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestResyncDropsEventsWhenDatesRemoved(t *testing.T) {
	a, db, fake := newAgent(t, testutil.FailingLLM())
	ctx := context.Background()
	u := testutil.TestUser(t, db, "ann@example.com")
	n := createNote(t, db, u.ID, "Review", "Meeting with the board on 20.10 at 14:00")

	links, err := a.ProcessNote(ctx, *n)
	require.NoError(t, err)
	require.Len(t, links, 1)

	content := "Thoughts about the board, nothing scheduled"
	updated, err := db.UpdateNote(ctx, u.ID, n.ID, store.NoteUpdate{Content: &content})
	require.NoError(t, err)

	links, err = a.ResyncNote(ctx, *updated)
	require.NoError(t, err)
	assert.Empty(t, links)

	stored, err := db.NoteEventLinks(ctx, u.ID, n.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Empty(t, fake.Events(u.ID))
}

func TestDeleteForNoteKeepsLinksOnUpstreamFailure(t *testing.T) {
	a, db, fake := newAgent(t, testutil.FailingLLM())
	ctx := context.Background()
	u := testutil.TestUser(t, db, "ann@example.com")
	n := createNote(t, db, u.ID, "Review", "Meeting with the board tomorrow at 14:00")
	links, err := a.ProcessNote(ctx, *n)
	require.NoError(t, err)
	require.Len(t, links, 1)

	fake.FailDelete = true
	removed, err := a.DeleteForNote(ctx, u.ID, n.ID)
	require.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Zero(t, removed)

	stored, err := db.NoteEventLinks(ctx, u.ID, n.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1, "link must survive so a retry can delete the event")
	assert.Len(t, fake.Events(u.ID), 1)

	fake.FailDelete = false
	removed, err = a.DeleteForNote(ctx, u.ID, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Empty(t, fake.Events(u.ID))
	stored, err = db.NoteEventLinks(ctx, u.ID, n.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestDeleteForNoteUnlinksEventsGoneUpstream(t *testing.T) {
	a, db, fake := newAgent(t, testutil.FailingLLM())
	ctx := context.Background()
	u := testutil.TestUser(t, db, "ann@example.com")
	n := createNote(t, db, u.ID, "Review", "Meeting with the board tomorrow at 14:00")
	links, err := a.ProcessNote(ctx, *n)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.NoError(t, fake.DeleteEvent(ctx, u.ID, "", links[0].EventID))

	removed, err := a.DeleteForNote(ctx, u.ID, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestSyncUserRemovesCancelledAndMissing(t *testing.T) {
	a, db, fake := newAgent(t, testutil.FailingLLM())
	ctx := context.Background()
	u := testutil.TestUser(t, db, "ann@example.com")
	n1 := createNote(t, db, u.ID, "A", "Meeting tomorrow at 10:00")
	n2 := createNote(t, db, u.ID, "B", "Interview tomorrow at 12:00")
	n3 := createNote(t, db, u.ID, "C", "Conference tomorrow at 16:00")

	var links []models.CalendarEventLink
	for _, n := range []*models.Note{n1, n2, n3} {
		l, err := a.ProcessNote(ctx, *n)
		require.NoError(t, err)
		require.Len(t, l, 1)
		links = append(links, l[0])
	}
	fake.Cancel(u.ID, links[0].EventID)
	require.NoError(t, fake.DeleteEvent(ctx, u.ID, "", links[1].EventID))

	res, err := a.SyncUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Checked)
	assert.Equal(t, 2, res.Removed)

	left, err := db.UserEventLinks(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, links[2].EventID, left[0].EventID)
}
