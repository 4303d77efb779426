package noteservice_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notegraph/internal/analysis"
	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/calendar"
	"github.com/starford/notegraph/internal/heuristics"
	"github.com/starford/notegraph/internal/jobs"
	"github.com/starford/notegraph/internal/llm"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/store"
	"github.com/starford/notegraph/internal/testutil"
)

var fixedNow = time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Publish(_ int64, eventType string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recorder) PublishNoteEvent(_ int64, kind string, _ int64) {
	r.Publish(0, "note."+kind, nil)
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fixture struct {
	svc    *noteservice.Service
	db     *store.DB
	cal    *testutil.FakeCalendar
	events *recorder
	user   *models.User
}

func newFixture(t *testing.T, p llm.Provider) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := testutil.TestStore(t)
	client := llm.NewClient(p)
	rules := heuristics.New(heuristics.DefaultRules())
	fake := testutil.NewFakeCalendar()
	agent := calendar.NewAgent(db, fake, client, rules, logger)
	agent.SetClock(func() time.Time { return fixedNow })
	rec := &recorder{}

	svc := noteservice.NewService(db,
		analysis.New(client, rules, db, analysis.DefaultConfig(), logger),
		noteservice.WithCalendar(agent),
		noteservice.WithPublisher(rec),
		noteservice.WithLogger(logger),
	)
	return &fixture{svc: svc, db: db, cal: fake, events: rec, user: testutil.TestUser(t, db, "owner@example.com")}
}

func TestCreateNoteWithFailingModel(t *testing.T) {
	f := newFixture(t, testutil.FailingLLM())
	ctx := context.Background()

	note, err := f.svc.CreateNote(ctx, f.user.ID, "", "Graph algorithms: BFS, DFS and Dijkstra for shortest paths")
	require.NoError(t, err)
	assert.NotEmpty(t, note.Title)
	assert.NotEmpty(t, note.Category)
	assert.GreaterOrEqual(t, note.Importance, models.MinImportance)
	assert.LessOrEqual(t, note.Importance, models.MaxImportance)
	assert.True(t, note.AIProcessed)

	conns, err := f.svc.Connections(ctx, f.user.ID, note.ID)
	require.NoError(t, err)
	assert.Empty(t, conns)
	assert.Equal(t, []string{"note.created", "note.analyzed"}, f.events.seen())
}

func TestCreateRejectsEmptyContent(t *testing.T) {
	f := newFixture(t, testutil.FailingLLM())
	_, err := f.svc.CreateNote(context.Background(), f.user.ID, "t", "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateNoteConnectsToSuggestedNotes(t *testing.T) {
	f := newFixture(t, &testutil.ScriptedLLM{Answers: map[string]string{
		llm.OpConnections: `[{"note_id": 1, "relation": "similar"}, {"note_id": 999, "relation": "related"}]`,
	}})
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.user.ID, "Budget", "Quarterly budget draft")
	require.NoError(t, err)
	require.EqualValues(t, 1, first.ID)

	second, err := f.svc.CreateNote(ctx, f.user.ID, "Budget review", "Review of the quarterly budget")
	require.NoError(t, err)

	conns, err := f.svc.Connections(ctx, f.user.ID, second.ID)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, second.ID, conns[0].SourceID)
	assert.Equal(t, first.ID, conns[0].TargetID)
	assert.Equal(t, models.RelationSimilar, conns[0].Relation)

	// A second pass finds the same edge and leaves it alone.
	again, err := f.svc.AutoConnect(ctx, *second)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestConnectOwnershipAndDuplicates(t *testing.T) {
	f := newFixture(t, testutil.FailingLLM())
	ctx := context.Background()
	other := testutil.TestUser(t, f.db, "other@example.com")

	a, err := f.svc.Create(ctx, f.user.ID, "A", "a")
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, f.user.ID, "B", "b")
	require.NoError(t, err)
	foreign, err := f.svc.Create(ctx, other.ID, "C", "c")
	require.NoError(t, err)

	_, err = f.svc.Connect(ctx, f.user.ID, a.ID, foreign.ID, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	c, err := f.svc.Connect(ctx, f.user.ID, a.ID, b.ID, models.RelationFollowUp)
	require.NoError(t, err)
	_, err = f.svc.Connect(ctx, f.user.ID, a.ID, b.ID, models.RelationFollowUp)
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)

	connected, err := f.svc.ConnectedNotes(ctx, f.user.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, connected, 1)
	assert.Equal(t, a.ID, connected[0].ID)

	assert.ErrorIs(t, f.svc.Disconnect(ctx, other.ID, c.ID), apperr.ErrNotFound)
	require.NoError(t, f.svc.Disconnect(ctx, f.user.ID, c.ID))
	conns, err := f.svc.Connections(ctx, f.user.ID, a.ID)
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestDeleteRemovesConnectionsAndEvents(t *testing.T) {
	f := newFixture(t, testutil.FailingLLM())
	ctx := context.Background()

	meeting, err := f.svc.CreateNote(ctx, f.user.ID, "Sync", "Meeting with the team tomorrow at 10:00")
	require.NoError(t, err)
	links, err := f.svc.CalendarEvents(ctx, f.user.ID, meeting.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Len(t, f.cal.Events(f.user.ID), 1)

	other, err := f.svc.Create(ctx, f.user.ID, "Agenda", "topics")
	require.NoError(t, err)
	_, err = f.svc.Connect(ctx, f.user.ID, other.ID, meeting.ID, "")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, f.user.ID, meeting.ID))

	_, err = f.svc.Get(ctx, f.user.ID, meeting.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, f.cal.Events(f.user.ID))
	remaining, err := f.db.UserEventLinks(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	conns, err := f.svc.Connections(ctx, f.user.ID, other.ID)
	require.NoError(t, err)
	assert.Empty(t, conns)

	assert.ErrorIs(t, f.svc.Delete(ctx, f.user.ID, meeting.ID), apperr.ErrNotFound)
}

func TestUpdateResyncsCalendar(t *testing.T) {
	f := newFixture(t, testutil.FailingLLM())
	ctx := context.Background()

	note, err := f.svc.CreateNote(ctx, f.user.ID, "Sync", "Meeting with the team tomorrow at 10:00")
	require.NoError(t, err)
	require.Len(t, f.cal.Events(f.user.ID), 1)

	content := "Retrospective notes: what went well"
	updated, err := f.svc.Update(ctx, f.user.ID, note.ID, store.NoteUpdate{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, content, updated.Content)

	links, err := f.svc.CalendarEvents(ctx, f.user.ID, note.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
	assert.Empty(t, f.cal.Events(f.user.ID))
}

func TestCategoryViews(t *testing.T) {
	f := newFixture(t, testutil.FailingLLM())
	ctx := context.Background()
	long := strings.Repeat("ж", 250)

	mk := func(title, content, category string) *models.Note {
		n, err := f.svc.Create(ctx, f.user.ID, title, content)
		require.NoError(t, err)
		if category != "" {
			require.NoError(t, f.db.SaveAnalysis(ctx, f.user.ID, n.ID, store.AnalysisFields{Category: category, Importance: 5}))
		}
		return n
	}
	mk("w1", "a", "Work")
	mk("w2", "b", "Work")
	mk("w3", long, "Work")
	mk("p1", "c", "Personal")
	mk("g1", "d", "")

	cats, err := f.svc.Categories(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, cats, 3)
	assert.Equal(t, store.CategoryCount{Name: "Work", Count: 3}, cats[0])

	general, err := f.svc.ByCategory(ctx, f.user.ID, models.GeneralCategory)
	require.NoError(t, err)
	require.Len(t, general, 1)
	assert.Equal(t, models.GeneralCategory, general[0].Category)
	assert.Equal(t, "d", general[0].Summary)

	work, err := f.svc.ByCategory(ctx, f.user.ID, "Work")
	require.NoError(t, err)
	require.Len(t, work, 3)
	for _, it := range work {
		if it.Title == "w3" {
			assert.Equal(t, strings.Repeat("ж", 200)+"...", it.Content)
		}
	}

	groups, err := f.svc.Grouped(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, "Work", groups[0].Category)
	assert.Len(t, groups[0].Notes, 3)
}

func TestAnalyzeBatchReportsMissingNotes(t *testing.T) {
	f := newFixture(t, testutil.FailingLLM())
	ctx := context.Background()
	n, err := f.svc.Create(ctx, f.user.ID, "t", "Срочно: отчет по бюджету")
	require.NoError(t, err)

	res, err := f.svc.AnalyzeBatch(ctx, f.user.ID, []int64{n.ID, 4242})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 1, res.Failed)
	assert.True(t, res.Results[0].Success)
	assert.NotEmpty(t, res.Results[1].Error)

	unprocessed, err := f.db.UnprocessedNotes(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unprocessed)
}

func TestRecentClampsLimit(t *testing.T) {
	f := newFixture(t, testutil.FailingLLM())
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, err := f.svc.Create(ctx, f.user.ID, "t", "c")
		require.NoError(t, err)
	}
	notes, err := f.svc.Recent(ctx, f.user.ID, 0)
	require.NoError(t, err)
	assert.Len(t, notes, 10)
	notes, err = f.svc.Recent(ctx, f.user.ID, 500)
	require.NoError(t, err)
	assert.Len(t, notes, 12)
}

func TestJobHandlers(t *testing.T) {
	f := newFixture(t, testutil.FailingLLM())
	q := jobs.New(f.db, jobs.Config{Workers: 1}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.svc.RegisterJobs(q)

	ctx, cancel := context.WithCancel(context.Background())
	go q.Run(ctx) //nolint:errcheck
	t.Cleanup(func() {
		cancel()
		<-q.Done()
	})

	job, err := q.Submit(ctx, jobs.KindCreateNote, f.user.ID, "", jobs.CreateNotePayload{Content: "Notes about graph algorithms"})
	require.NoError(t, err)

	var done *models.Job
	require.Eventually(t, func() bool {
		j, err := q.Get(ctx, job.ID)
		if err != nil || !j.Status.Finished() {
			return false
		}
		done = j
		return true
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.JobSuccess, done.Status)
	assert.Contains(t, string(done.Result), "graph algorithms")

	count, err := f.svc.Count(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// A missing note fails on the first attempt.
	job, err = q.Submit(ctx, jobs.KindAnalyzeNote, f.user.ID, jobs.AnalyzeKey(99), jobs.NotePayload{NoteID: 99})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		j, err := q.Get(ctx, job.ID)
		if err != nil || !j.Status.Finished() {
			return false
		}
		done = j
		return true
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.JobFailure, done.Status)
	assert.Equal(t, 1, done.Attempts)
}

// slowLLM answers nothing until the caller gives up.
type slowLLM struct{}

func (slowLLM) Name() string { return "slow" }

func (slowLLM) Generate(ctx context.Context, _ llm.Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func waitJob(t *testing.T, q *jobs.Queue, id string) *models.Job {
	t.Helper()
	var done *models.Job
	require.Eventually(t, func() bool {
		j, err := q.Get(context.Background(), id)
		if err != nil || !j.Status.Finished() {
			return false
		}
		done = j
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return done
}

func TestCreateJobSlowModelInsertsOnce(t *testing.T) {
	f := newFixture(t, slowLLM{})
	q := jobs.New(f.db, jobs.Config{
		Workers:    2,
		JobTimeout: 200 * time.Millisecond,
		Retry: map[string]jobs.RetryPolicy{
			jobs.KindCreateNote:  {MaxRetries: 2, Delay: time.Millisecond},
			jobs.KindAnalyzeNote: {MaxRetries: 2, Delay: time.Millisecond},
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.svc.RegisterJobs(q)

	ctx, cancel := context.WithCancel(context.Background())
	go q.Run(ctx) //nolint:errcheck
	t.Cleanup(func() {
		cancel()
		<-q.Done()
	})

	job, err := q.Submit(ctx, jobs.KindCreateNote, f.user.ID, "",
		jobs.CreateNotePayload{Title: "Plan", Content: "Quarterly plan draft"})
	require.NoError(t, err)
	done := waitJob(t, q, job.ID)
	assert.Equal(t, models.JobSuccess, done.Status)
	assert.Equal(t, 1, done.Attempts)

	// The follow-up analysis times out and retries; none of that may add rows.
	require.Never(t, func() bool {
		n, err := f.svc.Count(context.Background(), f.user.ID)
		return err != nil || n != 1
	}, 800*time.Millisecond, 20*time.Millisecond)
}

func TestScheduleAnalysisSharesPendingJob(t *testing.T) {
	f := newFixture(t, testutil.FailingLLM())
	q := jobs.New(f.db, jobs.Config{Workers: 1}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.svc.RegisterJobs(q)
	ctx := context.Background()

	note, err := f.db.CreateNote(ctx, models.Note{UserID: f.user.ID, Title: "Trip", Content: "Pack the tent"})
	require.NoError(t, err)

	a, err := f.svc.ScheduleAnalysis(ctx, f.user.ID, note.ID)
	require.NoError(t, err)
	b, err := f.svc.ScheduleAnalysis(ctx, f.user.ID, note.ID)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, a.ID, b.ID)

	_, err = f.svc.ScheduleAnalysis(ctx, f.user.ID, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	content := "Pack the tent and the stove"
	_, err = f.svc.Update(ctx, f.user.ID, note.ID, store.NoteUpdate{Content: &content})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	go q.Run(runCtx) //nolint:errcheck
	t.Cleanup(func() {
		cancel()
		<-q.Done()
	})
	assert.Equal(t, models.JobSuccess, waitJob(t, q, a.ID).Status)

	got, err := f.svc.Get(ctx, f.user.ID, note.ID)
	require.NoError(t, err)
	assert.True(t, got.AIProcessed)
	assert.Equal(t, content, got.Content)
}

func TestScheduleDeleteNeedsQueue(t *testing.T) {
	f := newFixture(t, testutil.FailingLLM())
	_, err := f.svc.ScheduleDelete(context.Background(), f.user.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
