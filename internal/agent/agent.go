// Package agent turns free-text requests into note graph actions. A request
// is classified into one Intent and handed to that intent's workflow; every
// outcome, including failures, is reported as a Response.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/notegraph/internal/analysis"
	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/calendar"
	"github.com/starford/notegraph/internal/heuristics"
	"github.com/starford/notegraph/internal/llm"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/webfetch"
)

// searchLimit caps how many notes a search request organizes.
const searchLimit = 50

// Notes is the note store the workflows write to.
type Notes interface {
	// Create persists a note without analysis.
	Create(ctx context.Context, userID int64, title, content string) (*models.Note, error)
	// CreateNote persists a note and runs analysis, connection finding and
	// calendar detection on it.
	CreateNote(ctx context.Context, userID int64, title, content string) (*models.Note, error)
	// ScheduleAnalysis analyzes a note written with Create, in the
	// background when a job queue is available.
	ScheduleAnalysis(ctx context.Context, userID, id int64) (*models.Job, error)
	Connect(ctx context.Context, userID, sourceID, targetID int64, relation string) (*models.Connection, error)
	List(ctx context.Context, userID int64, skip, limit int, search string) ([]models.Note, error)
}

// Fetcher downloads web pages for SaveLink.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*webfetch.Page, error)
}

// Response is the outcome of one request. Fields irrelevant to the
// workflow that ran are omitted.
type Response struct {
	Success         bool       `json:"success"`
	Intent          string     `json:"intent,omitempty"`
	Message         string     `json:"message"`
	Error           string     `json:"error,omitempty"`
	NoteID          int64      `json:"note_id,omitempty"`
	Title           string     `json:"title,omitempty"`
	Category        string     `json:"category,omitempty"`
	Importance      int        `json:"importance,omitempty"`
	MainNoteID      int64      `json:"main_note_id,omitempty"`
	StepsCount      int        `json:"steps_count,omitempty"`
	URL             string     `json:"url,omitempty"`
	CalendarEventID string     `json:"calendar_event_id,omitempty"`
	ReminderTime    *time.Time `json:"reminder_time,omitempty"`
	FoundNotes      int        `json:"found_notes,omitempty"`
	OrganizedGroups int        `json:"organized_groups,omitempty"`
	Answer          string     `json:"answer,omitempty"`
}

// Agent routes requests to workflows.
type Agent struct {
	notes    Notes
	analyzer *analysis.Analyzer
	llm      *llm.Client
	rules    *heuristics.Analyzer
	calendar *calendar.Agent
	fetcher  Fetcher
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an agent. cal may be nil when calendar integration is off.
func New(notes Notes, analyzer *analysis.Analyzer, cal *calendar.Agent, fetcher Fetcher, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if fetcher == nil {
		fetcher = webfetch.New(0, 0)
	}
	a := &Agent{
		notes:    notes,
		analyzer: analyzer,
		llm:      analyzer.LLM(),
		rules:    analyzer.Heuristics(),
		calendar: cal,
		fetcher:  fetcher,
		logger:   logger,
		now:      time.Now,
	}
	if cal != nil {
		a.now = cal.Now
	}
	return a
}

// SetClock overrides the clock used to resolve reminder times.
func (a *Agent) SetClock(now func() time.Time) { a.now = now }

// Process classifies request and runs the matching workflow. It never
// returns an error: failures come back with Success false.
func (a *Agent) Process(ctx context.Context, userID int64, request string) Response {
	request = strings.TrimSpace(request)
	if request == "" {
		m := msgs(heuristics.LangEN)
		return Response{Success: false, Message: m.emptyRequest, Error: apperr.Validation("request is empty").Error()}
	}

	c := a.Classify(ctx, request)
	resp, err := a.dispatch(ctx, userID, request, c)
	if err != nil {
		a.logger.Error("agent request failed",
			slog.Int64("user_id", userID), slog.String("intent", c.Intent.String()), slog.String("error", err.Error()))
		return Response{Success: false, Intent: c.Intent.String(), Message: msgs(c.Language).failed, Error: err.Error()}
	}
	if resp.Intent == "" {
		resp.Intent = c.Intent.String()
	}
	return resp
}

func (a *Agent) dispatch(ctx context.Context, userID int64, request string, c Classification) (Response, error) {
	switch c.Intent {
	case CreatePlan:
		return a.createPlan(ctx, userID, request, c)
	case SaveLink:
		return a.saveLink(ctx, userID, c)
	case Reminder:
		return a.reminder(ctx, userID, request, c)
	case Search:
		return a.search(ctx, userID, request, c)
	case General:
		return a.general(ctx, userID, request, c)
	default:
		return a.createNote(ctx, userID, request, c)
	}
}

func (a *Agent) createNote(ctx context.Context, userID int64, request string, c Classification) (Response, error) {
	content := request
	if r := a.analyzer.Compose(ctx, llm.OpComposeNote, request); r.Kind == analysis.KindOk {
		content = r.Value
	}
	note, err := a.notes.CreateNote(ctx, userID, "", content)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Success:    true,
		Intent:     CreateNote.String(),
		NoteID:     note.ID,
		Title:      note.Title,
		Category:   note.Category,
		Importance: note.Importance,
		Message:    fmt.Sprintf(msgs(c.Language).noteCreated, note.Title),
	}, nil
}

func (a *Agent) createPlan(ctx context.Context, userID int64, request string, c Classification) (Response, error) {
	m := msgs(c.Language)
	content := request
	if r := a.analyzer.Compose(ctx, llm.OpComposePlan, request); r.Kind == analysis.KindOk {
		content = r.Value
	}
	main, err := a.notes.Create(ctx, userID, fmt.Sprintf(m.planTitle, orDefault(c.Title, m.planDefault)), content)
	if err != nil {
		return Response{}, err
	}
	a.scheduleAnalysis(ctx, userID, main.ID)

	steps, err := a.llm.PlanSteps(ctx, content)
	if err != nil {
		a.logger.Warn("analysis: fallback", slog.String("aspect", llm.OpPlanSteps), slog.String("error", err.Error()))
		steps = nil
	}
	for i, s := range steps {
		body := orDefault(strings.TrimSpace(s.Description), s.Title)
		step, err := a.notes.Create(ctx, userID, fmt.Sprintf(m.stepTitle, i+1, s.Title), body)
		if err != nil {
			return Response{}, err
		}
		if _, err := a.notes.Connect(ctx, userID, main.ID, step.ID, models.RelationPlanStep); err != nil {
			return Response{}, err
		}
		a.scheduleAnalysis(ctx, userID, step.ID)
	}
	return Response{
		Success:    true,
		MainNoteID: main.ID,
		NoteID:     main.ID,
		StepsCount: len(steps),
		Message:    fmt.Sprintf(m.planCreated, len(steps)),
	}, nil
}

// scheduleAnalysis analyzes a note the agent wrote with Create. The note is
// already saved, so a failure only leaves it to the unprocessed sweep.
func (a *Agent) scheduleAnalysis(ctx context.Context, userID, noteID int64) {
	if _, err := a.notes.ScheduleAnalysis(ctx, userID, noteID); err != nil {
		a.logger.Warn("schedule analysis failed", slog.Int64("note_id", noteID), slog.String("error", err.Error()))
	}
}

func (a *Agent) saveLink(ctx context.Context, userID int64, c Classification) (Response, error) {
	m := msgs(c.Language)
	if c.URL == "" {
		return Response{Success: false, Message: m.urlMissing, Error: m.urlMissing}, nil
	}
	page, err := a.fetcher.Fetch(ctx, c.URL)
	if err != nil {
		return Response{}, err
	}
	title := orDefault(c.Title, orDefault(page.Title, fmt.Sprintf(m.savedFrom, c.URL)))
	note, err := a.notes.Create(ctx, userID, title, fmt.Sprintf(m.source, c.URL, page.Content))
	if err != nil {
		return Response{}, err
	}
	a.scheduleAnalysis(ctx, userID, note.ID)
	return Response{
		Success: true,
		NoteID:  note.ID,
		Title:   note.Title,
		URL:     c.URL,
		Message: fmt.Sprintf(m.contentSaved, c.URL),
	}, nil
}

// ReminderWindow resolves when a reminder starts and ends: the model's
// answer first, then the local parser, then one hour from now. Events
// without an explicit end last one hour.
func (a *Agent) ReminderWindow(ctx context.Context, request string) (start, end time.Time) {
	now := a.now()
	start, end, ok, err := a.llm.ReminderTime(ctx, request, now)
	if err == nil && ok {
		return start, end
	}
	cause := "no time in answer"
	if err != nil {
		cause = err.Error()
	}
	a.logger.Warn("analysis: fallback", slog.String("aspect", llm.OpReminderTime), slog.String("error", cause))
	if t, ok := heuristics.ParseWhen(request, now); ok {
		return t, t.Add(time.Hour)
	}
	start = now.Add(time.Hour)
	return start, start.Add(time.Hour)
}

func (a *Agent) reminder(ctx context.Context, userID int64, request string, c Classification) (Response, error) {
	m := msgs(c.Language)
	start, end := a.ReminderWindow(ctx, request)
	description := orDefault(c.Description, request)

	var ev *calendar.Event
	if a.calendar != nil {
		var err error
		ev, err = a.calendar.CreateEvent(ctx, userID, llm.EventDraft{
			Title:           orDefault(c.Title, m.eventDefault),
			Description:     description,
			Start:           start,
			End:             end,
			ReminderMinutes: calendar.DefaultReminderMinutes,
		})
		switch {
		case errors.Is(err, apperr.ErrAuthRequired):
			ev = nil
		case err != nil:
			return Response{}, err
		}
	}

	eventID := ""
	if ev != nil {
		eventID = ev.ID
	}
	note, err := a.notes.Create(ctx, userID,
		fmt.Sprintf(m.reminderTitle, orDefault(c.Title, m.reminderDefault)),
		fmt.Sprintf(m.reminderBody, start.Format(time.RFC3339), description, eventID))
	if err != nil {
		return Response{}, err
	}
	a.scheduleAnalysis(ctx, userID, note.ID)

	resp := Response{Success: true, NoteID: note.ID, ReminderTime: &start, Message: m.reminderNoCal}
	if ev != nil {
		if _, err := a.calendar.Link(ctx, userID, note.ID, ev, true); err != nil {
			return Response{}, err
		}
		resp.CalendarEventID = ev.ID
		resp.Message = m.reminderCreated
	}
	return resp, nil
}

func (a *Agent) search(ctx context.Context, userID int64, request string, c Classification) (Response, error) {
	m := msgs(c.Language)
	found, err := a.notes.List(ctx, userID, 0, searchLimit, orDefault(c.SearchQuery, request))
	if err != nil {
		return Response{}, err
	}
	if len(found) == 0 {
		return a.createNote(ctx, userID, request, c)
	}

	groups := a.analyzer.Organize(ctx, found).Value
	note, err := a.notes.Create(ctx, userID,
		fmt.Sprintf(m.summaryTitle, orDefault(c.Title, m.summaryDefault)),
		summarize(m, request, found, groups))
	if err != nil {
		return Response{}, err
	}
	for _, n := range found {
		if _, err := a.notes.Connect(ctx, userID, note.ID, n.ID, models.RelationRelated); err != nil && !errors.Is(err, apperr.ErrAlreadyExists) {
			return Response{}, err
		}
	}
	a.scheduleAnalysis(ctx, userID, note.ID)
	return Response{
		Success:         true,
		NoteID:          note.ID,
		FoundNotes:      len(found),
		OrganizedGroups: len(groups),
		Message:         fmt.Sprintf(m.found, len(found)),
	}, nil
}

// summarize lists the found notes under their groups. Notes no group
// claimed are listed last.
func summarize(m messages, request string, found []models.Note, groups []llm.Group) string {
	byID := make(map[int64]models.Note, len(found))
	for _, n := range found {
		byID[n.ID] = n
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, m.summaryHeader, request, len(found))
	listed := map[int64]bool{}
	for _, g := range groups {
		fmt.Fprintf(&sb, "\n\n## %s\n", g.Name)
		if g.Description != "" {
			sb.WriteString(g.Description + "\n")
		}
		for _, id := range g.NoteIDs {
			if n, ok := byID[id]; ok && !listed[id] {
				listed[id] = true
				fmt.Fprintf(&sb, "- %s (#%d)\n", n.Title, n.ID)
			}
		}
	}
	if len(listed) < len(found) {
		fmt.Fprintf(&sb, "\n\n## %s\n", m.summaryUngrouped)
		for _, n := range found {
			if !listed[n.ID] {
				fmt.Fprintf(&sb, "- %s (#%d)\n", n.Title, n.ID)
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func (a *Agent) general(ctx context.Context, userID int64, request string, c Classification) (Response, error) {
	m := msgs(c.Language)
	r := a.analyzer.Compose(ctx, llm.OpAnswer, request)
	if r.Kind != analysis.KindOk {
		return Response{}, r.Err()
	}
	note, err := a.notes.Create(ctx, userID,
		fmt.Sprintf(m.answerTitle, orDefault(c.Title, m.answerDefault)),
		fmt.Sprintf(m.answerBody, request, r.Value))
	if err != nil {
		return Response{}, err
	}
	a.scheduleAnalysis(ctx, userID, note.ID)
	return Response{Success: true, NoteID: note.ID, Answer: r.Value, Message: m.answerSaved}, nil
}
