package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Operation names carried in Request.Op.
const (
	OpCategorize   = "categorize"
	OpImportance   = "importance"
	OpSummary      = "summary"
	OpTags         = "tags"
	OpTopics       = "topics"
	OpKeywords     = "keywords"
	OpSentiment    = "sentiment"
	OpActionItems  = "action_items"
	OpConnections  = "connections"
	OpOrganize     = "organize"
	OpTitle        = "title"
	OpLanguage     = "language"
	OpIntent       = "intent"
	OpComposeNote  = "compose_note"
	OpComposePlan  = "compose_plan"
	OpPlanSteps    = "plan_steps"
	OpReminderTime = "reminder_time"
	OpEvents       = "events"
	OpAnswer       = "answer"
)

const (
	maxTags     = 7
	maxTagRunes = 30
	maxTopics   = 5
	maxKeywords = 10
	maxActions  = 10
)

// NoteRef is the slice of a note the model sees.
type NoteRef struct {
	ID       int64
	Title    string
	Content  string
	Category string
}

// ConnectionSuggestion is a proposed edge from the analyzed note to NoteID.
type ConnectionSuggestion struct {
	NoteID   int64  `json:"note_id"`
	Relation string `json:"relation"`
	Reason   string `json:"reason,omitempty"`
}

// Group is a thematic cluster of notes.
type Group struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	NoteIDs     []int64 `json:"note_ids"`
}

// Sentiment is the model's polarity verdict.
type Sentiment struct {
	Label      string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

// IntentDraft is the raw classifier output. Intent is unvalidated text.
type IntentDraft struct {
	Intent       string `json:"intent"`
	Title        string `json:"title"`
	Category     string `json:"category"`
	Description  string `json:"description"`
	URL          string `json:"url"`
	SearchQuery  string `json:"search_query"`
	ReminderTime string `json:"reminder_time"`
	Language     string `json:"language"`
}

// PlanStep is one step of a generated plan.
type PlanStep struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// EventDraft is a calendar event extracted from note text.
type EventDraft struct {
	Title           string
	Description     string
	Location        string
	Start           time.Time
	End             time.Time
	AllDay          bool
	ReminderMinutes int
}

// Client exposes one method per analysis aspect.
type Client struct {
	p Provider
}

// NewClient wraps p.
func NewClient(p Provider) *Client {
	if p == nil {
		p = Disabled{}
	}
	return &Client{p: p}
}

// ProviderName reports the configured backend.
func (c *Client) ProviderName() string { return c.p.Name() }

func (c *Client) call(ctx context.Context, op, prompt string, temp float32, maxTokens int) (string, error) {
	return c.p.Generate(ctx, Request{Op: op, System: systemAnalyst, Prompt: prompt, Temperature: temp, MaxTokens: maxTokens})
}

// Categorize returns one of categories, or "" if the answer is not in the set.
func (c *Client) Categorize(ctx context.Context, content string, categories []string) (string, error) {
	out, err := c.call(ctx, OpCategorize, promptCategorize(content, categories), tempClassify, 20)
	if err != nil {
		return "", err
	}
	answer := strings.Trim(strings.TrimSpace(firstLine(out)), `"'.*`)
	for _, cat := range categories {
		if strings.EqualFold(answer, cat) {
			return cat, nil
		}
	}
	return "", nil
}

var intRe = regexp.MustCompile(`\d+`)

// Importance returns a score in [1,10], or 0 if the answer holds none.
func (c *Client) Importance(ctx context.Context, content string) (int, error) {
	out, err := c.call(ctx, OpImportance, promptImportance(content), tempClassify, 10)
	if err != nil {
		return 0, err
	}
	m := intRe.FindString(out)
	v, convErr := strconv.Atoi(m)
	if convErr != nil || v < 1 || v > 10 {
		return 0, nil
	}
	return v, nil
}

// Summarize returns a short summary, possibly empty.
func (c *Client) Summarize(ctx context.Context, content string) (string, error) {
	out, err := c.call(ctx, OpSummary, promptSummary(content), tempExtract, 200)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Tags returns up to 7 tags of at most 30 runes each.
func (c *Client) Tags(ctx context.Context, content string) ([]string, error) {
	out, err := c.call(ctx, OpTags, promptTags(content), tempExtract, 100)
	if err != nil {
		return nil, err
	}
	return cleanStrings(parseStringArray(out), maxTags, maxTagRunes, true), nil
}

// Topics returns up to 5 topics.
func (c *Client) Topics(ctx context.Context, content string) ([]string, error) {
	out, err := c.call(ctx, OpTopics, promptTopics(content), tempExtract, 100)
	if err != nil {
		return nil, err
	}
	return cleanStrings(parseStringArray(out), maxTopics, 60, false), nil
}

// Keywords returns up to 10 keywords.
func (c *Client) Keywords(ctx context.Context, content string) ([]string, error) {
	out, err := c.call(ctx, OpKeywords, promptKeywords(content), tempClassify, 100)
	if err != nil {
		return nil, err
	}
	return cleanStrings(parseStringArray(out), maxKeywords, 60, true), nil
}

// ActionItems returns up to 10 tasks found in the content.
func (c *Client) ActionItems(ctx context.Context, content string) ([]string, error) {
	out, err := c.call(ctx, OpActionItems, promptActionItems(content), tempExtract, 300)
	if err != nil {
		return nil, err
	}
	return cleanStrings(parseStringArray(out), maxActions, 200, false), nil
}

// Sentiment returns the polarity; Label is empty on malformed output.
func (c *Client) Sentiment(ctx context.Context, content string) (Sentiment, error) {
	out, err := c.call(ctx, OpSentiment, promptSentiment(content), tempClassify, 50)
	if err != nil {
		return Sentiment{}, err
	}
	var s Sentiment
	if json.Unmarshal([]byte(extractJSON(out, '{', '}')), &s) != nil {
		return Sentiment{}, nil
	}
	s.Label = strings.ToLower(strings.TrimSpace(s.Label))
	switch s.Label {
	case "positive", "negative", "neutral":
	default:
		return Sentiment{}, nil
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		s.Confidence = 0.5
	}
	return s, nil
}

// FindConnections proposes edges to candidates. Suggestions pointing
// outside the candidate set are dropped.
func (c *Client) FindConnections(ctx context.Context, content string, candidates []NoteRef) ([]ConnectionSuggestion, error) {
	if len(candidates) == 0 {
		return []ConnectionSuggestion{}, nil
	}
	out, err := c.call(ctx, OpConnections, promptConnections(content, candidates), tempClassify, 500)
	if err != nil {
		return nil, err
	}
	var raw []ConnectionSuggestion
	if json.Unmarshal([]byte(extractJSON(out, '[', ']')), &raw) != nil {
		return []ConnectionSuggestion{}, nil
	}
	known := make(map[int64]bool, len(candidates))
	for _, n := range candidates {
		known[n.ID] = true
	}
	res := []ConnectionSuggestion{}
	seen := map[int64]bool{}
	for _, s := range raw {
		if !known[s.NoteID] || seen[s.NoteID] {
			continue
		}
		seen[s.NoteID] = true
		s.Relation = strings.ToUpper(strings.TrimSpace(s.Relation))
		res = append(res, s)
	}
	return res, nil
}

// Organize groups notes. Groups referencing unknown ids lose those ids;
// groups left with fewer than two notes are dropped.
func (c *Client) Organize(ctx context.Context, notes []NoteRef) ([]Group, error) {
	out, err := c.call(ctx, OpOrganize, promptOrganize(notes), tempExtract, 800)
	if err != nil {
		return nil, err
	}
	var raw []Group
	if json.Unmarshal([]byte(extractJSON(out, '[', ']')), &raw) != nil {
		return []Group{}, nil
	}
	known := make(map[int64]bool, len(notes))
	for _, n := range notes {
		known[n.ID] = true
	}
	res := []Group{}
	for _, g := range raw {
		var ids []int64
		for _, id := range g.NoteIDs {
			if known[id] {
				ids = append(ids, id)
			}
		}
		if len(ids) < 2 || strings.TrimSpace(g.Name) == "" {
			continue
		}
		g.NoteIDs = ids
		res = append(res, g)
	}
	return res, nil
}

// Title returns a short title, or "" on an empty answer.
func (c *Client) Title(ctx context.Context, content string) (string, error) {
	out, err := c.call(ctx, OpTitle, promptTitle(content), tempExtract, 30)
	if err != nil {
		return "", err
	}
	t := strings.Trim(strings.TrimSpace(firstLine(out)), `"'«»#* `)
	return clip(t, 100), nil
}

// DetectLanguage returns "ru" or "en", or "" when the answer is neither.
func (c *Client) DetectLanguage(ctx context.Context, content string) (string, error) {
	out, err := c.call(ctx, OpLanguage, promptLanguage(content), tempClassify, 5)
	if err != nil {
		return "", err
	}
	code := strings.ToLower(strings.Trim(strings.TrimSpace(out), `"'.`))
	switch {
	case strings.HasPrefix(code, "ru"):
		return "ru", nil
	case strings.HasPrefix(code, "en"):
		return "en", nil
	}
	return "", nil
}

// ClassifyIntent returns the classifier's structured answer. Intent is
// empty when the answer could not be parsed.
func (c *Client) ClassifyIntent(ctx context.Context, request string) (IntentDraft, error) {
	out, err := c.call(ctx, OpIntent, promptIntent(request), tempClassify, 300)
	if err != nil {
		return IntentDraft{}, err
	}
	var d IntentDraft
	if json.Unmarshal([]byte(extractJSON(out, '{', '}')), &d) != nil {
		return IntentDraft{}, nil
	}
	d.Intent = strings.ToLower(strings.TrimSpace(d.Intent))
	return d, nil
}

// ComposeNote writes note content for request.
func (c *Client) ComposeNote(ctx context.Context, request string) (string, error) {
	out, err := c.call(ctx, OpComposeNote, promptComposeNote(request), tempGenerate, 1200)
	return strings.TrimSpace(out), err
}

// ComposePlan writes a step by step plan for request.
func (c *Client) ComposePlan(ctx context.Context, request string) (string, error) {
	out, err := c.call(ctx, OpComposePlan, promptComposePlan(request), tempGenerate, 1500)
	return strings.TrimSpace(out), err
}

// PlanSteps extracts discrete steps from a plan; empty on malformed output.
func (c *Client) PlanSteps(ctx context.Context, plan string) ([]PlanStep, error) {
	out, err := c.call(ctx, OpPlanSteps, promptPlanSteps(plan), tempClassify, 1000)
	if err != nil {
		return nil, err
	}
	var raw []PlanStep
	if json.Unmarshal([]byte(extractJSON(out, '[', ']')), &raw) != nil {
		return []PlanStep{}, nil
	}
	steps := []PlanStep{}
	for _, s := range raw {
		if strings.TrimSpace(s.Title) != "" {
			steps = append(steps, s)
		}
	}
	return steps, nil
}

// ReminderTime extracts the start and end of a reminder. ok is false when
// the answer has no parseable start.
func (c *Client) ReminderTime(ctx context.Context, request string, now time.Time) (start, end time.Time, ok bool, err error) {
	out, err := c.call(ctx, OpReminderTime, promptReminder(request, now), tempClassify, 100)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	var raw struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if json.Unmarshal([]byte(extractJSON(out, '{', '}')), &raw) != nil {
		return time.Time{}, time.Time{}, false, nil
	}
	start, ok = parseTime(raw.Start, now.Location())
	if !ok {
		return time.Time{}, time.Time{}, false, nil
	}
	end, endOK := parseTime(raw.End, now.Location())
	if !endOK || !end.After(start) {
		end = start.Add(time.Hour)
	}
	return start, end, true, nil
}

// ExtractEvents finds calendar events in note content. Entries without a
// parseable start are skipped.
func (c *Client) ExtractEvents(ctx context.Context, content string, now time.Time) ([]EventDraft, error) {
	out, err := c.call(ctx, OpEvents, promptEvents(content, now), tempExtract, 800)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Title           string `json:"title"`
		Description     string `json:"description"`
		StartTime       string `json:"start_time"`
		EndTime         string `json:"end_time"`
		Location        string `json:"location"`
		IsAllDay        bool   `json:"is_all_day"`
		ReminderMinutes *int   `json:"reminder_minutes"`
	}
	text := strings.TrimSpace(out)
	if obj := extractJSON(text, '{', '}'); strings.HasPrefix(text, "{") && obj != "" {
		text = "[" + obj + "]"
	}
	if json.Unmarshal([]byte(extractJSON(text, '[', ']')), &raw) != nil {
		return []EventDraft{}, nil
	}
	events := []EventDraft{}
	for _, r := range raw {
		start, ok := parseTime(r.StartTime, now.Location())
		if !ok || strings.TrimSpace(r.Title) == "" {
			continue
		}
		end, endOK := parseTime(r.EndTime, now.Location())
		if !endOK || !end.After(start) {
			end = start.Add(time.Hour)
		}
		reminder := 30
		if r.ReminderMinutes != nil && *r.ReminderMinutes >= 0 {
			reminder = *r.ReminderMinutes
		}
		events = append(events, EventDraft{
			Title: r.Title, Description: r.Description, Location: r.Location,
			Start: start, End: end, AllDay: r.IsAllDay, ReminderMinutes: reminder,
		})
	}
	return events, nil
}

// Answer responds to an open question.
func (c *Client) Answer(ctx context.Context, question string) (string, error) {
	out, err := c.call(ctx, OpAnswer, promptAnswer(question), tempGenerate, 1000)
	return strings.TrimSpace(out), err
}

// extractJSON returns the outermost openCh..closeCh span of text, skipping code
// fences, or "" if there is none.
func extractJSON(text string, openCh, closeCh byte) string {
	start := strings.IndexByte(text, openCh)
	end := strings.LastIndexByte(text, closeCh)
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func parseStringArray(out string) []string {
	var arr []string
	if json.Unmarshal([]byte(extractJSON(out, '[', ']')), &arr) != nil {
		return nil
	}
	return arr
}

func cleanStrings(in []string, limit, maxRunes int, lower bool) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "#"))
		if lower {
			s = strings.ToLower(s)
		}
		if s == "" || seen[s] || utf8.RuneCountInString(s) > maxRunes {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func parseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func firstLine(s string) string {
	if i := strings.IndexByte(strings.TrimSpace(s), '\n'); i >= 0 {
		return strings.TrimSpace(s)[:i]
	}
	return s
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
