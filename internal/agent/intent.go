package agent

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/starford/notegraph/internal/heuristics"
	"github.com/starford/notegraph/internal/llm"
	"github.com/starford/notegraph/internal/parser"
)

// Intent is the action a free-text request asks for.
type Intent uint8

const (
	CreateNote Intent = iota
	CreatePlan
	SaveLink
	Reminder
	Search
	General
)

var intentNames = [...]string{
	CreateNote: "create_note",
	CreatePlan: "create_plan",
	SaveLink:   "save_link",
	Reminder:   "reminder",
	Search:     "search",
	General:    "general",
}

func (i Intent) String() string {
	if int(i) < len(intentNames) {
		return intentNames[i]
	}
	return "unknown"
}

// ParseIntent maps a classifier label to an Intent.
func ParseIntent(s string) (Intent, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range intentNames {
		if name == s {
			return Intent(i), true
		}
	}
	return CreateNote, false
}

// Classification is a classified request plus the fields the classifier
// extracted for the chosen workflow.
type Classification struct {
	Intent      Intent
	Title       string
	Category    string
	Description string
	URL         string
	SearchQuery string
	Language    string
	// FromModel is false when the keyword fallback decided the intent.
	FromModel bool
}

var (
	reminderWords = []string{"remind", "reminder", "напомни", "напомнить", "напоминание"}
	planWords     = []string{"plan", "roadmap", "learning path", "план", "дорожн"}
	searchWords   = []string{"find", "search", "look up", "show me", "найди", "найти", "поиск", "покажи", "поищи"}
	questionWords = []string{"what", "how", "why", "who", "when", "where", "что", "как", "почему", "зачем", "кто", "где"}
	// fillerWords are dropped when deriving a search term from the request.
	fillerWords = map[string]bool{
		"find": true, "search": true, "for": true, "everything": true, "all": true, "about": true,
		"notes": true, "note": true, "my": true, "me": true, "show": true, "the": true, "on": true, "look": true, "up": true,
		"найди": true, "найти": true, "поищи": true, "покажи": true, "поиск": true, "все": true, "всё": true,
		"про": true, "о": true, "об": true, "обо": true, "заметки": true, "заметку": true, "мои": true, "по": true,
	}
)

// Classify decides the intent of request. A failed or unparseable model
// answer falls back to keyword matching.
func (a *Agent) Classify(ctx context.Context, request string) Classification {
	draft, err := a.llm.ClassifyIntent(ctx, request)
	intent, ok := ParseIntent(draft.Intent)
	c := Classification{
		Intent:      intent,
		Title:       strings.TrimSpace(draft.Title),
		Category:    strings.TrimSpace(draft.Category),
		Description: strings.TrimSpace(draft.Description),
		URL:         strings.TrimSpace(draft.URL),
		SearchQuery: strings.TrimSpace(draft.SearchQuery),
		FromModel:   err == nil && ok,
	}
	if !c.FromModel {
		cause := "unknown intent " + draft.Intent
		if err != nil {
			cause = err.Error()
		}
		a.logger.Warn("analysis: fallback", slog.String("aspect", llm.OpIntent), slog.String("error", cause))
		c.Intent = keywordIntent(request)
	}

	switch lang := strings.ToLower(draft.Language); lang {
	case heuristics.LangRU, heuristics.LangEN:
		c.Language = lang
	default:
		c.Language = a.rules.DetectLanguage(request)
	}
	if c.URL == "" {
		c.URL = parser.FirstURL(request)
	}
	if c.Intent == Search && c.SearchQuery == "" {
		c.SearchQuery = SearchTerm(request)
	}
	return c
}

func keywordIntent(request string) Intent {
	lower := strings.ToLower(request)
	switch {
	case containsAny(lower, reminderWords):
		return Reminder
	case parser.FirstURL(request) != "":
		return SaveLink
	case containsAny(lower, planWords):
		return CreatePlan
	case containsAny(lower, searchWords):
		return Search
	case isQuestion(lower):
		return General
	}
	return CreateNote
}

func isQuestion(lower string) bool {
	lower = strings.TrimSpace(lower)
	if strings.HasSuffix(lower, "?") {
		return true
	}
	first, _, _ := strings.Cut(lower, " ")
	for _, w := range questionWords {
		if first == w {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// SearchTerm strips command and filler words from a search request.
// It returns the request unchanged when nothing else is left.
func SearchTerm(request string) string {
	words := strings.FieldsFunc(strings.ToLower(request), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	kept := words[:0]
	for _, w := range words {
		if !fillerWords[w] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return strings.TrimSpace(request)
	}
	return strings.Join(kept, " ")
}
