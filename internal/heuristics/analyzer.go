// Package heuristics is the offline analyzer: keyword and regex rules that
// stand in for every model-backed analysis aspect. Nothing here does I/O
// except rule loading, and no method can fail.
package heuristics

import (
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/starford/notegraph/internal/models"
)

// Sentiment labels.
const (
	Positive = "positive"
	Negative = "negative"
	Neutral  = "neutral"
)

// Language codes produced by DetectLanguage.
const (
	LangRU = "ru"
	LangEN = "en"
)

const (
	maxActionItems = 10
	maxTags        = 5
	maxTopics      = 5
	titleWords     = 5
	titleMaxRunes  = 60
)

var (
	wordRe    = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	hashtagRe = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
	dateRe    = regexp.MustCompile(`\d{1,2}[/.]\d{1,2}`)

	actionRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)нужно\s+([^.!?\n]+)`),
		regexp.MustCompile(`(?i)надо\s+([^.!?\n]+)`),
		regexp.MustCompile(`(?i)сделать\s+([^.!?\n]+)`),
		regexp.MustCompile(`(?i)выполнить\s+([^.!?\n]+)`),
		regexp.MustCompile(`(?i)\bneed to\s+([^.!?\n]+)`),
		regexp.MustCompile(`(?i)\bTODO:?\s*([^.!?\n]+)`),
		regexp.MustCompile(`(?m)^\s*[-•*]\s*([^.!?\n]+)`),
	}
)

// Sentiment is a polarity label with a confidence in [0,1].
type Sentiment struct {
	Label      string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

// Analyzer applies the current Rules. Rules can be swapped at runtime.
type Analyzer struct {
	rules atomic.Pointer[Rules]
}

// New returns an analyzer using r, or the built-in rules when r is nil.
func New(r *Rules) *Analyzer {
	if r == nil {
		r = DefaultRules()
	}
	a := &Analyzer{}
	a.rules.Store(r)
	return a
}

// Rules returns the active rule set.
func (a *Analyzer) Rules() *Rules { return a.rules.Load() }

// SetRules atomically replaces the active rule set.
func (a *Analyzer) SetRules(r *Rules) { a.rules.Store(r) }

// Categorize returns the configured category with the most trigger hits,
// or models.GeneralCategory when nothing matches.
func (a *Analyzer) Categorize(content string) string {
	lower := strings.ToLower(content)
	best, bestScore := models.GeneralCategory, 0
	for _, c := range a.Rules().Categories {
		score := countHits(lower, c.Triggers)
		if score > bestScore {
			best, bestScore = c.Name, score
		}
	}
	return best
}

// Importance scores content on the 1..10 scale starting from the default.
func (a *Analyzer) Importance(content string) int {
	r := a.Rules().Importance
	lower := strings.ToLower(content)
	score := models.DefaultImportance
	score += 2 * countHits(lower, r.High)
	score += countHits(lower, r.Medium)
	score -= countHits(lower, r.Low)
	if r.LengthThreshold > 0 && utf8.RuneCountInString(content) > r.LengthThreshold {
		score++
	}
	if dateRe.MatchString(content) {
		score++
	}
	return models.ClampImportance(score)
}

// ActionItems extracts imperative phrases, TODO markers and bullet items.
func (a *Analyzer) ActionItems(content string) []string {
	var items []string
	seen := map[string]bool{}
	for _, re := range actionRes {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			item := strings.TrimSpace(m[1])
			if utf8.RuneCountInString(item) <= 5 || seen[item] {
				continue
			}
			seen[item] = true
			items = append(items, item)
			if len(items) == maxActionItems {
				return items
			}
		}
	}
	if items == nil {
		return []string{}
	}
	return items
}

// Keywords returns distinct lower-cased words longer than two runes that are
// not stop words, in order of first appearance.
func (a *Analyzer) Keywords(content string) []string {
	stop := toSet(a.Rules().StopWords)
	out := []string{}
	seen := map[string]bool{}
	for _, w := range wordRe.FindAllString(strings.ToLower(content), -1) {
		if utf8.RuneCountInString(w) <= 2 || stop[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// Topics returns the most frequent keywords, ties in order of appearance.
func (a *Analyzer) Topics(content string) []string {
	stop := toSet(a.Rules().StopWords)
	counts := map[string]int{}
	var order []string
	for _, w := range wordRe.FindAllString(strings.ToLower(content), -1) {
		if utf8.RuneCountInString(w) <= 3 || stop[w] {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > maxTopics {
		order = order[:maxTopics]
	}
	if order == nil {
		return []string{}
	}
	return order
}

// Tags collects hashtags, known technical terms and a few generic labels.
func (a *Analyzer) Tags(content string) []string {
	lower := strings.ToLower(content)
	var candidates []string
	for _, m := range hashtagRe.FindAllStringSubmatch(content, -1) {
		candidates = append(candidates, strings.ToLower(m[1]))
	}
	for _, term := range a.Rules().TechTerms {
		if containsWord(lower, term) {
			candidates = append(candidates, term)
		}
	}
	ru := a.DetectLanguage(content) == LangRU
	generic := []struct{ ru, en string }{{"встреча", "meeting"}, {"задача", "task"}, {"идея", "idea"}}
	for _, g := range generic {
		if strings.Contains(lower, g.ru) || strings.Contains(lower, g.en) {
			if ru {
				candidates = append(candidates, g.ru)
			} else {
				candidates = append(candidates, g.en)
			}
		}
	}
	return dedupe(candidates, maxTags)
}

// Summary returns short content as is, otherwise the leading sentences or a
// truncated prefix.
func (a *Analyzer) Summary(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) < 100 {
		return content
	}
	sentences := strings.Split(content, ".")
	if len(sentences) > 3 {
		sentences = sentences[:3]
	}
	s := strings.TrimSpace(strings.Join(sentences, "."))
	if s != "" && utf8.RuneCountInString(s) < 200 {
		return s
	}
	return Truncate(content, 200) + "..."
}

// Sentiment compares positive and negative word hits.
func (a *Analyzer) Sentiment(content string) Sentiment {
	r := a.Rules().Sentiment
	lower := strings.ToLower(content)
	pos, neg := countHits(lower, r.Positive), countHits(lower, r.Negative)
	switch {
	case pos > neg:
		return Sentiment{Label: Positive, Confidence: min(0.9, 0.6+float64(pos-neg)*0.1)}
	case neg > pos:
		return Sentiment{Label: Negative, Confidence: min(0.9, 0.6+float64(neg-pos)*0.1)}
	default:
		return Sentiment{Label: Neutral, Confidence: 0.7}
	}
}

var (
	ruStop = []string{"и", "в", "на", "не", "что", "это", "как", "с", "по", "для"}
	enStop = []string{"the", "and", "is", "to", "of", "in", "for", "it", "on", "with"}
)

// DetectLanguage returns LangRU or LangEN by counting common function words,
// falling back to the dominant script.
func (a *Analyzer) DetectLanguage(content string) string {
	words := wordRe.FindAllString(strings.ToLower(content), -1)
	ru, en := toSet(ruStop), toSet(enStop)
	var ruHits, enHits int
	for _, w := range words {
		if ru[w] {
			ruHits++
		}
		if en[w] {
			enHits++
		}
	}
	if ruHits != enHits {
		if ruHits > enHits {
			return LangRU
		}
		return LangEN
	}
	var cyr, lat int
	for _, r := range content {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyr++
		case unicode.Is(unicode.Latin, r):
			lat++
		}
	}
	if cyr > lat {
		return LangRU
	}
	return LangEN
}

// Title builds a short title from the first words of the first non-empty
// line. Empty content gets the default title of lang.
func (a *Analyzer) Title(content, lang string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#-*• "))
		if line == "" {
			continue
		}
		words := strings.Fields(line)
		if len(words) > titleWords {
			words = words[:titleWords]
		}
		return Truncate(strings.Join(words, " "), titleMaxRunes)
	}
	return DefaultTitle(lang)
}

// RelatedNotes ranks candidates by keyword overlap with content. Only notes
// sharing at least minOverlap keywords are returned, best first.
func (a *Analyzer) RelatedNotes(content string, candidates []models.Note, minOverlap, limit int) []int64 {
	own := toSet(a.Keywords(content))
	type scored struct {
		id    int64
		score int
	}
	var hits []scored
	for _, n := range candidates {
		score := 0
		for _, w := range a.Keywords(n.Title + " " + n.Content) {
			if own[w] {
				score++
			}
		}
		if score >= minOverlap {
			hits = append(hits, scored{n.ID, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	out := []int64{}
	for _, h := range hits {
		if len(out) == limit {
			break
		}
		out = append(out, h.id)
	}
	return out
}

// DefaultTitle is the placeholder title for lang.
func DefaultTitle(lang string) string {
	if lang == LangRU {
		return "Новая заметка"
	}
	return "New Note"
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func countHits(lower string, words []string) int {
	n := 0
	for _, w := range words {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			n++
		}
	}
	return n
}

func containsWord(lower, word string) bool {
	for _, w := range wordRe.FindAllString(lower, -1) {
		if w == word {
			return true
		}
	}
	return false
}

func toSet(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = true
	}
	return m
}

func dedupe(in []string, limit int) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, s := range in {
		if s == "" || seen[s] {
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
