package heuristics

import (
	"strings"
	"testing"
	"time"

	"github.com/starford/notegraph/internal/models"
)

func TestCategorize(t *testing.T) {
	a := New(nil)
	cases := []struct {
		content, want string
	}{
		{"Обсудить бюджет и расход на квартал", "Finance"},
		{"Meeting about the project deadline", "Work"},
		{"Book a flight and hotel for the trip", "Travel"},
		{"", models.GeneralCategory},
		{"lorem ipsum dolor", models.GeneralCategory},
	}
	for _, c := range cases {
		if got := a.Categorize(c.content); got != c.want {
			t.Errorf("Categorize(%q) = %q, want %q", c.content, got, c.want)
		}
	}
}

func TestCategorizeAlwaysInConfiguredSet(t *testing.T) {
	a := New(nil)
	allowed := map[string]bool{}
	for _, n := range a.Rules().CategoryNames() {
		allowed[n] = true
	}
	inputs := []string{"", " ", "работа деньги врач", "🙂🙂", strings.Repeat("idea trip ", 100), "\x00\xff"}
	for _, in := range inputs {
		got := a.Categorize(in)
		if got == "" || !allowed[got] {
			t.Errorf("Categorize(%q) = %q, not in configured set", in, got)
		}
	}
}

func TestImportanceBounds(t *testing.T) {
	a := New(nil)
	inputs := []string{
		"",
		"maybe someday perhaps возможно может быть когда-нибудь",
		"срочно важно критично дедлайн немедленно asap urgent important critical 12.05",
		strings.Repeat("x", 2000),
	}
	for _, in := range inputs {
		got := a.Importance(in)
		if got < models.MinImportance || got > models.MaxImportance {
			t.Errorf("Importance(%.20q) = %d, out of range", in, got)
		}
	}
	if got := a.Importance("plain text"); got != models.DefaultImportance {
		t.Errorf("Importance(neutral) = %d, want %d", got, models.DefaultImportance)
	}
	if got := a.Importance("срочно сдать отчет"); got != 7 {
		t.Errorf("Importance(high) = %d, want 7", got)
	}
}

func TestActionItems(t *testing.T) {
	a := New(nil)
	content := "Нужно купить молоко и хлеб.\nTODO: позвонить маме\n- отправить отчёт\n- отправить отчёт\n- ok"
	got := a.ActionItems(content)
	want := []string{"купить молоко и хлеб", "позвонить маме", "отправить отчёт"}
	if len(got) != len(want) {
		t.Fatalf("ActionItems = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestActionItemsCapped(t *testing.T) {
	a := New(nil)
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("- task number " + strings.Repeat("x", i+1) + "\n")
	}
	if got := a.ActionItems(b.String()); len(got) != 10 {
		t.Errorf("len = %d, want 10", len(got))
	}
}

func TestKeywordsDropStopWords(t *testing.T) {
	a := New(nil)
	got := a.Keywords("Это план для проекта и план для команды")
	want := []string{"план", "проекта", "команды"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Keywords = %v, want %v", got, want)
	}
}

func TestTags(t *testing.T) {
	a := New(nil)
	got := a.Tags("Deploy the #backend API to kubernetes before the meeting")
	want := []string{"backend", "api", "kubernetes", "meeting"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Tags = %v, want %v", got, want)
	}
}

func TestSummary(t *testing.T) {
	a := New(nil)
	if got := a.Summary("short note"); got != "short note" {
		t.Errorf("Summary(short) = %q", got)
	}
	long := strings.Repeat("word ", 100)
	got := a.Summary(long)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != 203 {
		t.Errorf("Summary(long) = %d runes, want 203 ending in ...", len([]rune(got)))
	}
}

func TestSentiment(t *testing.T) {
	a := New(nil)
	if s := a.Sentiment("отлично, большой успех"); s.Label != Positive || s.Confidence != 0.8 {
		t.Errorf("Sentiment = %+v, want positive 0.8", s)
	}
	if s := a.Sentiment("nothing special"); s.Label != Neutral || s.Confidence != 0.7 {
		t.Errorf("Sentiment = %+v, want neutral 0.7", s)
	}
}

func TestDetectLanguage(t *testing.T) {
	a := New(nil)
	if got := a.DetectLanguage("Создай заметку про графы"); got != LangRU {
		t.Errorf("DetectLanguage(ru) = %q", got)
	}
	if got := a.DetectLanguage("Create a note about graph algorithms"); got != LangEN {
		t.Errorf("DetectLanguage(en) = %q", got)
	}
}

func TestTitle(t *testing.T) {
	a := New(nil)
	if got := a.Title("# Graph algorithms overview for the team today\nbody", LangEN); got != "Graph algorithms overview for the" {
		t.Errorf("Title = %q", got)
	}
	if got := a.Title("   \n ", LangRU); got != "Новая заметка" {
		t.Errorf("Title(empty) = %q", got)
	}
}

func TestRelatedNotes(t *testing.T) {
	a := New(nil)
	notes := []models.Note{
		{ID: 1, Title: "Budget", Content: "quarterly budget review finance team"},
		{ID: 2, Title: "Garden", Content: "plant tomatoes"},
	}
	got := a.RelatedNotes("finance team budget review", notes, 3, 5)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("RelatedNotes = %v, want [1]", got)
	}
}

func TestHasTemporalMarkers(t *testing.T) {
	a := New(nil)
	cases := map[string]bool{
		"Встреча с командой завтра в 15:00":            true,
		"Remind me tomorrow at 10am about the dentist": true,
		"Встреча была отличной":                        false,
		"Buy milk tomorrow":                            false,
		"Recall the numbers tomorrow at 10":            false,
		"Prevent regressions tomorrow at 10":           false,
		"Strip the logs tomorrow at 10":                false,
		"Callback wiring tomorrow at 10":               false,
		"Two calls tomorrow at 10":                     true,
		"Напомните завтра в 10 про отчёт":              true,
	}
	for in, want := range cases {
		if got := a.HasTemporalMarkers(in); got != want {
			t.Errorf("HasTemporalMarkers(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseWhen(t *testing.T) {
	now := time.Date(2025, 3, 10, 16, 30, 0, 0, time.Local)
	cases := []struct {
		in   string
		want time.Time
	}{
		{"Remind me tomorrow at 10am about the dentist", time.Date(2025, 3, 11, 10, 0, 0, 0, time.Local)},
		{"завтра в 10", time.Date(2025, 3, 11, 10, 0, 0, 0, time.Local)},
		{"call at 14:45", time.Date(2025, 3, 10, 14, 45, 0, 0, time.Local).AddDate(0, 0, 1)},
		{"встреча 15.04 в 12:00", time.Date(2025, 4, 15, 12, 0, 0, 0, time.Local)},
		{"послезавтра утром", time.Date(2025, 3, 12, 9, 0, 0, 0, time.Local)},
		{"in 3 days", time.Date(2025, 3, 13, 9, 0, 0, 0, time.Local)},
	}
	for _, c := range cases {
		got, ok := ParseWhen(c.in, now)
		if !ok || !got.Equal(c.want) {
			t.Errorf("ParseWhen(%q) = %v %v, want %v", c.in, got, ok, c.want)
		}
	}
	if _, ok := ParseWhen("no time here", now); ok {
		t.Error("ParseWhen should fail without markers")
	}
}

func TestParseWhenPicksEarliestWeekday(t *testing.T) {
	now := time.Date(2025, 3, 10, 16, 30, 0, 0, time.Local) // Monday
	cases := []struct {
		in   string
		want time.Time
	}{
		{"встреча в пятницу, запасной вариант в среду", time.Date(2025, 3, 14, 9, 0, 0, 0, time.Local)},
		{"в среду или в пятницу", time.Date(2025, 3, 12, 9, 0, 0, 0, time.Local)},
		{"во вторник, or friday if busy", time.Date(2025, 3, 11, 9, 0, 0, 0, time.Local)},
		{"sunday, otherwise в четверг", time.Date(2025, 3, 16, 9, 0, 0, 0, time.Local)},
	}
	for _, c := range cases {
		// Repeat so an order-dependent choice would show up.
		for i := 0; i < 20; i++ {
			got, ok := ParseWhen(c.in, now)
			if !ok || !got.Equal(c.want) {
				t.Fatalf("ParseWhen(%q) = %v %v, want %v", c.in, got, ok, c.want)
			}
		}
	}
}
