package agent

import "testing"

func TestKeywordIntent(t *testing.T) {
	tests := []struct {
		request string
		want    Intent
	}{
		{"Remind me tomorrow at 10am about the dentist", Reminder},
		{"Напомни купить хлеб", Reminder},
		{"save https://go.dev/doc for later", SaveLink},
		{"Составь план изучения Rust", CreatePlan},
		{"find everything about budget", Search},
		{"найди заметки про отпуск", Search},
		{"What is a monad?", General},
		{"почему небо синее", General},
		{"Create a note about graph algorithms", CreateNote},
	}
	for _, tt := range tests {
		if got := keywordIntent(tt.request); got != tt.want {
			t.Errorf("keywordIntent(%q) = %v, want %v", tt.request, got, tt.want)
		}
	}
}

func TestParseIntent(t *testing.T) {
	for i, name := range intentNames {
		got, ok := ParseIntent(" " + name + " ")
		if !ok || got != Intent(i) {
			t.Errorf("ParseIntent(%q) = %v, %v", name, got, ok)
		}
	}
	if _, ok := ParseIntent("launch_rocket"); ok {
		t.Error("unknown label parsed")
	}
	if got := Intent(200).String(); got != "unknown" {
		t.Errorf("String() = %q", got)
	}
}

func TestSearchTerm(t *testing.T) {
	tests := map[string]string{
		"find everything about budget":  "budget",
		"найди все заметки про отпуск":  "отпуск",
		"search for Q3 roadmap":         "q3 roadmap",
		"find":                          "find",
	}
	for in, want := range tests {
		if got := SearchTerm(in); got != want {
			t.Errorf("SearchTerm(%q) = %q, want %q", in, got, want)
		}
	}
}
