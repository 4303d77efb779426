package webfetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/notegraph/internal/apperr"
)

const page = `<html><head><title>Graph Basics</title><style>p{}</style></head>
<body><nav>Home | About</nav>
<main><h1>Graphs</h1><p>A graph is a set of   nodes.</p><ul><li>BFS</li><li>DFS</li></ul>
<script>alert(1)</script></main><footer>(c)</footer></body></html>`

func TestExtract(t *testing.T) {
	title, text, err := Extract(page)
	if err != nil {
		t.Fatal(err)
	}
	if title != "Graph Basics" {
		t.Errorf("title = %q", title)
	}
	for _, want := range []string{"Graphs", "A graph is a set of nodes.", "- BFS", "- DFS"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
	for _, banned := range []string{"alert", "Home", "(c)", "p{}"} {
		if strings.Contains(text, banned) {
			t.Errorf("text contains %q", banned)
		}
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing user agent")
		}
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(page))
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(strings.Repeat("a", 50)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := New(5*time.Second, 20)
	p, err := f.Fetch(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if p.Title != "Graph Basics" {
		t.Errorf("title = %q", p.Title)
	}

	p, err = f.Fetch(context.Background(), srv.URL+"/plain")
	if err != nil {
		t.Fatalf("Fetch plain: %v", err)
	}
	if p.Content != strings.Repeat("a", 20)+"..." {
		t.Errorf("content = %q", p.Content)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/missing"); !errors.Is(err, apperr.ErrUpstream) {
		t.Errorf("missing page err = %v, want ErrUpstream", err)
	}
	if _, err := f.Fetch(context.Background(), "ftp://x"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("ftp err = %v, want ErrValidation", err)
	}
}
