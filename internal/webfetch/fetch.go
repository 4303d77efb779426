// Package webfetch downloads a page and reduces it to readable text.
package webfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/starford/notegraph/internal/apperr"
)

const (
	userAgent    = "Mozilla/5.0 (compatible; notegraph/1.0)"
	maxBodyBytes = 2 << 20
	maxDepth     = 50
)

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(`[ \t]{2,}`)
)

// Page is the extracted text of a fetched URL.
type Page struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Fetcher downloads pages over HTTP.
type Fetcher struct {
	client   *http.Client
	maxChars int
}

// New returns a fetcher with the given timeout and output cap in runes.
func New(timeout time.Duration, maxChars int) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxChars <= 0 {
		maxChars = 5000
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}, maxChars: maxChars}
}

// Fetch downloads url and extracts its text. The main or article element
// is preferred over the whole body when present.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, apperr.Validation("webfetch: unsupported URL " + url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Validation("webfetch: bad URL: " + err.Error())
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webfetch: get %s: %v: %w", url, err, apperr.ErrUpstream)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webfetch: %s: HTTP %d: %w", url, resp.StatusCode, apperr.ErrUpstream)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("webfetch: read %s: %v: %w", url, err, apperr.ErrUpstream)
	}

	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "text/plain") || strings.Contains(ct, "text/markdown") {
		return &Page{URL: url, Content: clip(strings.TrimSpace(string(body)), f.maxChars)}, nil
	}

	title, text, err := Extract(string(body))
	if err != nil {
		return nil, fmt.Errorf("webfetch: parse %s: %w", url, err)
	}
	return &Page{URL: url, Title: title, Content: clip(text, f.maxChars)}, nil
}

// Extract returns the document title and its readable text.
func Extract(doc string) (title, text string, err error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", "", err
	}
	if t := find(root, "title", 0); t != nil {
		var sb strings.Builder
		for c := t.FirstChild; c != nil; c = c.NextSibling {
			collect(c, &sb, 1)
		}
		title = strings.TrimSpace(sb.String())
	}
	start := find(root, "main", 0)
	if start == nil {
		start = find(root, "article", 0)
	}
	if start == nil {
		start = find(root, "body", 0)
	}
	if start == nil {
		start = root
	}
	var sb strings.Builder
	collect(start, &sb, 0)
	return title, clean(sb.String()), nil
}

func find(n *html.Node, tag string, depth int) *html.Node {
	if depth > maxDepth {
		return nil
	}
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, tag, depth+1); found != nil {
			return found
		}
	}
	return nil
}

func collect(n *html.Node, sb *strings.Builder, depth int) {
	if depth > maxDepth {
		return
	}
	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "header", "title":
			return
		case "p", "div", "section", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
			sb.WriteString("\n\n")
		case "br":
			sb.WriteString("\n")
		case "li":
			sb.WriteString("\n- ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c, sb, depth+1)
	}
}

func clean(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(multiSpace.ReplaceAllString(l, " "))
	}
	s = strings.Join(lines, "\n")
	s = multiNewline.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
