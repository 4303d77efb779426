// Package parser splits note text into YAML front matter and body and pulls
// out the title, hashtags and URLs the rest of the pipeline keys on.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	urlRe     = regexp.MustCompile(`https?://[^\s<>"'\x60\)\]]+`)
	hashtagRe = regexp.MustCompile(`(?:^|\s)#([\p{L}][\p{L}\p{N}_/-]*)`)
)

// Document is the parsed form of a note's text.
type Document struct {
	FrontMatter map[string]any
	Body        string
	Title       string
	Tags        []string
	URLs        []string
}

// Parse never fails: text without valid front matter is all body.
func Parse(text string) *Document {
	fm, body := splitFrontMatter(text)
	return &Document{
		FrontMatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body),
		Tags:        extractTags(body, fm),
		URLs:        ExtractURLs(body),
	}
}

// FirstURL returns the first http(s) URL in text, or "".
func FirstURL(text string) string {
	m := urlRe.FindString(text)
	return strings.TrimRight(m, ".,;:!?")
}

// ExtractURLs returns the distinct http(s) URLs in text in order.
func ExtractURLs(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range urlRe.FindAllString(text, -1) {
		u := strings.TrimRight(m, ".,;:!?")
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func splitFrontMatter(text string) (map[string]any, string) {
	const delim = "---"
	data := []byte(text)
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, text
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, text
	}
	var fm map[string]any
	if err := yaml.Unmarshal(rest[:idx], &fm); err != nil {
		return nil, text
	}
	body := strings.TrimLeft(string(rest[idx+1+len(delim):]), "\n\r")
	return fm, body
}

// extractTags merges front matter tags (list or comma separated string) with
// inline hashtags, lower-cased and deduplicated.
func extractTags(body string, fm map[string]any) []string {
	var raw []string
	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case string:
		raw = append(raw, strings.Split(v, ",")...)
	}
	for _, m := range hashtagRe.FindAllStringSubmatch(body, -1) {
		raw = append(raw, m[1])
	}

	out := []string{}
	seen := map[string]bool{}
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// deriveTitle prefers the front matter title, then the first markdown heading.
func deriveTitle(fm map[string]any, body string) string {
	if s, ok := fm["title"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			h := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			if h != "" && strings.HasPrefix(strings.TrimLeft(trimmed, "#"), " ") {
				return h
			}
		}
	}
	return ""
}
