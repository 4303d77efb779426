package noteservice

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/notegraph/internal/heuristics"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/store"
)

const previewChars = 200

// NoteListItem is the compact note shape of the category views.
type NoteListItem struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Category   string    `json:"category"`
	Importance int       `json:"importance"`
	Tags       []string  `json:"tags"`
	Summary    string    `json:"summary"`
	CreatedAt  time.Time `json:"created_at"`
}

// CategoryGroup is one bucket of the grouped view.
type CategoryGroup struct {
	Category string         `json:"category"`
	Notes    []NoteListItem `json:"notes"`
}

// Categories returns category counts, largest first.
func (s *Service) Categories(ctx context.Context, userID int64) ([]store.CategoryCount, error) {
	return s.db.CategoryCounts(ctx, userID)
}

// ByCategory lists the user's notes in category. General also matches
// notes without a category.
func (s *Service) ByCategory(ctx context.Context, userID int64, category string) ([]NoteListItem, error) {
	notes, err := s.db.NotesByCategory(ctx, userID, strings.TrimSpace(category))
	if err != nil {
		return nil, err
	}
	items := make([]NoteListItem, len(notes))
	for i, n := range notes {
		items[i] = listItem(n)
	}
	return items, nil
}

// Grouped returns every note bucketed by category, largest bucket first.
func (s *Service) Grouped(ctx context.Context, userID int64) ([]CategoryGroup, error) {
	counts, err := s.db.CategoryCounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	groups := make([]CategoryGroup, 0, len(counts))
	for _, c := range counts {
		items, err := s.ByCategory(ctx, userID, c.Name)
		if err != nil {
			return nil, err
		}
		groups = append(groups, CategoryGroup{Category: c.Name, Notes: items})
	}
	sort.SliceStable(groups, func(i, j int) bool { return len(groups[i].Notes) > len(groups[j].Notes) })
	return groups, nil
}

func listItem(n models.Note) NoteListItem {
	category := strings.TrimSpace(n.Category)
	if category == "" {
		category = models.GeneralCategory
	}
	preview := preview(n.Content)
	summary := n.Summary
	if summary == "" {
		summary = preview
	}
	tags := []string(n.Tags)
	if tags == nil {
		tags = []string{}
	}
	return NoteListItem{
		ID:         n.ID,
		Title:      n.Title,
		Content:    preview,
		Category:   category,
		Importance: n.Importance,
		Tags:       tags,
		Summary:    summary,
		CreatedAt:  n.CreatedAt,
	}
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewChars {
		return s
	}
	return heuristics.Truncate(s, previewChars) + "..."
}
