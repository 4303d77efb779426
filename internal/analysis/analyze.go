package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/starford/notegraph/internal/checksum"
	"github.com/starford/notegraph/internal/heuristics"
	"github.com/starford/notegraph/internal/llm"
	"github.com/starford/notegraph/internal/models"
)

// Analysis is the full set of aspects for one piece of content. Every field
// is always populated; Fallbacks names the aspects that did not come from
// the model.
type Analysis struct {
	Category    string               `json:"category"`
	Importance  int                  `json:"importance"`
	Tags        []string             `json:"tags"`
	Summary     string               `json:"summary"`
	Topics      []string             `json:"topics"`
	Keywords    []string             `json:"keywords"`
	Sentiment   heuristics.Sentiment `json:"sentiment"`
	ActionItems []string             `json:"action_items"`
	Fallbacks   []string             `json:"fallbacks,omitempty"`
}

const opFull = "full_analysis"

// Analyze computes every aspect concurrently. Aspects share only the
// immutable input and write disjoint fields, so no locking is needed beyond
// the fallback list.
func (a *Analyzer) Analyze(ctx context.Context, content string) *Analysis {
	key := checksum.Key(opFull, content)
	if a.cache != nil {
		if raw, ok, err := a.cache.CacheGet(ctx, key); err == nil && ok {
			var cached Analysis
			if json.Unmarshal(raw, &cached) == nil {
				return &cached
			}
		}
	}

	out := &Analysis{}
	kinds := make([]Kind, 8)
	names := []string{llm.OpCategorize, llm.OpImportance, llm.OpTags, llm.OpSummary,
		llm.OpTopics, llm.OpKeywords, llm.OpSentiment, llm.OpActionItems}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r := a.Category(gctx, content)
		out.Category, kinds[0] = r.Value, r.Kind
		return nil
	})
	g.Go(func() error {
		r := a.Importance(gctx, content)
		out.Importance, kinds[1] = r.Value, r.Kind
		return nil
	})
	g.Go(func() error {
		r := a.Tags(gctx, content)
		out.Tags, kinds[2] = r.Value, r.Kind
		return nil
	})
	g.Go(func() error {
		r := a.Summary(gctx, content)
		out.Summary, kinds[3] = r.Value, r.Kind
		return nil
	})
	g.Go(func() error {
		r := a.Topics(gctx, content)
		out.Topics, kinds[4] = r.Value, r.Kind
		return nil
	})
	g.Go(func() error {
		r := a.Keywords(gctx, content)
		out.Keywords, kinds[5] = r.Value, r.Kind
		return nil
	})
	g.Go(func() error {
		r := a.Sentiment(gctx, content)
		out.Sentiment, kinds[6] = r.Value, r.Kind
		return nil
	})
	g.Go(func() error {
		r := a.ActionItems(gctx, content)
		out.ActionItems, kinds[7] = r.Value, r.Kind
		return nil
	})
	_ = g.Wait()

	for i, k := range kinds {
		if k != KindOk {
			out.Fallbacks = append(out.Fallbacks, names[i])
		}
	}
	normalize(out)

	if a.cache != nil && len(out.Fallbacks) == 0 {
		if raw, err := json.Marshal(out); err == nil {
			_ = a.cache.CacheSet(ctx, key, raw, a.cfg.TTL.Full)
		}
	}
	return out
}

func normalize(an *Analysis) {
	if an.Category == "" {
		an.Category = models.GeneralCategory
	}
	if an.Importance == 0 {
		an.Importance = models.DefaultImportance
	}
	an.Importance = models.ClampImportance(an.Importance)
	if an.Tags == nil {
		an.Tags = []string{}
	}
	if an.Topics == nil {
		an.Topics = []string{}
	}
	if an.Keywords == nil {
		an.Keywords = []string{}
	}
	if an.ActionItems == nil {
		an.ActionItems = []string{}
	}
	if an.Sentiment.Label == "" {
		an.Sentiment = heuristics.Sentiment{Label: heuristics.Neutral, Confidence: 0.5}
	}
}

// FindConnections proposes edges from note to the most recent notes in
// window. The note itself is excluded. The caller validates ownership and
// duplicates before persisting.
func (a *Analyzer) FindConnections(ctx context.Context, note models.Note, window []models.Note) Result[[]llm.ConnectionSuggestion] {
	candidates := make([]models.Note, 0, len(window))
	for _, n := range window {
		if n.ID != note.ID {
			candidates = append(candidates, n)
		}
		if len(candidates) == a.cfg.ConnectionWindow {
			break
		}
	}
	if len(candidates) == 0 {
		return Ok([]llm.ConnectionSuggestion{})
	}

	content := note.Title + "\n" + note.Content
	refs := make([]llm.NoteRef, len(candidates))
	for i, n := range candidates {
		refs[i] = llm.NoteRef{ID: n.ID, Title: n.Title, Content: n.Content, Category: n.Category}
	}

	suggestions, err := a.llm.FindConnections(ctx, content, refs)
	if err == nil && len(suggestions) > 0 {
		for i := range suggestions {
			if suggestions[i].Relation == "" {
				suggestions[i].Relation = models.RelationRelated
			}
		}
		if len(suggestions) > a.cfg.MaxConnections {
			suggestions = suggestions[:a.cfg.MaxConnections]
		}
		return Ok(suggestions)
	}
	if err == nil {
		err = ErrEmptyAnswer
	}
	a.logger.Warn("analysis: fallback", slog.String("aspect", llm.OpConnections), slog.String("error", err.Error()))

	ids := a.rules.RelatedNotes(content, candidates, 3, a.cfg.MaxConnections)
	fallback := make([]llm.ConnectionSuggestion, 0, len(ids))
	for _, id := range ids {
		fallback = append(fallback, llm.ConnectionSuggestion{NoteID: id, Relation: models.RelationRelated, Reason: "shared keywords"})
	}
	return Fallback(fallback, err)
}

// Organize groups notes by theme. Without a usable model answer it groups by
// the stored category, keeping only categories with more than one note.
func (a *Analyzer) Organize(ctx context.Context, notes []models.Note) Result[[]llm.Group] {
	if len(notes) > a.cfg.ConnectionWindow {
		notes = notes[:a.cfg.ConnectionWindow]
	}
	refs := make([]llm.NoteRef, len(notes))
	for i, n := range notes {
		refs[i] = llm.NoteRef{ID: n.ID, Title: n.Title, Content: n.Content, Category: n.Category}
	}
	groups, err := a.llm.Organize(ctx, refs)
	if err == nil && len(groups) > 0 {
		return Ok(groups)
	}
	if err == nil {
		err = ErrEmptyAnswer
	}
	a.logger.Warn("analysis: fallback", slog.String("aspect", llm.OpOrganize), slog.String("error", err.Error()))
	return Fallback(GroupByCategory(notes), err)
}

// GroupByCategory builds one group per category with at least two notes,
// largest first.
func GroupByCategory(notes []models.Note) []llm.Group {
	byCat := map[string][]int64{}
	var order []string
	for _, n := range notes {
		cat := strings.TrimSpace(n.Category)
		if cat == "" {
			cat = models.GeneralCategory
		}
		if _, ok := byCat[cat]; !ok {
			order = append(order, cat)
		}
		byCat[cat] = append(byCat[cat], n.ID)
	}
	groups := []llm.Group{}
	for _, cat := range order {
		if ids := byCat[cat]; len(ids) > 1 {
			groups = append(groups, llm.Group{Name: cat, NoteIDs: ids})
		}
	}
	sort.SliceStable(groups, func(i, j int) bool { return len(groups[i].NoteIDs) > len(groups[j].NoteIDs) })
	return groups
}

// ErrGenerationFailed is the cause of a failed Compose result.
var ErrGenerationFailed = errors.New("analysis: generation failed")

// Compose runs a generative operation (note body, plan, answer). There is no
// offline substitute, so failures come back as KindError.
func (a *Analyzer) Compose(ctx context.Context, op, request string) Result[string] {
	var (
		out string
		err error
	)
	switch op {
	case llm.OpComposeNote:
		out, err = a.llm.ComposeNote(ctx, request)
	case llm.OpComposePlan:
		out, err = a.llm.ComposePlan(ctx, request)
	case llm.OpAnswer:
		out, err = a.llm.Answer(ctx, request)
	default:
		return Failed[string](errors.New("analysis: unknown compose op " + op))
	}
	if err != nil {
		a.logger.Warn("analysis: compose failed", slog.String("op", op), slog.String("error", err.Error()))
		return Failed[string](errors.Join(ErrGenerationFailed, err))
	}
	if strings.TrimSpace(out) == "" {
		return Failed[string](errors.Join(ErrGenerationFailed, ErrEmptyAnswer))
	}
	return Ok(out)
}
