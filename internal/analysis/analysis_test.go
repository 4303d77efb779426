package analysis

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notegraph/internal/heuristics"
	"github.com/starford/notegraph/internal/llm"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newAnalyzer(t *testing.T, p llm.Provider) *Analyzer {
	t.Helper()
	db := testutil.TestStore(t)
	return New(llm.NewClient(p), heuristics.New(nil), db, DefaultConfig(), quietLogger())
}

func TestAnalyzeWithFailingModelFillsEveryField(t *testing.T) {
	a := newAnalyzer(t, testutil.FailingLLM())
	inputs := []string{"", "x", "Срочно: нужно сдать отчет по бюджету до 12.05", "Meeting notes\n- review the roadmap\n- TODO: send invoice"}
	allowed := map[string]bool{}
	for _, c := range heuristics.DefaultRules().CategoryNames() {
		allowed[c] = true
	}
	for _, in := range inputs {
		an := a.Analyze(context.Background(), in)
		require.NotNil(t, an)
		assert.True(t, allowed[an.Category], "category %q", an.Category)
		assert.GreaterOrEqual(t, an.Importance, models.MinImportance)
		assert.LessOrEqual(t, an.Importance, models.MaxImportance)
		assert.NotNil(t, an.Tags)
		assert.NotNil(t, an.Topics)
		assert.NotNil(t, an.Keywords)
		assert.NotNil(t, an.ActionItems)
		assert.NotEmpty(t, an.Sentiment.Label)
		assert.Len(t, an.Fallbacks, 8)
	}
}

func TestResultKinds(t *testing.T) {
	ctx := context.Background()
	a := newAnalyzer(t, testutil.NewScriptedLLM(map[string]string{
		llm.OpCategorize: "Finance",
		llm.OpImportance: "not a number",
	}))
	content := "Quarterly budget review with the finance team"

	cat := a.Category(ctx, content)
	assert.Equal(t, KindOk, cat.Kind)
	assert.Equal(t, "Finance", cat.Value)

	imp := a.Importance(ctx, content)
	assert.Equal(t, KindFallback, imp.Kind)
	assert.True(t, errors.Is(imp.Cause, ErrEmptyAnswer))
	assert.Equal(t, models.DefaultImportance, imp.Value)
}

func TestCategoryIsCached(t *testing.T) {
	ctx := context.Background()
	p := testutil.NewScriptedLLM(map[string]string{llm.OpCategorize: "Work"})
	a := newAnalyzer(t, p)
	content := "Prepare the project plan for the team"

	first := a.Category(ctx, content)
	second := a.Category(ctx, content)
	assert.Equal(t, "Work", first.Value)
	assert.Equal(t, "Work", second.Value)
	assert.Equal(t, []string{llm.OpCategorize}, p.Calls())
}

func TestFallbacksAreNotCached(t *testing.T) {
	ctx := context.Background()
	p := testutil.FailingLLM()
	a := newAnalyzer(t, p)
	content := "Prepare the project plan for the team"

	_ = a.Summary(ctx, content)
	_ = a.Summary(ctx, content)
	assert.Len(t, p.Calls(), 2)
}

func TestFindConnectionsFallback(t *testing.T) {
	a := newAnalyzer(t, testutil.FailingLLM())
	note := models.Note{ID: 10, Title: "Budget", Content: "quarterly budget review finance team"}
	window := []models.Note{
		note,
		{ID: 1, Title: "Finance sync", Content: "budget review with finance team"},
		{ID: 2, Title: "Garden", Content: "plant tomatoes"},
	}
	r := a.FindConnections(context.Background(), note, window)
	assert.Equal(t, KindFallback, r.Kind)
	require.Len(t, r.Value, 1)
	assert.Equal(t, int64(1), r.Value[0].NoteID)
	assert.Equal(t, models.RelationRelated, r.Value[0].Relation)
}

func TestFindConnectionsNoCandidates(t *testing.T) {
	p := testutil.FailingLLM()
	a := newAnalyzer(t, p)
	note := models.Note{ID: 1, Content: "only note"}
	r := a.FindConnections(context.Background(), note, []models.Note{note})
	assert.Equal(t, KindOk, r.Kind)
	assert.Empty(t, r.Value)
	assert.Empty(t, p.Calls())
}

func TestFindConnectionsModelCapped(t *testing.T) {
	answer := `[{"note_id":1,"relation":"SIMILAR"},{"note_id":2},{"note_id":3},{"note_id":4},{"note_id":5},{"note_id":6}]`
	a := newAnalyzer(t, testutil.NewScriptedLLM(map[string]string{llm.OpConnections: answer}))
	var window []models.Note
	for i := int64(1); i <= 6; i++ {
		window = append(window, models.Note{ID: i, Content: "n"})
	}
	r := a.FindConnections(context.Background(), models.Note{ID: 99, Content: "x"}, window)
	assert.Equal(t, KindOk, r.Kind)
	require.Len(t, r.Value, 5)
	assert.Equal(t, models.RelationRelated, r.Value[1].Relation)
}

func TestOrganizeFallsBackToCategories(t *testing.T) {
	a := newAnalyzer(t, testutil.FailingLLM())
	notes := []models.Note{
		{ID: 1, Category: "Finance"}, {ID: 2, Category: "Finance"}, {ID: 3, Category: "Work"},
		{ID: 4}, {ID: 5, Category: "General"},
	}
	r := a.Organize(context.Background(), notes)
	assert.Equal(t, KindFallback, r.Kind)
	require.Len(t, r.Value, 2)
	assert.Equal(t, "Finance", r.Value[0].Name)
	assert.Equal(t, "General", r.Value[1].Name)
	assert.Equal(t, []int64{4, 5}, r.Value[1].NoteIDs)
}

func TestComposeFailureIsError(t *testing.T) {
	a := newAnalyzer(t, testutil.FailingLLM())
	r := a.Compose(context.Background(), llm.OpComposePlan, "plan a trip")
	assert.Equal(t, KindError, r.Kind)
	assert.True(t, errors.Is(r.Err(), ErrGenerationFailed))
}
