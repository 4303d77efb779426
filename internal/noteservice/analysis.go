package noteservice

import (
	"context"
	"errors"

	"github.com/starford/notegraph/internal/analysis"
	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/jobs"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/store"
)

// NoteAnalysis is the result of analyzing one note.
type NoteAnalysis struct {
	NoteID   int64              `json:"note_id"`
	Analysis *analysis.Analysis `json:"analysis"`
}

// BatchItem is the per-note outcome of a batch analysis.
type BatchItem struct {
	NoteID     int64  `json:"note_id"`
	Success    bool   `json:"success"`
	Category   string `json:"category,omitempty"`
	Importance int    `json:"importance,omitempty"`
	Error      string `json:"error,omitempty"`
}

// BatchResult summarizes a batch analysis.
type BatchResult struct {
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Results    []BatchItem `json:"results"`
}

// AnalyzedNote is one entry of an analyze-all response.
type AnalyzedNote struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Category   string   `json:"category"`
	Importance int      `json:"importance"`
	Tags       []string `json:"tags"`
	Summary    string   `json:"summary"`
}

// analyzeAllLimit bounds how many notes one analyze-all call touches.
const analyzeAllLimit = 500

// Analyze computes and persists the analysis of the user's note.
func (s *Service) Analyze(ctx context.Context, userID, id int64) (*NoteAnalysis, error) {
	note, err := s.db.GetNote(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	_, an, err := s.analyze(ctx, *note)
	if err != nil {
		return nil, err
	}
	return &NoteAnalysis{NoteID: id, Analysis: an}, nil
}

// analyze recomputes the analysis from the note's stored title and content.
// Runs for one note are serialized, so the last saved analysis always
// belongs to content at least as new as any earlier one.
func (s *Service) analyze(ctx context.Context, note models.Note) (*models.Note, *analysis.Analysis, error) {
	var (
		updated *models.Note
		an      *analysis.Analysis
	)
	err := s.exclusive(ctx, jobs.AnalyzeKey(note.ID), func(ctx context.Context) error {
		current, err := s.db.GetNote(ctx, note.UserID, note.ID)
		if err != nil {
			return err
		}
		an = s.analyzer.Analyze(ctx, current.Title+"\n\n"+current.Content)
		if err := s.db.SaveAnalysis(ctx, note.UserID, note.ID, store.AnalysisFields{
			Category:   an.Category,
			Importance: an.Importance,
			Tags:       an.Tags,
			Summary:    an.Summary,
		}); err != nil {
			return err
		}
		updated, err = s.db.GetNote(ctx, note.UserID, note.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.mirrorNote(ctx, *updated)
	s.events.PublishNoteEvent(note.UserID, EventAnalyzed, note.ID)
	return updated, an, nil
}

// AnalyzeAll analyzes every note of the user.
func (s *Service) AnalyzeAll(ctx context.Context, userID int64) ([]AnalyzedNote, error) {
	notes, err := s.db.ListNotes(ctx, userID, 0, analyzeAllLimit)
	if err != nil {
		return nil, err
	}
	out := make([]AnalyzedNote, 0, len(notes))
	for _, n := range notes {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		updated, _, err := s.analyze(ctx, n)
		if err != nil {
			return out, err
		}
		out = append(out, AnalyzedNote{
			ID:         updated.ID,
			Title:      updated.Title,
			Category:   updated.Category,
			Importance: updated.Importance,
			Tags:       updated.Tags,
			Summary:    updated.Summary,
		})
	}
	return out, nil
}

// AnalyzeBatch analyzes the given notes of the user. Missing notes are
// reported as failed items rather than failing the batch.
func (s *Service) AnalyzeBatch(ctx context.Context, userID int64, ids []int64) (*BatchResult, error) {
	res := &BatchResult{Total: len(ids), Results: make([]BatchItem, 0, len(ids))}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		item := BatchItem{NoteID: id}
		note, err := s.db.GetNote(ctx, userID, id)
		if err == nil {
			note, _, err = s.analyze(ctx, *note)
		}
		if err != nil {
			if !apperr.IsPermanent(err) {
				return res, err
			}
			item.Error = err.Error()
			res.Failed++
		} else {
			item.Success = true
			item.Category = note.Category
			item.Importance = note.Importance
			res.Successful++
		}
		res.Results = append(res.Results, item)
	}
	return res, nil
}

// AutoConnect asks the analyzer for edges between note and the user's most
// recent notes and persists the valid ones. Suggestions pointing at missing,
// foreign or already connected notes are skipped.
func (s *Service) AutoConnect(ctx context.Context, note models.Note) ([]models.Connection, error) {
	window, err := s.db.RecentNotes(ctx, note.UserID, s.analyzer.Config().ConnectionWindow+1)
	if err != nil {
		return nil, err
	}
	suggestions := s.analyzer.FindConnections(ctx, note, window).Value

	created := []models.Connection{}
	for _, sg := range suggestions {
		if sg.NoteID == note.ID {
			continue
		}
		c, err := s.db.CreateConnection(ctx, note.UserID, note.ID, sg.NoteID, sg.Relation)
		switch {
		case errors.Is(err, apperr.ErrAlreadyExists),
			errors.Is(err, apperr.ErrNotFound),
			errors.Is(err, apperr.ErrValidation):
			continue
		case err != nil:
			return created, err
		}
		s.mirrorConnection(ctx, *c)
		created = append(created, *c)
	}
	if len(created) > 0 {
		s.events.PublishNoteEvent(note.UserID, EventUpdated, note.ID)
	}
	return created, nil
}
