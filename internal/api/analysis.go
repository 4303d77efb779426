package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notegraph/internal/jobs"
)

// AnalyzeNote handles POST /api/notes/{id}/analyze. With background=true
// the analysis is queued; requests for a note whose analysis has not
// started yet share one task.
//
//	@Summary		Analyze a note and store category, importance, tags and summary
//	@Tags			analysis
//	@Produce		json
//	@Param			id			path		int		true	"Note ID"
//	@Param			background	query		bool	false	"Queue the work"
//	@Success		200			{object}	noteservice.NoteAnalysis
//	@Success		202			{object}	NoteTaskResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/analyze [post]
func (h *Handler) AnalyzeNote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	userID := UserID(ctx)

	if h.background(r, false) {
		job, err := h.Notes.ScheduleAnalysis(ctx, userID, id)
		if err != nil {
			writeError(w, "submit analysis", err, "note_id", id)
			return
		}
		if job != nil {
			writeJSON(w, http.StatusAccepted, NoteTaskResponse{TaskID: job.ID, Status: string(job.Status)})
			return
		}
	}

	res, err := h.Notes.Analyze(ctx, userID, id)
	if err != nil {
		writeError(w, "analyze note", err, "note_id", id)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AnalyzeAll handles POST /api/notes/analyze-all.
func (h *Handler) AnalyzeAll(w http.ResponseWriter, r *http.Request) {
	notes, err := h.Notes.AnalyzeAll(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, "analyze all", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"analyzed_count": len(notes),
		"notes":          notes,
	})
}

// AnalyzeBatch handles POST /api/notes/analyze-batch. It runs inline
// unless background=true is given.
func (h *Handler) AnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchAnalyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	userID := UserID(ctx)

	if h.background(r, false) {
		job, err := h.Jobs.Submit(ctx, jobs.KindAnalyzeBatch, userID, "", jobs.BatchPayload{NoteIDs: req.NoteIDs})
		if err != nil {
			writeError(w, "submit batch analysis", err)
			return
		}
		writeJSON(w, http.StatusAccepted, NoteTaskResponse{TaskID: job.ID, Status: string(job.Status)})
		return
	}

	res, err := h.Notes.AnalyzeBatch(ctx, userID, req.NoteIDs)
	if err != nil {
		writeError(w, "batch analysis", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Categories handles GET /api/notes/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Notes.Categories(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, "list categories", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

// NotesByCategory handles GET /api/notes/by-category/{category}.
func (h *Handler) NotesByCategory(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	notes, err := h.Notes.ByCategory(r.Context(), UserID(r.Context()), category)
	if err != nil {
		writeError(w, "notes by category", err, "category", category)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": category, "notes": notes})
}

// GroupedNotes handles GET /api/notes/categories/grouped.
func (h *Handler) GroupedNotes(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Notes.Grouped(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, "grouped notes", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

// AnalyzeCalendar handles POST /api/notes/{id}/analyze-calendar.
func (h *Handler) AnalyzeCalendar(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	links, err := h.Notes.AnalyzeCalendar(r.Context(), UserID(r.Context()), id)
	if err != nil {
		writeError(w, "analyze calendar", err, "note_id", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      fmt.Sprintf("Analysis complete. Events created: %d", len(links)),
		"events_count": len(links),
		"events":       links,
	})
}

// NoteCalendarEvents handles GET /api/notes/{id}/calendar-events.
func (h *Handler) NoteCalendarEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	links, err := h.Notes.CalendarEvents(r.Context(), UserID(r.Context()), id)
	if err != nil {
		writeError(w, "note calendar events", err, "note_id", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": links})
}
