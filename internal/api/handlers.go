package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/jobs"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/store"
)

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes with optional pagination and search
//	@Tags			notes
//	@Produce		json
//	@Param			skip	query		int		false	"Page offset"
//	@Param			limit	query		int		false	"Page size"
//	@Param			search	query		string	false	"Substring or full-text query"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserID(ctx)
	notes, err := h.Notes.List(ctx, userID, queryInt(r, "skip", 0), queryInt(r, "limit", 100), r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	total, err := h.Notes.Count(ctx, userID)
	if err != nil {
		writeError(w, "count notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: total})
}

// RecentNotes handles GET /api/notes/recent.
func (h *Handler) RecentNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.Notes.Recent(r.Context(), UserID(r.Context()), queryInt(r, "limit", 10))
	if err != nil {
		writeError(w, "recent notes", err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

// CountNotes handles GET /api/notes/count.
func (h *Handler) CountNotes(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notes.Count(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, "count notes", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		int	true	"Note ID"
//	@Success		200	{object}	models.Note
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	note, err := h.Notes.Get(r.Context(), UserID(r.Context()), id)
	if err != nil {
		writeError(w, "get note", err, "note_id", id)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// NoteWithConnections handles GET /api/notes/{id}/with-connections.
func (h *Handler) NoteWithConnections(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	note, err := h.Notes.WithConnections(r.Context(), UserID(r.Context()), id)
	if err != nil {
		writeError(w, "get note", err, "note_id", id)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
// With background=true (the default when a job queue is configured) the
// note is created by a job and the response is 202 with the task id.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			background	query		bool				false	"Queue the work"
//	@Param			body		body		CreateNoteRequest	true	"Note to create"
//	@Success		201			{object}	models.Note
//	@Success		202			{object}	NoteTaskResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	userID := UserID(ctx)

	if h.background(r, true) {
		job, err := h.Jobs.Submit(ctx, jobs.KindCreateNote, userID, "",
			jobs.CreateNotePayload{Title: req.Title, Content: req.Content})
		if err != nil {
			writeError(w, "submit create note", err)
			return
		}
		writeJSON(w, http.StatusAccepted, NoteTaskResponse{TaskID: job.ID, Status: string(job.Status)})
		return
	}

	note, err := h.Notes.CreateNote(ctx, userID, req.Title, req.Content)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/{id}.
//
// In background mode the response carries the note as it was before the
// update together with the task id. The job then queues the note's
// analysis and calendar refresh as jobs of their own.
//
//	@Summary		Update a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id			path		int					true	"Note ID"
//	@Param			background	query		bool				false	"Queue the work"
//	@Param			body		body		UpdateNoteRequest	true	"Fields to change"
//	@Success		200			{object}	models.Note
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req UpdateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	userID := UserID(ctx)

	if h.background(r, true) {
		current, err := h.Notes.Get(ctx, userID, id)
		if err != nil {
			writeError(w, "get note", err, "note_id", id)
			return
		}
		job, err := h.Jobs.Submit(ctx, jobs.KindUpdateNote, userID, "",
			jobs.UpdateNotePayload{NoteID: id, Title: req.Title, Content: req.Content})
		if err != nil {
			writeError(w, "submit update note", err, "note_id", id)
			return
		}
		writeJSON(w, http.StatusOK, NoteTaskResponse{TaskID: job.ID, Status: string(job.Status), Note: current})
		return
	}

	note, err := h.Notes.Update(ctx, userID, id, store.NoteUpdate{Title: req.Title, Content: req.Content})
	if err != nil {
		writeError(w, "update note", err, "note_id", id)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
// With background=true the deletion is queued. A synchronous deletion that
// fails because the calendar is unreachable is queued as well when a job
// queue is configured, so the job's retries finish it.
//
//	@Summary		Delete a note with its connections and linked calendar events
//	@Tags			notes
//	@Param			id			path	int		true	"Note ID"
//	@Param			background	query	bool	false	"Queue the work"
//	@Success		204			"Note deleted"
//	@Success		202			{object}	NoteTaskResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	userID := UserID(ctx)

	if h.background(r, false) {
		h.queueDelete(w, r, id)
		return
	}
	err := h.Notes.Delete(ctx, userID, id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case h.Jobs != nil && errors.Is(err, apperr.ErrUpstream):
		h.queueDelete(w, r, id)
	default:
		writeError(w, "delete note", err, "note_id", id)
	}
}

func (h *Handler) queueDelete(w http.ResponseWriter, r *http.Request, id int64) {
	job, err := h.Notes.ScheduleDelete(r.Context(), UserID(r.Context()), id)
	if err != nil {
		writeError(w, "submit delete note", err, "note_id", id)
		return
	}
	writeJSON(w, http.StatusAccepted, NoteTaskResponse{TaskID: job.ID, Status: string(job.Status)})
}

// TaskStatus handles GET /api/notes/task/{task_id}/status. Running jobs
// are reported as PENDING.
func (h *Handler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownJob(w, r, chi.URLParam(r, "task_id"))
	if !ok {
		return
	}
	resp := TaskStatusResponse{TaskID: job.ID, Status: string(job.Status), Error: job.Error}
	if !job.Status.Finished() {
		resp.Status = string(models.JobPending)
	}
	if len(job.Result) > 0 {
		resp.Result = job.Result
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /api/jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownJob(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ownJob loads a job of the calling user. Jobs of other users are
// reported as missing.
func (h *Handler) ownJob(w http.ResponseWriter, r *http.Request, id string) (*models.Job, bool) {
	if h.Jobs == nil {
		writeJSON(w, http.StatusNotFound, errorBody("background jobs are disabled"))
		return nil, false
	}
	job, err := h.Jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get job", err, "job_id", id)
		return nil, false
	}
	if job.UserID != UserID(r.Context()) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return nil, false
	}
	return job, true
}
