package api

import "net/http"

// CreateConnection handles POST /api/notes/{id}/connections.
//
//	@Summary		Connect a note to another note
//	@Tags			connections
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int					true	"Source note ID"
//	@Param			body	body		ConnectionRequest	true	"Target and relation"
//	@Success		201		{object}	models.Connection
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/connections [post]
func (h *Handler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req ConnectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.Notes.Connect(r.Context(), UserID(r.Context()), id, req.TargetID, req.Relation)
	if err != nil {
		writeError(w, "create connection", err, "note_id", id)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListConnections handles GET /api/notes/{id}/connections.
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	conns, err := h.Notes.Connections(r.Context(), UserID(r.Context()), id)
	if err != nil {
		writeError(w, "list connections", err, "note_id", id)
		return
	}
	writeJSON(w, http.StatusOK, conns)
}

// ConnectedNotes handles GET /api/notes/{id}/connected-notes.
func (h *Handler) ConnectedNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	notes, err := h.Notes.ConnectedNotes(r.Context(), UserID(r.Context()), id)
	if err != nil {
		writeError(w, "connected notes", err, "note_id", id)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

// DeleteConnection handles DELETE /api/notes/connections/{id}.
func (h *Handler) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.Notes.Disconnect(r.Context(), UserID(r.Context()), id); err != nil {
		writeError(w, "delete connection", err, "connection_id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
