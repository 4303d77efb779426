package api

import (
	"net/http"
	"time"

	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/calendar"
)

// ProcessAgent handles POST /api/ai-agent/process. The response is always
// 200; callers branch on the success flag.
//
//	@Summary		Hand a free-text request to the note agent
//	@Tags			ai-agent
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AgentRequest	true	"Request"
//	@Success		200		{object}	agent.Response
//	@Security		BearerAuth
//	@Router			/ai-agent/process [post]
func (h *Handler) ProcessAgent(w http.ResponseWriter, r *http.Request) {
	var req AgentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.Agent.Process(r.Context(), UserID(r.Context()), req.Message))
}

func (h *Handler) calendarAgent(w http.ResponseWriter) (*calendar.Agent, bool) {
	cal := h.Notes.Calendar()
	if cal == nil {
		writeError(w, "calendar", apperr.ErrAuthRequired)
		return nil, false
	}
	return cal, true
}

// UpcomingEvents handles GET /api/ai-agent/calendar/events.
func (h *Handler) UpcomingEvents(w http.ResponseWriter, r *http.Request) {
	cal, ok := h.calendarAgent(w)
	if !ok {
		return
	}
	hours := queryInt(r, "hours", 24)
	events, err := cal.Upcoming(r.Context(), UserID(r.Context()), time.Duration(hours)*time.Hour, queryInt(r, "max_results", 10))
	if err != nil {
		writeError(w, "upcoming events", err)
		return
	}
	if events == nil {
		events = []calendar.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"events":  events,
		"count":   len(events),
	})
}

// CreateCalendarEvent handles POST /api/ai-agent/calendar/event.
//
//	@Summary		Create a calendar event and a reminder note for it
//	@Tags			ai-agent
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CalendarEventRequest	true	"Event"
//	@Success		201		{object}	map[string]any
//	@Failure		400		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ai-agent/calendar/event [post]
func (h *Handler) CreateCalendarEvent(w http.ResponseWriter, r *http.Request) {
	var req CalendarEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	lang := req.Language
	if lang == "" {
		lang = h.Notes.Analyzer().Heuristics().DetectLanguage(req.Summary)
	}
	s, err := h.Agent.Schedule(r.Context(), UserID(r.Context()), req.Draft(), lang)
	if err != nil {
		writeError(w, "create calendar event", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"event_id":   s.Event.ID,
		"note_id":    s.NoteID,
		"summary":    s.Event.Title,
		"start_time": s.Event.Start,
		"end_time":   s.Event.End,
		"html_link":  s.Event.Link,
		"message":    s.Message,
	})
}

// Calendars handles GET /api/calendar/calendars.
func (h *Handler) Calendars(w http.ResponseWriter, r *http.Request) {
	cal, ok := h.calendarAgent(w)
	if !ok {
		return
	}
	cals, err := cal.Provider().ListCalendars(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, "list calendars", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calendars": cals})
}

// EventStream handles GET /api/events, the caller's Server-Sent Events stream.
func (h *Handler) EventStream(w http.ResponseWriter, r *http.Request) {
	h.Events.Serve(w, r, UserID(r.Context()))
}
