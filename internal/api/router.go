package api

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// Session routes are mounted only when Services.Sessions is set, Google
// routes only when Services.OAuth is set, and the event stream only when
// Services.Events is set.
func NewRouter(s Services, o Options) chi.Router {
	h := NewHandler(s, o)

	var tokens TokenParser
	if o.AuthEnabled && s.Sessions != nil {
		tokens = s.Sessions
	}

	r := chi.NewRouter()
	r.Use(CORS(o.CORSOrigins))

	// Public routes.
	if s.Sessions != nil {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/token", h.Token)
		r.Post("/auth/refresh", h.Refresh)
		if s.OAuth != nil {
			r.Get("/auth/google/callback", h.GoogleCallback)
		}
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(tokens, o.LocalUserID))

		if s.Sessions != nil {
			r.Post("/auth/logout", h.Logout)
			if s.OAuth != nil {
				r.Get("/auth/google", h.GoogleAuthURL)
				r.Delete("/auth/google/disconnect", h.GoogleDisconnect)
				r.Get("/auth/google/status", h.GoogleStatus)
			}
		}
		r.Get("/auth/users/me", h.Me)

		// Notes. Static segments are registered before {id}.
		r.Route("/notes", func(r chi.Router) {
			r.Get("/", h.ListNotes)
			r.Post("/", h.CreateNote)
			r.Get("/recent", h.RecentNotes)
			r.Get("/count", h.CountNotes)
			r.Get("/categories", h.Categories)
			r.Get("/categories/grouped", h.GroupedNotes)
			r.Get("/by-category/{category}", h.NotesByCategory)
			r.Post("/analyze-all", h.AnalyzeAll)
			r.Post("/analyze-batch", h.AnalyzeBatch)
			r.Get("/task/{task_id}/status", h.TaskStatus)
			r.Delete("/connections/{id}", h.DeleteConnection)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetNote)
				r.Put("/", h.UpdateNote)
				r.Delete("/", h.DeleteNote)
				r.Get("/with-connections", h.NoteWithConnections)
				r.Post("/connections", h.CreateConnection)
				r.Get("/connections", h.ListConnections)
				r.Get("/connected-notes", h.ConnectedNotes)
				r.Post("/analyze", h.AnalyzeNote)
				r.Post("/analyze-calendar", h.AnalyzeCalendar)
				r.Get("/calendar-events", h.NoteCalendarEvents)
			})
		})

		r.Get("/jobs/{id}", h.GetJob)

		// Agent and calendar proxy.
		r.Post("/ai-agent/process", h.ProcessAgent)
		r.Get("/ai-agent/calendar/events", h.UpcomingEvents)
		r.Post("/ai-agent/calendar/event", h.CreateCalendarEvent)
		r.Get("/calendar/calendars", h.Calendars)

		if s.Events != nil {
			r.Get("/events", h.EventStream)
		}
	})

	return r
}
