package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notegraph/internal/agent"
	"github.com/starford/notegraph/internal/auth"
	"github.com/starford/notegraph/internal/calendar"
	"github.com/starford/notegraph/internal/jobs"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/sse"
)

// Services are the domain services behind the API. Only Notes and Agent
// are required.
type Services struct {
	Notes *noteservice.Service
	Agent *agent.Agent
	// Jobs runs background note work. When nil, every request is served
	// synchronously.
	Jobs *jobs.Queue
	// Sessions is required when Options.AuthEnabled is set.
	Sessions *auth.Service
	// OAuth is nil when no Google client is configured.
	OAuth  *calendar.OAuth
	Events *sse.Broker
}

// Options control authentication and browser-facing behaviour.
type Options struct {
	AuthEnabled bool
	// LocalUserID is the identity of every request in disabled mode.
	LocalUserID   int64
	SecureCookies bool
	CORSOrigins   []string
	// FrontendURL receives the browser after the Google OAuth callback.
	FrontendURL string
}

// Handler holds API route handlers.
type Handler struct {
	Services
	opts Options
}

// NewHandler creates a new Handler.
func NewHandler(s Services, o Options) *Handler {
	return &Handler{Services: s, opts: o}
}

// idParam parses a positive integer URL parameter. It writes the 400
// response itself and reports false on failure.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid "+name))
		return 0, false
	}
	return id, true
}

// queryInt returns the integer query parameter or def when absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

// background reports whether the request asks for queued execution.
func (h *Handler) background(r *http.Request, def bool) bool {
	if h.Jobs == nil {
		return false
	}
	v, err := strconv.ParseBool(r.URL.Query().Get("background"))
	if err != nil {
		return def
	}
	return v
}
