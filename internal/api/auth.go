package api

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/starford/notegraph/internal/auth"
)

// Register handles POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.Sessions.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		writeError(w, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// credentials reads the login form. OAuth2 password-grant style form
// bodies use "username" for the e-mail; JSON bodies may use either key.
func credentials(w http.ResponseWriter, r *http.Request) (email, password string, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body struct {
			Email    string `json:"email"`
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", "", err
		}
		if body.Email == "" {
			body.Email = body.Username
		}
		return body.Email, body.Password, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", "", err
	}
	return r.PostForm.Get("username"), r.PostForm.Get("password"), nil
}

// Token handles POST /api/auth/token.
//
//	@Summary		Log in and receive session cookies
//	@Tags			auth
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			username	formData	string	true	"E-mail"
//	@Param			password	formData	string	true	"Password"
//	@Success		200			{object}	auth.Tokens
//	@Failure		401			{object}	errResponse
//	@Router			/auth/token [post]
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	email, password, err := credentials(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid credentials body"))
		return
	}
	u, err := h.Sessions.Authenticate(r.Context(), email, password)
	if err != nil {
		writeError(w, "authenticate", err)
		return
	}
	h.issue(w, r, u.ID)
}

// Refresh handles POST /api/auth/refresh. The refresh token comes from
// its cookie.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(RefreshCookie)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
		return
	}
	tokens, err := h.Sessions.Refresh(r.Context(), c.Value)
	if err != nil {
		h.clearCookies(w)
		writeError(w, "refresh session", err)
		return
	}
	h.setCookies(w, tokens)
	writeJSON(w, http.StatusOK, tokens)
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Logout(r.Context(), UserID(r.Context())); err != nil {
		writeError(w, "logout", err)
		return
	}
	h.clearCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me handles GET /api/auth/users/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.Notes.Store().GetUser(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, userID int64) {
	tokens, err := h.Sessions.Issue(r.Context(), userID)
	if err != nil {
		writeError(w, "issue session", err)
		return
	}
	h.setCookies(w, tokens)
	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) setCookies(w http.ResponseWriter, t *auth.Tokens) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookie,
		Value:    t.AccessToken,
		Path:     "/",
		MaxAge:   t.ExpiresIn,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    t.RefreshToken,
		Path:     "/",
		MaxAge:   int(h.Sessions.RefreshTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.opts.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// GoogleAuthURL handles GET /api/auth/google. The state value is a signed
// token naming the caller, so the callback needs no session.
func (h *Handler) GoogleAuthURL(w http.ResponseWriter, r *http.Request) {
	state, err := h.Sessions.NewState(UserID(r.Context()))
	if err != nil {
		writeError(w, "oauth state", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"auth_url": h.OAuth.AuthURL(state)})
}

// GoogleCallback handles GET /api/auth/google/callback and sends the
// browser back to the frontend with the outcome.
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if msg := q.Get("error"); msg != "" {
		h.redirectOAuth(w, r, msg)
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing code or state parameter"))
		return
	}
	userID, err := h.Sessions.ParseState(state)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid state parameter"))
		return
	}
	if _, err := h.OAuth.Connect(r.Context(), userID, code); err != nil {
		slog.Error("google connect failed", slog.Int64("user_id", userID), slog.String("error", err.Error()))
		h.redirectOAuth(w, r, "Authentication failed")
		return
	}
	h.redirectOAuth(w, r, "")
}

func (h *Handler) redirectOAuth(w http.ResponseWriter, r *http.Request, failure string) {
	q := url.Values{"auth": {"success"}}
	if failure != "" {
		q = url.Values{"auth": {"error"}, "message": {failure}}
	}
	target := strings.TrimRight(h.opts.FrontendURL, "/") + "/calendar?" + q.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

// GoogleDisconnect handles DELETE /api/auth/google/disconnect.
func (h *Handler) GoogleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.OAuth.Disconnect(r.Context(), UserID(r.Context())); err != nil {
		writeError(w, "google disconnect", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully disconnected from Google Calendar"})
}

// GoogleStatus handles GET /api/auth/google/status.
func (h *Handler) GoogleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.OAuth.Status(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, "google status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
