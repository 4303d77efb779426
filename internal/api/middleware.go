// Package api implements the note graph REST API using chi.
package api

import (
	"context"
	"net/http"
	"slices"
	"strings"
)

// Session cookie names.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

type userKey struct{}

// WithUserID returns ctx carrying the authenticated user id.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userKey{}, id)
}

// UserID returns the authenticated user id, or 0 outside an authenticated route.
func UserID(ctx context.Context) int64 {
	id, _ := ctx.Value(userKey{}).(int64)
	return id
}

// TokenParser verifies access tokens.
type TokenParser interface {
	ParseAccess(token string) (int64, error)
}

// AuthMiddleware returns middleware that resolves the calling user.
// If tokens is nil, all requests run as localUserID (disabled mode).
// Otherwise requests must carry a valid access token in the access_token
// cookie or an "Authorization: Bearer <token>" header.
func AuthMiddleware(tokens TokenParser, localUserID int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), localUserID)))
				return
			}
			token := bearerToken(r)
			if token == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			id, err := tokens.ParseAccess(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
		})
	}
}

// bearerToken prefers the Authorization header over the cookie.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if c, err := r.Cookie(AccessCookie); err == nil {
		return c.Value
	}
	return ""
}

// CORS allows credentialed requests from the listed origins. A "*" entry
// echoes any origin.
func CORS(origins []string) func(http.Handler) http.Handler {
	wildcard := slices.Contains(origins, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (wildcard || slices.Contains(origins, origin)) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS,PATCH")
				h.Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
