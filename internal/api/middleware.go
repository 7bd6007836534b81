package api

import (
	"net"
	"net/http"
	"strings"

	"github.com/Samarth40/tree-adoption-sub000/internal/session"
)

const sessionHeader = "X-Session-ID"

// SessionMiddleware resolves the X-Session-ID header and stores the session in
// the request context.
func SessionMiddleware(sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(sessionHeader))
			if id == "" {
				writeError(w, http.StatusUnauthorized, "Session required")
				return
			}
			if sessions == nil {
				writeError(w, http.StatusUnauthorized, "Session expired or invalid")
				return
			}
			s, err := sessions.Resolve(r.Context(), id)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Session expired or invalid")
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
		})
	}
}

// clientIP returns the caller address; RealIP has already applied proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if header == "" || token == header || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
