package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authMiddleware accepts the token as "Authorization: Bearer <token>" or as
// a token query parameter.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		given := r.URL.Query().Get("token")
		if h := r.Header.Get("Authorization"); h != "" {
			scheme, value, ok := strings.Cut(h, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				writeJSONError(w, "unsupported authorization scheme", http.StatusUnauthorized)
				return
			}
			given = strings.TrimSpace(value)
		}

		if given == "" || subtle.ConstantTimeCompare([]byte(given), []byte(s.token)) != 1 {
			writeJSONError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
