package auth

import (
	"net/http"

	"go.uber.org/zap"
)

// RequireAuth rejects requests without a live session with 401 and puts
// the user in the request context otherwise
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := GetSessionCookie(r)
		if !ok {
			writeUnauthorized(w, "Authentication required")
			return
		}

		user, session, err := m.UserBySession(sessionID)
		if err != nil {
			m.logger.Debug("rejected session", zap.Error(err))
			ClearSessionCookie(w)
			writeUnauthorized(w, "Authentication required")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user, session)))
	})
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"success":false,"error":"` + msg + `"}`))
}
