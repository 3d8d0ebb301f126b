package auth

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handler serves the sign-in routes
type Handler struct {
	manager *Manager
	secure  bool
}

// NewHandler creates auth route handlers. secure marks cookies Secure.
func NewHandler(manager *Manager, secure bool) *Handler {
	return &Handler{manager: manager, secure: secure}
}

// Register mounts the auth routes under /api/auth
func (h *Handler) Register(r *mux.Router) {
	s := r.PathPrefix("/api/auth").Subrouter()
	s.HandleFunc("/login", h.HandleLogin).Methods(http.MethodGet)
	s.HandleFunc("/callback", h.HandleCallback).Methods(http.MethodGet)
	s.HandleFunc("/logout", h.HandleLogout).Methods(http.MethodPost, http.MethodGet)
	s.Handle("/profile", h.manager.RequireAuth(http.HandlerFunc(h.HandleProfile))).Methods(http.MethodGet)
}

// HandleLogin redirects to the provider consent page
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	url, err := h.manager.LoginURL()
	if err != nil {
		h.manager.logger.Error("failed to build login url", zap.Error(err))
		http.Error(w, "Failed to start login", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// HandleCallback finishes the login and sets the session cookie
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		http.Error(w, "Login failed: "+e, http.StatusUnauthorized)
		return
	}

	session, err := h.manager.Callback(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		h.manager.logger.Warn("login callback failed", zap.Error(err))
		http.Error(w, "Login failed", http.StatusUnauthorized)
		return
	}

	SetSessionCookie(w, session, h.secure)
	http.Redirect(w, r, "/", http.StatusFound)
}

// HandleLogout ends the session
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if id, ok := GetSessionCookie(r); ok {
		h.manager.Logout(id)
	}
	ClearSessionCookie(w)

	if r.Method == http.MethodGet {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleProfile returns the signed-in user
func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    user,
	})
}
