package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RouterConfig selects optional parts of the router
type RouterConfig struct {
	// Protect wraps workspace and websocket routes, e.g. auth.Manager.RequireAuth
	Protect mux.MiddlewareFunc
	// Extra registers additional routes such as the auth endpoints
	Extra func(r *mux.Router)
	// UIDir is served at / when set
	UIDir string
}

// NewRouter builds the application router
func (s *Server) NewRouter(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()
	protect := cfg.Protect
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}

	r.HandleFunc("/health", s.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/storage/status", s.StorageStatus).Methods(http.MethodGet)
	api.HandleFunc("/leases/stats", s.LeaseStats).Methods(http.MethodGet)

	ws := api.PathPrefix("/workspaces").Subrouter()
	ws.Use(protect)
	ws.HandleFunc("", s.CreateWorkspace).Methods(http.MethodPost)
	ws.HandleFunc("", s.ListWorkspaces).Methods(http.MethodGet)
	ws.HandleFunc("/{id}", s.GetWorkspace).Methods(http.MethodGet)
	ws.HandleFunc("/{id}", s.DeleteWorkspace).Methods(http.MethodDelete)
	ws.HandleFunc("/{id}/mode", s.SetMode).Methods(http.MethodPut)

	tools := ws.PathPrefix("/{id}/tools/{mode}").Subrouter()
	tools.HandleFunc("", s.GetTool).Methods(http.MethodGet)
	tools.HandleFunc("/files", s.AddFiles).Methods(http.MethodPost)
	tools.HandleFunc("/files/{name}", s.RemoveFile).Methods(http.MethodDelete)
	tools.HandleFunc("/trigger", s.Trigger).Methods(http.MethodPost)
	tools.HandleFunc("/reset", s.Reset).Methods(http.MethodPost)
	tools.HandleFunc("/result", s.DownloadResult).Methods(http.MethodGet)
	tools.HandleFunc("/result/url", s.ResultURL).Methods(http.MethodGet)

	if s.hub != nil {
		r.Handle("/ws", protect(http.HandlerFunc(s.hub.ServeWs)))
	}

	if cfg.Extra != nil {
		cfg.Extra(r)
	}

	if cfg.UIDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.UIDir)))
	}
	return r
}
