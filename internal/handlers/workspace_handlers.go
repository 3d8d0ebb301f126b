// Package handlers exposes workspaces and their tools over HTTP and pushes
// tool state to websocket clients
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/example/ppttools/internal/auth"
	"github.com/example/ppttools/internal/lease"
	"github.com/example/ppttools/internal/mode"
	"github.com/example/ppttools/internal/models"
	"github.com/example/ppttools/internal/selection"
	"github.com/example/ppttools/internal/storage"
	"github.com/example/ppttools/internal/tool"
	"github.com/example/ppttools/internal/workspace"
)

// LeaseStats reports lease counters
type LeaseStats interface {
	Stats() lease.Stats
}

// PoolStats reports worker pool load
type PoolStats interface {
	Stats() (active, queued int)
}

// Server holds the dependencies of every API handler
type Server struct {
	registry *workspace.Registry
	leases   LeaseStats
	storage  *storage.Factory
	pool     PoolStats
	hub      *WebSocketHub

	maxUpload  int64
	linkExpiry time.Duration
	logger     *zap.Logger
}

// Options configures a Server. Registry is required.
type Options struct {
	Registry   *workspace.Registry
	Leases     LeaseStats
	Storage    *storage.Factory
	Pool       PoolStats
	Hub        *WebSocketHub
	MaxUpload  int64 // bytes
	LinkExpiry time.Duration
	Logger     *zap.Logger
}

// NewServer creates the API handlers
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = 100 << 20
	}
	if opts.LinkExpiry <= 0 {
		opts.LinkExpiry = 15 * time.Minute
	}
	return &Server{
		registry:   opts.Registry,
		leases:     opts.Leases,
		storage:    opts.Storage,
		pool:       opts.Pool,
		hub:        opts.Hub,
		maxUpload:  opts.MaxUpload,
		linkExpiry: opts.LinkExpiry,
		logger:     opts.Logger.Named("api"),
	}
}

// workspaceFor resolves {id} for the caller, writing the error response
func (s *Server) workspaceFor(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, bool) {
	ws, err := s.registry.Get(mux.Vars(r)["id"], auth.OwnerFromContext(r.Context()))
	if err != nil {
		sendDomainError(w, err)
		return nil, false
	}
	return ws, true
}

// ActiveTool is the {mode} alias for whichever tool the workspace shows
const ActiveTool = "active"

// toolFor resolves {id} and {mode}
func (s *Server) toolFor(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, *tool.Controller, bool) {
	ws, ok := s.workspaceFor(w, r)
	if !ok {
		return nil, nil, false
	}
	if mux.Vars(r)["mode"] == ActiveTool {
		return ws, ws.Active(), true
	}
	m, err := mode.Parse(mux.Vars(r)["mode"])
	if err != nil {
		sendJSONError(w, err.Error(), http.StatusNotFound)
		return nil, nil, false
	}
	c, ok := ws.Tool(m)
	if !ok {
		sendJSONError(w, "Unknown tool", http.StatusNotFound)
		return nil, nil, false
	}
	return ws, c, true
}

// CreateWorkspace starts a new workspace for the caller
func (s *Server) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := s.registry.Create(auth.OwnerFromContext(r.Context()))
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendJSONResponse(w, models.APIResponse{Success: true, Message: "Workspace created", Data: ws.View()}, http.StatusCreated)
}

// ListWorkspaces returns the caller's workspace ids
func (s *Server) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	sendJSONData(w, "", s.registry.List(auth.OwnerFromContext(r.Context())))
}

// GetWorkspace returns the full workspace view
func (s *Server) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceFor(w, r)
	if !ok {
		return
	}
	sendJSONData(w, "", ws.View())
}

// DeleteWorkspace tears a workspace down, releasing its results
func (s *Server) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.registry.Delete(r.Context(), id, auth.OwnerFromContext(r.Context())); err != nil {
		sendDomainError(w, err)
		return
	}
	if s.hub != nil {
		s.hub.Publish(id, MsgWorkspaceClosed, nil)
		s.hub.Forget(id)
	}
	sendJSONData(w, "Workspace deleted", nil)
}

// SetMode switches the active tool
func (s *Server) SetMode(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceFor(w, r)
	if !ok {
		return
	}

	var body struct {
		Mode *mode.Mode `json:"mode"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&body); err != nil {
		sendJSONError(w, fmt.Sprintf("Invalid mode: %v", err), http.StatusBadRequest)
		return
	}
	if body.Mode == nil {
		sendJSONError(w, "mode is required", http.StatusBadRequest)
		return
	}

	ws.Switch.Set(*body.Mode)
	if s.hub != nil {
		s.hub.Publish(ws.ID, MsgModeChanged, map[string]mode.Mode{"activeMode": *body.Mode})
	}
	sendJSONData(w, "", ws.View())
}

// GetTool returns one tool's snapshot
func (s *Server) GetTool(w http.ResponseWriter, r *http.Request) {
	_, c, ok := s.toolFor(w, r)
	if !ok {
		return
	}
	sendJSONData(w, "", c.Snapshot())
}

// AddFiles stages the multipart "files" of the request
func (s *Server) AddFiles(w http.ResponseWriter, r *http.Request) {
	_, c, ok := s.toolFor(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			sendJSONError(w, "Upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		sendJSONError(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	source, err := selection.ParseSource(r.FormValue("source"))
	if err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		sendJSONError(w, "No file provided", http.StatusBadRequest)
		return
	}

	files := make([]models.StagedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			sendJSONError(w, fmt.Sprintf("Failed to read %s", fh.Filename), http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			sendJSONError(w, fmt.Sprintf("Failed to read %s", fh.Filename), http.StatusBadRequest)
			return
		}
		files = append(files, models.NewStagedFile(fh.Filename, fh.Header.Get("Content-Type"), data))
	}

	added, err := c.AddFiles(r.Context(), files, source)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	sendJSONData(w, fmt.Sprintf("%d of %d files added", added, len(files)), c.Snapshot())
}

// RemoveFile unstages {name}
func (s *Server) RemoveFile(w http.ResponseWriter, r *http.Request) {
	_, c, ok := s.toolFor(w, r)
	if !ok {
		return
	}
	if _, err := c.RemoveFile(mux.Vars(r)["name"]); err != nil {
		sendDomainError(w, err)
		return
	}
	sendJSONData(w, "", c.Snapshot())
}

// Trigger starts processing. Unmet policies answer 200 with the guidance
// message. ?wait=true blocks until the call settles.
func (s *Server) Trigger(w http.ResponseWriter, r *http.Request) {
	_, c, ok := s.toolFor(w, r)
	if !ok {
		return
	}

	guidance, err := c.Trigger()
	if err != nil {
		sendDomainError(w, err)
		return
	}
	if guidance != "" {
		sendJSONData(w, guidance, c.Snapshot())
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		if err := c.Wait(r.Context()); err != nil {
			sendJSONError(w, "Request cancelled while processing", http.StatusRequestTimeout)
			return
		}
	}
	sendJSONResponse(w, models.APIResponse{Success: true, Message: "Processing started", Data: c.Snapshot()}, http.StatusAccepted)
}

// Reset clears the tool and releases its result
func (s *Server) Reset(w http.ResponseWriter, r *http.Request) {
	_, c, ok := s.toolFor(w, r)
	if !ok {
		return
	}
	if err := c.Reset(r.Context()); err != nil {
		sendDomainError(w, err)
		return
	}
	sendJSONData(w, "", c.Snapshot())
}

// DownloadResult streams the result under its suggested file name
func (s *Server) DownloadResult(w http.ResponseWriter, r *http.Request) {
	_, c, ok := s.toolFor(w, r)
	if !ok {
		return
	}

	rc, result, err := c.OpenResult(r.Context())
	if err != nil {
		sendDomainError(w, err)
		return
	}
	defer rc.Close()

	contentType := result.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.FileName}))
	if result.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(result.Size, 10))
	}

	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("result download interrupted", zap.String("lease", result.Lease), zap.Error(err))
	}
}

// ResultURL returns a temporary external link to the result
func (s *Server) ResultURL(w http.ResponseWriter, r *http.Request) {
	_, c, ok := s.toolFor(w, r)
	if !ok {
		return
	}

	expiry := s.linkExpiry
	if m, err := strconv.Atoi(r.URL.Query().Get("minutes")); err == nil && m > 0 {
		expiry = time.Duration(m) * time.Minute
	}

	url, err := c.ResultURL(r.Context(), expiry)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendJSONData(w, "", map[string]interface{}{
		"url":       url,
		"expiresAt": time.Now().Add(expiry),
	})
}

// StorageStatus reports which lease backends are usable
func (s *Server) StorageStatus(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		sendJSONData(w, "", map[string]storage.Status{})
		return
	}
	sendJSONData(w, "", s.storage.Statuses())
}

// LeaseStats reports lease counters
func (s *Server) LeaseStats(w http.ResponseWriter, r *http.Request) {
	if s.leases == nil {
		sendJSONData(w, "", lease.Stats{})
		return
	}
	sendJSONData(w, "", s.leases.Stats())
}

// Health reports liveness and load
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":     "ok",
		"workspaces": s.registry.Len(),
	}
	if s.pool != nil {
		active, queued := s.pool.Stats()
		body["workers"] = map[string]int{"active": active, "queued": queued}
	}
	if s.hub != nil {
		body["websocket"] = s.hub.Stats()
	}
	sendJSONResponse(w, body, http.StatusOK)
}
