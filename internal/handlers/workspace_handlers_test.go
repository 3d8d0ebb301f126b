package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ppttools/internal/lease"
	"github.com/example/ppttools/internal/models"
	"github.com/example/ppttools/internal/processors"
	"github.com/example/ppttools/internal/selection"
	"github.com/example/ppttools/internal/storage"
	"github.com/example/ppttools/internal/tool"
	"github.com/example/ppttools/internal/workspace"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type testEnv struct {
	router   *mux.Router
	registry *workspace.Registry
	leases   *lease.Manager
	hub      *WebSocketHub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	backend := storage.NewMemoryStorage()
	require.NoError(t, backend.Initialize(nil))
	leases := lease.NewManager(backend, nil)
	svc := processors.NewService(leases, processors.WithDelay(20*time.Millisecond))
	registry := workspace.NewRegistry(svc, leases, workspace.Config{
		Accept: selection.ParseAccept(selection.DefaultPresentationAccept),
	}, nil)

	hub := NewWebSocketHub(func(id, owner string) bool {
		_, err := registry.Get(id, owner)
		return err == nil
	}, nil, nil)
	registry.OnCreate(hub.Watch)

	factory := storage.NewFactory(nil)
	factory.MarkUnavailable(storage.TypeS3, "no credentials")

	s := NewServer(Options{
		Registry:  registry,
		Leases:    leases,
		Storage:   factory,
		Hub:       hub,
		MaxUpload: 1 << 20,
	})

	t.Cleanup(func() {
		hub.Shutdown()
		registry.Close(context.Background())
	})
	return &testEnv{router: s.NewRouter(RouterConfig{}), registry: registry, leases: leases, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	var env envelope
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	}
	return rr, env
}

func (e *testEnv) createWorkspace(t *testing.T) workspace.View {
	t.Helper()
	rr, env := e.do(t, http.MethodPost, "/api/workspaces", nil, "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var view workspace.View
	require.NoError(t, json.Unmarshal(env.Data, &view))
	return view
}

func (e *testEnv) upload(t *testing.T, path, source string, names ...string) (*httptest.ResponseRecorder, tool.Snapshot) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range names {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("content of " + name))
		require.NoError(t, err)
	}
	if source != "" {
		require.NoError(t, mw.WriteField("source", source))
	}
	require.NoError(t, mw.Close())

	rr, env := e.do(t, http.MethodPost, path, &body, mw.FormDataContentType())
	var snap tool.Snapshot
	if env.Success {
		require.NoError(t, json.Unmarshal(env.Data, &snap))
	}
	return rr, snap
}

func decodeSnapshot(t *testing.T, env envelope) tool.Snapshot {
	t.Helper()
	var snap tool.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	return snap
}

func TestMergeOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	view := e.createWorkspace(t)
	base := "/api/workspaces/" + view.ID + "/tools/merge"

	rr, snap := e.upload(t, base+"/files", "", "a.pptx")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, snap.Files, 1)
	assert.False(t, snap.CanTrigger)

	// one file is not enough: guidance, still idle
	rr, env := e.do(t, http.MethodPost, base+"/trigger", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Please add at least two files to merge.", env.Message)
	assert.Equal(t, models.StateIdle, decodeSnapshot(t, env).State)

	_, snap = e.upload(t, base+"/files", "", "b.pptx", "a.pptx")
	assert.Len(t, snap.Files, 2)
	assert.Equal(t, "Merge 2 Files", snap.ActionLabel)

	rr, env = e.do(t, http.MethodPost, base+"/trigger?wait=true", nil, "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	snap = decodeSnapshot(t, env)
	require.Equal(t, models.StateDone, snap.State)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "merged_presentation.pptx", snap.Result.FileName)

	rr, _ = e.do(t, http.MethodGet, base+"/result", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "content of a.pptx", rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Disposition"), `filename=merged_presentation.pptx`)

	// a second trigger while done is refused
	rr, _ = e.do(t, http.MethodPost, base+"/trigger", nil, "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, env = e.do(t, http.MethodPost, base+"/reset", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.StateIdle, decodeSnapshot(t, env).State)
	assert.Equal(t, lease.Stats{Created: 1, Revoked: 1}, e.leases.Stats())

	rr, _ = e.do(t, http.MethodGet, base+"/result", nil, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestConvertOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	view := e.createWorkspace(t)
	base := "/api/workspaces/" + view.ID + "/tools/convert"

	_, snap := e.upload(t, base+"/files", "", "old.pptx", "other.pptx")
	require.Len(t, snap.Files, 1)
	assert.Equal(t, "old.pptx", snap.Files[0].Name)

	_, snap = e.upload(t, base+"/files", "", "deck.PPTX")
	require.Len(t, snap.Files, 1)
	assert.Equal(t, "deck.PPTX", snap.Files[0].Name)
	assert.Equal(t, "Convert to PDF", snap.ActionLabel)

	rr, env := e.do(t, http.MethodPost, base+"/trigger?wait=1", nil, "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	snap = decodeSnapshot(t, env)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "deck.pdf", snap.Result.FileName)

	// memory storage has no external links
	rr, _ = e.do(t, http.MethodGet, base+"/result/url", nil, "")
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestDropSourceFiltersUploads(t *testing.T) {
	e := newTestEnv(t)
	view := e.createWorkspace(t)
	base := "/api/workspaces/" + view.ID + "/tools/merge"

	rr, snap := e.upload(t, base+"/files", "drop", "notes.txt", "a.pptx")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, snap.Files, 1)
	assert.Equal(t, "a.pptx", snap.Files[0].Name)

	rr, _ = e.upload(t, base+"/files", "telepathy", "b.pptx")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRemoveFileAndModeSwitch(t *testing.T) {
	e := newTestEnv(t)
	view := e.createWorkspace(t)
	base := "/api/workspaces/" + view.ID

	e.upload(t, base+"/tools/merge/files", "", "a.pptx", "b.pptx")

	rr, env := e.do(t, http.MethodDelete, base+"/tools/merge/files/a.pptx", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	snap := decodeSnapshot(t, env)
	require.Len(t, snap.Files, 1)
	assert.Equal(t, "b.pptx", snap.Files[0].Name)
	assert.Equal(t, "Please add at least two files to merge.", snap.Guidance)

	rr, env = e.do(t, http.MethodPut, base+"/mode", bytes.NewBufferString(`{"mode":"convert"}`), "application/json")
	require.Equal(t, http.StatusOK, rr.Code)
	var got workspace.View
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "convert", got.ActiveMode.String())
	// the merge tool kept its selection
	assert.Len(t, got.Tools["merge"].Files, 1)

	rr, _ = e.do(t, http.MethodPut, base+"/mode", bytes.NewBufferString(`{"mode":"shred"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSetModeRequiresMode(t *testing.T) {
	e := newTestEnv(t)
	view := e.createWorkspace(t)
	path := "/api/workspaces/" + view.ID + "/mode"

	rr, _ := e.do(t, http.MethodPut, path, bytes.NewBufferString(`{"mode":"convert"}`), "application/json")
	require.Equal(t, http.StatusOK, rr.Code)

	for _, body := range []string{`{}`, `{"mode":null}`, `{"other":"merge"}`} {
		rr, env := e.do(t, http.MethodPut, path, bytes.NewBufferString(body), "application/json")
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		assert.Equal(t, "mode is required", env.Error, body)
	}

	// the active mode did not fall back to merge
	_, env := e.do(t, http.MethodGet, "/api/workspaces/"+view.ID, nil, "")
	var got workspace.View
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "convert", got.ActiveMode.String())
}

func TestUnknownWorkspaceAndTool(t *testing.T) {
	e := newTestEnv(t)
	view := e.createWorkspace(t)

	rr, env := e.do(t, http.MethodGet, "/api/workspaces/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.False(t, env.Success)

	rr, _ = e.do(t, http.MethodGet, "/api/workspaces/"+view.ID+"/tools/shred", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, _ = e.do(t, http.MethodDelete, "/api/workspaces/"+view.ID, nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	rr, _ = e.do(t, http.MethodGet, "/api/workspaces/"+view.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteWorkspaceRevokesResults(t *testing.T) {
	e := newTestEnv(t)
	view := e.createWorkspace(t)
	base := "/api/workspaces/" + view.ID + "/tools/convert"

	e.upload(t, base+"/files", "", "deck.pptx")
	rr, _ := e.do(t, http.MethodPost, base+"/trigger?wait=true", nil, "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, 1, e.leases.Stats().Live)

	rr, _ = e.do(t, http.MethodDelete, "/api/workspaces/"+view.ID, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, lease.Stats{Created: 1, Revoked: 1}, e.leases.Stats())
}

func TestStatusEndpoints(t *testing.T) {
	e := newTestEnv(t)
	e.createWorkspace(t)

	rr, _ := e.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 1, health["workspaces"])

	rr, env := e.do(t, http.MethodGet, "/api/storage/status", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var statuses map[string]storage.Status
	require.NoError(t, json.Unmarshal(env.Data, &statuses))
	assert.False(t, statuses[storage.TypeS3].Available)
	assert.True(t, statuses[storage.TypeMemory].Available)

	rr, env = e.do(t, http.MethodGet, "/api/leases/stats", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var stats lease.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, lease.Stats{}, stats)
}

func TestProtectGuardsWorkspaceRoutes(t *testing.T) {
	e := newTestEnv(t)
	s := NewServer(Options{Registry: e.registry})
	router := s.NewRouter(RouterConfig{
		Protect: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sendJSONError(w, "Authentication required", http.StatusUnauthorized)
			})
		},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/workspaces", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestWebSocketStreamsToolState(t *testing.T) {
	e := newTestEnv(t)
	view := e.createWorkspace(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?workspace=" + view.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	type wsMessage struct {
		Type      string          `json:"type"`
		Workspace string          `json:"workspace"`
		Content   json.RawMessage `json:"content"`
	}
	read := func() wsMessage {
		var msg wsMessage
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	assert.Equal(t, "connected", read().Type)
	assert.Equal(t, "subscribed", read().Type)

	base := "/api/workspaces/" + view.ID + "/tools/convert"
	e.upload(t, base+"/files", "", "deck.pptx")
	_, env := e.do(t, http.MethodPost, base+"/trigger", nil, "")
	require.True(t, env.Success)

	var states []models.ToolState
	for len(states) == 0 || states[len(states)-1] != models.StateDone {
		msg := read()
		if msg.Type != MsgToolState {
			continue
		}
		assert.Equal(t, view.ID, msg.Workspace)
		var snap tool.Snapshot
		require.NoError(t, json.Unmarshal(msg.Content, &snap))
		states = append(states, snap.State)
	}
	assert.Contains(t, states, models.StateProcessing)
}

func TestWebSocketRejectsUnknownWorkspace(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?workspace=missing"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActiveToolFollowsModeSwitch(t *testing.T) {
	e := newTestEnv(t)
	view := e.createWorkspace(t)
	base := "/api/workspaces/" + view.ID

	rr, env := e.do(t, http.MethodGet, base+"/tools/active", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "merge", decodeSnapshot(t, env).Mode.String())

	rr, _ = e.do(t, http.MethodPut, base+"/mode", bytes.NewBufferString(`{"mode":"convert"}`), "application/json")
	require.Equal(t, http.StatusOK, rr.Code)

	_, snap := e.upload(t, base+"/tools/active/files", "", "deck.pptx")
	assert.Equal(t, "convert", snap.Mode.String())
	require.Len(t, snap.Files, 1)

	// the upload landed on the convert tool, not merge
	_, env = e.do(t, http.MethodGet, base+"/tools/merge", nil, "")
	assert.Empty(t, decodeSnapshot(t, env).Files)
}
