package workspace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ppttools/internal/lease"
	"github.com/example/ppttools/internal/mode"
	"github.com/example/ppttools/internal/models"
	"github.com/example/ppttools/internal/processors"
	"github.com/example/ppttools/internal/selection"
	"github.com/example/ppttools/internal/storage"
	"github.com/example/ppttools/internal/tool"
)

func newRegistry(t *testing.T, ttl time.Duration) (*Registry, *lease.Manager) {
	t.Helper()
	backend := storage.NewMemoryStorage()
	require.NoError(t, backend.Initialize(nil))
	leases := lease.NewManager(backend, nil)
	svc := processors.NewService(leases, processors.WithDelay(time.Millisecond))
	r := NewRegistry(svc, leases, Config{
		TTL:    ttl,
		Accept: selection.ParseAccept(selection.DefaultPresentationAccept),
	}, nil)
	return r, leases
}

func finishMerge(t *testing.T, ws *Workspace) {
	t.Helper()
	c, ok := ws.Tool(mode.Merge)
	require.True(t, ok)

	_, err := c.AddFiles(context.Background(), []models.StagedFile{
		models.NewStagedFile("a.pptx", "", []byte("a")),
		models.NewStagedFile("b.pptx", "", []byte("b")),
	}, selection.SourcePicker)
	require.NoError(t, err)
	_, err = c.Trigger()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
	require.Equal(t, models.StateDone, c.Snapshot().State)
}

func TestCreateAndGet(t *testing.T) {
	r, _ := newRegistry(t, 0)

	ws, err := r.Create("alice")
	require.NoError(t, err)
	assert.NotEmpty(t, ws.ID)
	assert.Equal(t, mode.Merge, ws.Switch.Active())

	got, err := r.Get(ws.ID, "alice")
	require.NoError(t, err)
	assert.Same(t, ws, got)

	// other owners cannot see it
	_, err = r.Get(ws.ID, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get("missing", "alice")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{ws.ID}, r.List("alice"))
	assert.Empty(t, r.List("bob"))
}

func TestModeSwitchKeepsToolsIndependent(t *testing.T) {
	r, _ := newRegistry(t, 0)
	ws, err := r.Create("")
	require.NoError(t, err)

	finishMerge(t, ws)
	ws.Switch.Set(mode.Convert)
	assert.Same(t, ws.Active(), mustTool(t, ws, mode.Convert))

	ws.Switch.Set(mode.Merge)
	view := ws.View()
	assert.Equal(t, mode.Merge, view.ActiveMode)
	assert.Equal(t, models.StateDone, view.Tools["merge"].State)
	assert.Equal(t, models.StateIdle, view.Tools["convert"].State)
}

func mustTool(t *testing.T, ws *Workspace, m mode.Mode) *tool.Controller {
	t.Helper()
	c, ok := ws.Tool(m)
	require.True(t, ok)
	return c
}

func TestDeleteReleasesLeases(t *testing.T) {
	r, leases := newRegistry(t, 0)
	ws, err := r.Create("")
	require.NoError(t, err)
	finishMerge(t, ws)
	assert.Equal(t, 1, leases.Stats().Live)

	assert.ErrorIs(t, r.Delete(context.Background(), ws.ID, "someone"), ErrNotFound)
	require.NoError(t, r.Delete(context.Background(), ws.ID, ""))
	assert.Equal(t, 0, leases.Stats().Live)
	assert.Equal(t, 0, r.Len())
}

func TestSweepExpiresIdleWorkspaces(t *testing.T) {
	r, leases := newRegistry(t, time.Minute)
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	stale, err := r.Create("")
	require.NoError(t, err)
	finishMerge(t, stale)

	clock = clock.Add(45 * time.Second)
	fresh, err := r.Create("")
	require.NoError(t, err)

	clock = clock.Add(30 * time.Second)
	assert.Equal(t, 1, r.Sweep(context.Background()))

	_, err = r.Get(stale.ID, "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(fresh.ID, "")
	assert.NoError(t, err)
	assert.Equal(t, 0, leases.Stats().Live)
}

func TestSweepDisabledWithoutTTL(t *testing.T) {
	r, _ := newRegistry(t, 0)
	_, err := r.Create("")
	require.NoError(t, err)
	r.now = func() time.Time { return time.Now().Add(24 * time.Hour) }

	assert.Equal(t, 0, r.Sweep(context.Background()))
}

func TestCloseTearsDownEverything(t *testing.T) {
	r, leases := newRegistry(t, 0)

	var created []string
	r.OnCreate(func(ws *Workspace) { created = append(created, ws.ID) })

	a, err := r.Create("")
	require.NoError(t, err)
	b, err := r.Create("")
	require.NoError(t, err)
	finishMerge(t, a)
	finishMerge(t, b)
	assert.Equal(t, []string{a.ID, b.ID}, created)

	r.Close(context.Background())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, lease.Stats{Created: 2, Revoked: 2}, leases.Stats())

	_, err = r.Create("")
	assert.ErrorIs(t, err, ErrClosed)
}
