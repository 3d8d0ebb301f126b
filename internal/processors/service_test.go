package processors

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ppttools/internal/lease"
	"github.com/example/ppttools/internal/models"
	"github.com/example/ppttools/internal/storage"
)

func newLeases(t *testing.T) *lease.Manager {
	t.Helper()
	backend := storage.NewMemoryStorage()
	require.NoError(t, backend.Initialize(nil))
	return lease.NewManager(backend, nil)
}

func readLease(t *testing.T, m *lease.Manager, ref string) string {
	t.Helper()
	rc, err := m.Open(context.Background(), lease.Ref(ref))
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func file(name, content string) models.StagedFile {
	return models.NewStagedFile(name, "application/octet-stream", []byte(content))
}

func TestMergeManyLeasesFirstFile(t *testing.T) {
	leases := newLeases(t)
	svc := NewService(leases, WithDelay(time.Millisecond))

	result, err := svc.MergeMany(context.Background(), []models.StagedFile{
		file("a.pptx", "content-a"),
		file("b.pptx", "content-b"),
	})
	require.NoError(t, err)

	assert.Equal(t, "merged_presentation.pptx", result.FileName)
	assert.Equal(t, "content-a", readLease(t, leases, result.Lease))
	assert.Equal(t, int64(9), result.Size)
	assert.Equal(t, lease.Stats{Created: 1, Live: 1}, leases.Stats())
}

func TestMergeManyEmptyInput(t *testing.T) {
	leases := newLeases(t)
	svc := NewService(leases, WithDelay(time.Millisecond))

	result, err := svc.MergeMany(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Nil(t, result)
	assert.Equal(t, int64(0), leases.Stats().Created)
}

func TestConvertOneKeepsContent(t *testing.T) {
	leases := newLeases(t)
	svc := NewService(leases, WithDelay(time.Millisecond))

	result, err := svc.ConvertOne(context.Background(), file("Deck.PPTX", "original bytes"))
	require.NoError(t, err)

	assert.Equal(t, "Deck.pdf", result.FileName)
	assert.Equal(t, "original bytes", readLease(t, leases, result.Lease))
	assert.Equal(t, "application/octet-stream", result.ContentType)
}

func TestCustomMergedFileName(t *testing.T) {
	svc := NewService(newLeases(t), WithDelay(0), WithMergedFileName("combined.pptx"))

	result, err := svc.MergeMany(context.Background(), []models.StagedFile{file("a.pptx", "a"), file("b.pptx", "b")})
	require.NoError(t, err)
	assert.Equal(t, "combined.pptx", result.FileName)
}

func TestCancelledWaitCreatesNoLease(t *testing.T) {
	leases := newLeases(t)
	svc := NewService(leases, WithDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := svc.ConvertOne(ctx, file("a.pptx", "a"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), leases.Stats().Created)
}

type failingLeaser struct{ lease.Leaser }

func (failingLeaser) Create(ctx context.Context, name, contentType string, content io.Reader, size int64) (lease.Ref, error) {
	return "", errors.New("disk full")
}

func TestLeaseFailureSurfaces(t *testing.T) {
	svc := NewService(failingLeaser{}, WithDelay(0))

	_, err := svc.ConvertOne(context.Background(), file("a.pptx", "a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestPDFName(t *testing.T) {
	tests := map[string]string{
		"Deck.PPTX":       "Deck.pdf",
		"talk.ppt":        "talk.pdf",
		"a.b.pptx":        "a.b.pdf",
		"report.PDF":      "report.pdf",
		"notes.key":       "notes.key.pdf",
		"README":          "README.pdf",
		"pptx":            "pptx.pdf",
		"slides.pptx.bak": "slides.pptx.bak.pdf",
	}
	for in, want := range tests {
		got := PDFName(in)
		assert.Equal(t, want, got, in)
		assert.True(t, strings.HasSuffix(got, ".pdf"))
	}
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 0.0, Progress(0, time.Second))
	assert.Equal(t, 0.0, Progress(time.Second, 0))
	assert.InDelta(t, 50.0, Progress(500*time.Millisecond, time.Second), 0.001)
	assert.Equal(t, 95.0, Progress(2*time.Second, time.Second))
}
