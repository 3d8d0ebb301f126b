package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, p Provider) {
	t.Helper()
	ctx := context.Background()

	id, err := p.Store(ctx, "my deck.pptx", strings.NewReader("slide bytes"), 11, map[string]string{
		MetaFileName:    "my deck.pptx",
		MetaContentType: "application/octet-stream",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(id, "-my_deck.pptx"), "id %q", id)

	rc, meta, err := p.Retrieve(ctx, id)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "slide bytes", string(data))
	assert.Equal(t, "my deck.pptx", meta[MetaFileName])

	files, err := p.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "my deck.pptx", files[0].Name)
	assert.Equal(t, int64(11), files[0].Size)

	require.NoError(t, p.Delete(ctx, id))
	_, _, err = p.Retrieve(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, p.Delete(ctx, id), ErrNotFound)
}

func TestMemoryStorageRoundTrip(t *testing.T) {
	p := NewMemoryStorage()
	require.NoError(t, p.Initialize(nil))
	roundTrip(t, p)
	assert.Equal(t, 0, p.Len())
}

func TestMemoryReaderSurvivesDelete(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryStorage()
	require.NoError(t, p.Initialize(map[string]string{}))

	id, err := p.Store(ctx, "a.pptx", strings.NewReader("abc"), 3, nil)
	require.NoError(t, err)

	rc, _, err := p.Retrieve(ctx, id)
	require.NoError(t, err)
	require.NoError(t, p.Delete(ctx, id))

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestMemorySignedURLUnsupported(t *testing.T) {
	p := NewMemoryStorage()
	_, err := p.GetSignedURL(context.Background(), "x", 5, "read")
	assert.ErrorIs(t, err, ErrSignedURLUnsupported)
}

func TestLocalStorageRoundTrip(t *testing.T) {
	p := NewLocalStorage()
	require.NoError(t, p.Initialize(map[string]string{"basePath": t.TempDir()}))
	roundTrip(t, p)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	p := NewLocalStorage()
	require.NoError(t, p.Initialize(map[string]string{"basePath": t.TempDir()}))

	_, _, err := p.Retrieve(context.Background(), "../etc/passwd")
	assert.Error(t, err)
}

func TestFactory(t *testing.T) {
	f := NewFactory(nil)

	p, err := f.Create("", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, p)

	_, err = f.Create("ftp", nil)
	assert.Error(t, err)

	// missing region fails Initialize and marks the type unavailable
	_, err = f.Create("amazon", map[string]string{})
	require.Error(t, err)
	ok, reason := f.IsAvailable("s3")
	assert.False(t, ok)
	assert.Contains(t, reason, "region")

	statuses := f.Statuses()
	assert.True(t, statuses[TypeMemory].Available)
	assert.False(t, statuses[TypeS3].Available)

	_, err = f.Create("aws", map[string]string{"region": "us-east-1", "bucket": "b"})
	assert.ErrorContains(t, err, "unavailable")
}

func TestFactoryCustomProvider(t *testing.T) {
	f := NewFactory(nil)
	f.Register("scratch", func() Provider { return NewMemoryStorage() })

	p, err := f.Create("scratch", nil)
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Contains(t, f.Statuses(), "scratch")
}
