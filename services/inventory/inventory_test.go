package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBackend struct {
	*MemoryBackend
	reads    int
	failNext error
}

func (b *countingBackend) Read(ctx context.Context) (Data, error) {
	b.reads++
	return b.MemoryBackend.Read(ctx)
}

func (b *countingBackend) Write(ctx context.Context, d Data) error {
	if b.failNext != nil {
		err := b.failNext
		b.failNext = nil
		return err
	}
	return b.MemoryBackend.Write(ctx, d)
}

func strPtr(s string) *string { return &s }

func TestInventoryLoadsLazilyOnce(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{MemoryBackend: NewMemoryBackend(Data{
		Root:  strPtr("webroot"),
		Files: map[string]Entry{"img/a.png": {Remote: "img/a.png", URL: "cdn.example.com/img/a.png"}},
	})}

	inv, err := New(backend)
	require.NoError(t, err)
	assert.Equal(t, 0, backend.reads)

	url, ok, err := inv.URL(ctx, "img/a.png")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cdn.example.com/img/a.png", url)

	root, ok, err := inv.Root(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "webroot", root)

	_, _, err = inv.RemoteFile(ctx, "img/a.png")
	require.NoError(t, err)
	assert.Equal(t, 1, backend.reads)
}

func TestInventoryPutWritesThrough(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(Data{})
	inv, err := New(backend)
	require.NoError(t, err)

	require.NoError(t, inv.Put(ctx, "a.png", "a.png", "cdn.example.com/a.png"))
	require.NoError(t, inv.Put(ctx, "b.css", "b_123.css", "cdn.example.com/b_123.css"))
	require.NoError(t, inv.Put(ctx, "a.png", "a_456.png", "cdn2.example.com/a_456.png"))
	assert.Equal(t, 3, backend.Writes())

	stored, err := backend.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, Entry{Remote: "a_456.png", URL: "cdn2.example.com/a_456.png"}, stored.Files["a.png"])
	assert.Len(t, stored.Files, 2)

	remote, ok, err := inv.RemoteFile(ctx, "b.css")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b_123.css", remote)
}

func TestInventoryMissingAndEmptyEntriesAreAbsent(t *testing.T) {
	ctx := context.Background()
	inv, err := New(NewMemoryBackend(Data{Files: map[string]Entry{"empty.png": {}}}))
	require.NoError(t, err)

	_, ok, err := inv.URL(ctx, "empty.png")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = inv.URL(ctx, "unknown.png")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = inv.Root(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInventoryClear(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(Data{Files: map[string]Entry{"a.png": {Remote: "a.png", URL: "x/a.png"}}})
	inv, err := New(backend)
	require.NoError(t, err)

	require.NoError(t, inv.Clear(ctx, strPtr("public")))

	stored, err := backend.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored.Root)
	assert.Equal(t, "public", *stored.Root)
	assert.Empty(t, stored.Files)

	require.NoError(t, inv.Clear(ctx, nil))
	_, ok, err := inv.Root(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInventoryMerge(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(Data{Root: strPtr("web"), Files: map[string]Entry{
		"a.png": {Remote: "a.png", URL: "x/a.png"},
		"b.png": {Remote: "b.png", URL: "x/b.png"},
	}})
	inv, err := New(backend)
	require.NoError(t, err)

	require.NoError(t, inv.Merge(ctx, Data{Root: strPtr("ignored"), Files: map[string]Entry{
		"b.png": {Remote: "b_1.png", URL: "y/b_1.png"},
		"c.png": {Remote: "c.png", URL: "y/c.png"},
	}}))
	assert.Equal(t, 1, backend.Writes())

	snap, err := inv.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "web", *snap.Root)
	assert.Equal(t, map[string]Entry{
		"a.png": {Remote: "a.png", URL: "x/a.png"},
		"b.png": {Remote: "b_1.png", URL: "y/b_1.png"},
		"c.png": {Remote: "c.png", URL: "y/c.png"},
	}, snap.Files)
}

func TestInventoryPutRevertsOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{MemoryBackend: NewMemoryBackend(Data{Files: map[string]Entry{
		"a.png": {Remote: "a.png", URL: "x/a.png"},
	}})}
	inv, err := New(backend)
	require.NoError(t, err)

	backend.failNext = errors.New("disk full")
	err = inv.Put(ctx, "a.png", "a_2.png", "x/a_2.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	url, ok, err := inv.URL(ctx, "a.png")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x/a.png", url)

	backend.failNext = errors.New("disk full")
	require.Error(t, inv.Put(ctx, "new.png", "new.png", "x/new.png"))
	_, ok, err = inv.URL(ctx, "new.png")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInventoryMergeRevertsOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	backend := &countingBackend{MemoryBackend: NewMemoryBackend(Data{Files: map[string]Entry{
		"a.png": {Remote: "a.png", URL: "x/a.png"},
	}})}
	inv, err := New(backend)
	require.NoError(t, err)

	backend.failNext = errors.New("disk full")
	err = inv.Merge(ctx, Data{Files: map[string]Entry{
		"a.png": {Remote: "a_2.png", URL: "x/a_2.png"},
		"b.png": {Remote: "b.png", URL: "x/b.png"},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	_, ok, err := inv.URL(ctx, "b.png")
	require.NoError(t, err)
	assert.False(t, ok)
	url, ok, err := inv.URL(ctx, "a.png")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x/a.png", url)

	require.NoError(t, inv.Put(ctx, "c.png", "c.png", "x/c.png"))
	persisted, err := backend.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, persisted.Files, 2)
	assert.NotContains(t, persisted.Files, "b.png")
}

func TestInventoryReadError(t *testing.T) {
	inv, err := New(failingBackend{err: errors.New("permission denied")})
	require.NoError(t, err)

	_, _, err = inv.URL(context.Background(), "a.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read inventory")
}

type failingBackend struct{ err error }

func (b failingBackend) Read(context.Context) (Data, error) { return Data{}, b.err }
func (b failingBackend) Write(context.Context, Data) error  { return b.err }

func TestNewRequiresBackend(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}
