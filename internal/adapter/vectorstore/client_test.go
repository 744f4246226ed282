package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dupguard/config"
	"dupguard/internal/domain"
)

func testStoreConfig() config.StoreConfig {
	cfg := config.DefaultConfig().Store
	cfg.Timeout = time.Second
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return cfg
}

func point(id, path string, vec ...float32) domain.Point {
	return domain.Point{ID: id, Vector: vec, Payload: domain.Payload{FilePath: path, UnitKind: domain.UnitFunction}}
}

func TestEnsureCollection_Idempotent(t *testing.T) {
	ctx := context.Background()
	c := NewClient(NewMemoryBackend(), testStoreConfig())

	require.NoError(t, c.EnsureCollection(ctx, "ws", 3, domain.Cosine))
	require.NoError(t, c.EnsureCollection(ctx, "ws", 3, domain.Cosine))

	info, err := c.Describe(ctx, "ws")
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, 3, info.VectorSize)
}

func TestEnsureCollection_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	c := NewClient(NewMemoryBackend(), testStoreConfig())
	require.NoError(t, c.EnsureCollection(ctx, "ws", 3, domain.Cosine))

	err := c.EnsureCollection(ctx, "ws", 4, domain.Cosine)
	var dm *domain.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Existing)
	assert.Equal(t, 4, dm.Requested)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	// never auto-migrated
	info, err := c.Describe(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, 3, info.VectorSize)
}

func TestUpsertQueryDelete(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	c := NewClient(mem, testStoreConfig())
	require.NoError(t, c.EnsureCollection(ctx, "ws", 2, domain.Cosine))

	require.NoError(t, c.Upsert(ctx, "ws", []domain.Point{
		point("a", "a.py", 1, 0),
		point("b", "b.py", 1, 1),
		point("c", "c.py", 0, 1),
	}))
	// overwrite by ID
	require.NoError(t, c.Upsert(ctx, "ws", []domain.Point{point("a", "a.py", 1, 0.01)}))
	assert.Len(t, mem.Points("ws"), 3)

	results, err := c.Query(ctx, "ws", []float32{1, 0}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.5)
		assert.LessOrEqual(t, r.Score, 1.0)
	}

	limited, err := c.Query(ctx, "ws", []float32{1, 0}, 1, 0)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, c.DeleteByPath(ctx, "ws", "a.py"))
	results, err = c.Query(ctx, "ws", []float32{1, 0}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b.py", results[0].Payload.FilePath)
}

func TestQuery_MissingCollection(t *testing.T) {
	c := NewClient(NewMemoryBackend(), testStoreConfig())
	_, err := c.Query(context.Background(), "nope", []float32{1}, 5, 0.7)
	assert.True(t, domain.IsCollectionNotFound(err))
	assert.False(t, domain.IsStoreUnavailable(err))
}

// flakyBackend fails every call with err until failures run out.
type flakyBackend struct {
	*MemoryBackend
	failures int32
	calls    atomic.Int32
	err      error
}

func (f *flakyBackend) Describe(ctx context.Context, collection string) (domain.CollectionInfo, error) {
	if n := f.calls.Add(1); n <= f.failures {
		return domain.CollectionInfo{}, f.err
	}
	return f.MemoryBackend.Describe(ctx, collection)
}

func TestRetry_RecoversFromTransientErrors(t *testing.T) {
	f := &flakyBackend{
		MemoryBackend: NewMemoryBackend(),
		failures:      2,
		err:           fmt.Errorf("%w: connection refused", domain.ErrTransientStore),
	}
	c := NewClient(f, testStoreConfig())

	_, err := c.Describe(context.Background(), "ws")
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.calls.Load())
}

func TestRetry_ExhaustionIsStoreUnavailable(t *testing.T) {
	f := &flakyBackend{
		MemoryBackend: NewMemoryBackend(),
		failures:      100,
		err:           fmt.Errorf("%w: connection refused", domain.ErrTransientStore),
	}
	c := NewClient(f, testStoreConfig())

	_, err := c.Describe(context.Background(), "ws")
	var su *domain.StoreUnavailableError
	require.ErrorAs(t, err, &su)
	assert.Equal(t, 3, su.Attempts)
	assert.Equal(t, int32(3), f.calls.Load())
	assert.True(t, domain.IsStoreUnavailable(err))
}

func TestRetry_PermanentErrorsAreNotRetried(t *testing.T) {
	f := &flakyBackend{
		MemoryBackend: NewMemoryBackend(),
		failures:      100,
		err:           errors.New("bad request"),
	}
	c := NewClient(f, testStoreConfig())

	_, err := c.Describe(context.Background(), "ws")
	require.Error(t, err)
	assert.False(t, domain.IsStoreUnavailable(err))
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestPointID_Stable(t *testing.T) {
	a := PointID("src/a.py", domain.UnitFunction, 1)
	assert.Equal(t, a, PointID("src/a.py", domain.UnitFunction, 1))
	assert.NotEqual(t, a, PointID("src/a.py", domain.UnitFunction, 2))
	assert.NotEqual(t, a, PointID("src/a.py", domain.UnitClass, 1))
	assert.NotEqual(t, a, PointID("src/b.py", domain.UnitFunction, 1))
	assert.Len(t, a, 36)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, clamp(1.0000002))
	assert.Equal(t, 0.0, clamp(-0.3))
	assert.Equal(t, 0.42, clamp(0.42))
}
