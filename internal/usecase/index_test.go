package usecase

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dupguard/config"
	"dupguard/internal/adapter/chunker"
	"dupguard/internal/adapter/embedding"
	"dupguard/internal/adapter/fs"
	"dupguard/internal/adapter/memstore"
	"dupguard/internal/domain"
	"dupguard/internal/port"
)

const goFile = `package calc

func Add(a, b int) int {
	return a + b
}

func Multiply(a, b int) int {
	result := 0
	for i := 0; i < b; i++ {
		result += a
	}
	return result
}
`

func TestIndex_StoresRelativePayloads(t *testing.T) {
	h := newHarness(t)
	abs := h.write(t, "pkg/calc.go", goFile)
	h.index(t, "pkg/calc.go")

	points := h.points()
	require.Len(t, points, 2)
	for _, p := range points {
		assert.Equal(t, "pkg/calc.go", p.Payload.FilePath)
		assert.Equal(t, domain.UnitFunction, p.Payload.UnitKind)
		assert.Equal(t, "go", p.Payload.Language)
		assert.Len(t, p.Payload.ContentHash, 64)
		assert.False(t, p.Payload.IndexedAt.IsZero())
		assert.Equal(t, h.ws.Root, p.Payload.WorkspaceRoot)
		assert.Len(t, p.Vector, h.embedder.Dimension())

		// path round trip
		assert.Equal(t, abs, h.ws.Abs(p.Payload.FilePath))
	}
}

func TestIndex_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.write(t, "calc.go", goFile)

	h.index(t, "calc.go")
	first := h.points()
	embedded := h.indexer.Stats().UnitsEmbedded
	require.Equal(t, int64(2), embedded)

	h.index(t, "calc.go")
	assert.Equal(t, first, h.points())
	assert.Equal(t, embedded, h.indexer.Stats().UnitsEmbedded)
	assert.Equal(t, int64(1), h.indexer.Stats().FilesUnchanged)

	// a touched but unchanged file is re-read, not re-embedded
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(h.path("calc.go"), later, later))
	h.index(t, "calc.go")
	assert.Len(t, h.points(), 2)
	assert.Equal(t, embedded, h.indexer.Stats().UnitsEmbedded)
	assert.Equal(t, int64(2), h.indexer.Stats().UnitsReused)
}

func TestIndex_ModifyOverwritesAndRemovesStaleUnits(t *testing.T) {
	h := newHarness(t)
	h.write(t, "calc.go", goFile)
	h.index(t, "calc.go")
	before := h.pointsFor("calc.go")
	require.Len(t, before, 2)

	changed := strings.Replace(goFile, "return a + b", "return b + a + 0", 1)
	h.write(t, "calc.go", changed)
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(h.path("calc.go"), future, future))
	h.index(t, "calc.go")

	after := h.pointsFor("calc.go")
	require.Len(t, after, 2)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, before[1].ID, after[1].ID)
	assert.Equal(t, int64(3), h.indexer.Stats().UnitsEmbedded)

	onlyAdd := "package calc\n\nfunc Add(a, b int) int {\n\treturn b + a + 0\n}\n"
	h.write(t, "calc.go", onlyAdd)
	future = future.Add(time.Minute)
	require.NoError(t, os.Chtimes(h.path("calc.go"), future, future))
	h.index(t, "calc.go")

	remaining := h.pointsFor("calc.go")
	require.Len(t, remaining, 1)
	rec, err := h.ledger.GetFile("calc.go")
	require.NoError(t, err)
	assert.Len(t, rec.Units, 1)
}

func TestIndex_DeleteFileAndDirectory(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.py", "def total(x): return x*2\n")
	h.write(t, "pkg/b.py", "def double(value): return value + value\n")
	h.write(t, "pkg/sub/c.py", "def triple(value): return value * 3\n")
	for _, rel := range []string{"a.py", "pkg/b.py", "pkg/sub/c.py"} {
		h.index(t, rel)
	}
	require.Len(t, h.points(), 3)

	h.remove(t, "a.py")
	assert.Empty(t, h.pointsFor("a.py"))
	assert.Len(t, h.points(), 2)

	h.remove(t, "pkg")
	assert.Empty(t, h.points())
	paths, err := h.ledger.ListFiles("")
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.Equal(t, int64(3), h.indexer.Stats().FilesRemoved)
}

// failingRecordLedger accepts vectors but cannot persist file records.
type failingRecordLedger struct {
	*memstore.MemoryLedger
}

func (failingRecordLedger) PutFile(string, *port.FileRecord) error {
	return errors.New("disk full")
}

func TestIndex_DeleteClearsPointsWithoutLedgerRecord(t *testing.T) {
	h := newHarness(t)
	h.indexer = NewIndexService(h.ws, h.client, h.embedder, chunker.NewExtractor(h.cfg.Index),
		failingRecordLedger{memstore.NewMemoryLedger()}, fs.NewWalker(h.cfg.Index), zap.NewNop())

	abs := h.write(t, "a.py", totalFn)
	err := h.indexer.HandleEvent(context.Background(), domain.FileEvent{Path: abs, Op: domain.OpModify})
	require.Error(t, err)
	require.NotEmpty(t, h.pointsFor("a.py"), "upsert happened before the ledger write")

	h.remove(t, "a.py")
	assert.Empty(t, h.pointsFor("a.py"))
	assert.Equal(t, domain.Allow, h.check("b.py", totalFn).Decision)
}

// vanishingEmbedder removes a directory while a unit is being embedded.
type vanishingEmbedder struct {
	*embedding.HashingEmbedder
	dir string
}

func (v *vanishingEmbedder) Embed(ctx context.Context, text, language string) ([]float32, error) {
	if v.dir != "" {
		_ = os.RemoveAll(v.dir)
	}
	return v.HashingEmbedder.Embed(ctx, text, language)
}

func TestIndex_FileRemovedMidIndexLeavesNoPoints(t *testing.T) {
	cfg := config.DefaultConfig()
	emb := &vanishingEmbedder{HashingEmbedder: embedding.NewHashingEmbedder(cfg.Embedding.Dimension, "")}
	h := newHarnessWith(t, cfg, emb)

	h.write(t, "pkg/a.py", totalFn)
	emb.dir = h.path("pkg")
	h.index(t, "pkg/a.py")

	assert.Empty(t, h.pointsFor("pkg/a.py"))
	rec, err := h.ledger.GetFile("pkg/a.py")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, int64(0), h.indexer.Stats().FilesIndexed)
}

func TestIndex_ModifyOfVanishedFileDeletes(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.py", "def total(x): return x*2\n")
	h.index(t, "a.py")

	require.NoError(t, os.Remove(h.path("a.py")))
	h.index(t, "a.py")
	assert.Empty(t, h.points())
}

func TestIndex_IgnoresPathsOutsideWorkspaceAndExcluded(t *testing.T) {
	h := newHarness(t)
	outside := t.TempDir() + "/x.py"
	require.NoError(t, os.WriteFile(outside, []byte("def outside_function(): return 1\n"), 0644))
	require.NoError(t, h.indexer.HandleEvent(context.Background(), domain.FileEvent{Path: outside, Op: domain.OpModify}))

	h.write(t, "node_modules/lib/index.js", "function leftPad(s, n) { return s.padStart(n) }\n")
	h.index(t, "node_modules/lib/index.js")

	assert.Empty(t, h.points())
}

// poisonEmbedder fails for units containing a marker.
type poisonEmbedder struct {
	*embedding.HashingEmbedder
}

func (p poisonEmbedder) Embed(ctx context.Context, text, language string) ([]float32, error) {
	if strings.Contains(text, "POISON") {
		return nil, errors.Join(domain.ErrEmbedding, errors.New("model rejected input"))
	}
	return p.HashingEmbedder.Embed(ctx, text, language)
}

func TestIndex_EmbeddingFailureSkipsUnitOnly(t *testing.T) {
	cfg := config.DefaultConfig()
	h := newHarnessWith(t, cfg, poisonEmbedder{embedding.NewHashingEmbedder(cfg.Embedding.Dimension, "")})

	h.write(t, "mixed.py", "def good(value):\n    return value + 1\n\n\ndef bad(value):\n    return 'POISON' + value\n")
	h.index(t, "mixed.py")

	points := h.pointsFor("mixed.py")
	require.Len(t, points, 1)
	assert.Equal(t, "good", points[0].Payload.Name)
	assert.Equal(t, int64(1), h.indexer.Stats().UnitsSkipped)
}

func TestIndex_VectorCacheAvoidsReembedding(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.py", "def total(x): return x*2\n")
	h.index(t, "a.py")

	// same content under another path hits the content-addressed cache
	h.write(t, "b.py", "def total(x): return x*2\n")
	h.index(t, "b.py")

	assert.Equal(t, int64(1), h.indexer.Stats().UnitsEmbedded)
	assert.Len(t, h.points(), 2)
}

func TestScan_SubmitsModifiesAndDeletes(t *testing.T) {
	h := newHarness(t)
	h.write(t, "keep.go", goFile)
	h.write(t, "gone.py", "def total(x): return x*2\n")
	h.index(t, "gone.py")
	require.NoError(t, os.Remove(h.path("gone.py")))

	var events []domain.FileEvent
	n, err := h.indexer.Scan(context.Background(), func(_ context.Context, ev domain.FileEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, events, domain.FileEvent{Path: h.path("keep.go"), Op: domain.OpModify})
	assert.Contains(t, events, domain.FileEvent{Path: h.path("gone.py"), Op: domain.OpDelete})
}

func TestRunOnce_IndexesTree(t *testing.T) {
	h := newHarness(t)
	h.write(t, "calc.go", goFile)
	h.write(t, "lib/util.py", "def total(x): return x*2\n")
	h.write(t, "README.md", "not indexed")

	cfg := h.cfg.Index
	cfg.Workers = 2
	run := NewRunService(h.indexer, cfg, "test", h.indexer.logger)

	var done atomic.Int32
	require.NoError(t, run.RunOnce(context.Background(), func() { done.Add(1) }))

	assert.Equal(t, int32(2), done.Load())
	assert.Len(t, h.points(), 3)
	assert.Equal(t, int64(2), h.indexer.Stats().FilesIndexed)
}

func TestPrepare_DimensionMismatchIsFatal(t *testing.T) {
	h := newHarness(t)
	cfg := config.DefaultConfig()
	other := embedding.NewHashingEmbedder(cfg.Embedding.Dimension*2, "")

	idx := NewIndexService(h.ws, h.client, other, nil, h.ledger, nil, h.indexer.logger)
	err := idx.Prepare(context.Background(), "test")

	var mismatch *domain.DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
