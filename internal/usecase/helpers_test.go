package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dupguard/config"
	"dupguard/internal/adapter/chunker"
	"dupguard/internal/adapter/embedding"
	"dupguard/internal/adapter/fs"
	"dupguard/internal/adapter/memstore"
	"dupguard/internal/adapter/vectorstore"
	"dupguard/internal/adapter/workspace"
	"dupguard/internal/domain"
	"dupguard/internal/port"
)

// harness wires an indexer and a guard over the in-memory backend.
type harness struct {
	cfg      *config.Config
	ws       domain.Workspace
	backend  *vectorstore.MemoryBackend
	client   *vectorstore.Client
	embedder port.Embedder
	ledger   *memstore.MemoryLedger
	indexer  *IndexService
	guard    *GuardUseCase
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, config.DefaultConfig(), nil)
}

func newHarnessWith(t *testing.T, cfg *config.Config, embedder port.Embedder) *harness {
	t.Helper()
	return newHarnessFull(t, cfg, embedder, vectorstore.NewMemoryBackend())
}

// newHarnessOn builds a harness on its own root over a shared backend.
func newHarnessOn(t *testing.T, cfg *config.Config, backend *vectorstore.MemoryBackend) *harness {
	t.Helper()
	return newHarnessFull(t, cfg, nil, backend)
}

func newHarnessFull(t *testing.T, cfg *config.Config, embedder port.Embedder, backend *vectorstore.MemoryBackend) *harness {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0755))

	resolver := workspace.NewResolver(cfg)
	ws, err := resolver.Resolve(root)
	require.NoError(t, err)

	if embedder == nil {
		embedder = embedding.NewHashingEmbedder(cfg.Embedding.Dimension, "")
	}
	client := vectorstore.NewClient(backend, cfg.Store)
	extractor := chunker.NewExtractor(cfg.Index)
	ledger := memstore.NewMemoryLedger()

	h := &harness{
		cfg:      cfg,
		ws:       ws,
		backend:  backend,
		client:   client,
		embedder: embedder,
		ledger:   ledger,
		indexer:  NewIndexService(ws, client, embedder, extractor, ledger, fs.NewWalker(cfg.Index), zap.NewNop()),
		guard:    NewGuardUseCase(cfg, resolver, client, embedder, extractor, zap.NewNop()),
	}
	require.NoError(t, h.indexer.Prepare(context.Background(), "test"))
	return h
}

func (h *harness) path(rel string) string {
	return filepath.Join(h.ws.Root, filepath.FromSlash(rel))
}

func (h *harness) write(t *testing.T, rel, content string) string {
	t.Helper()
	p := h.path(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func (h *harness) index(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, h.indexer.HandleEvent(context.Background(), domain.FileEvent{Path: h.path(rel), Op: domain.OpModify}))
}

func (h *harness) remove(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.RemoveAll(h.path(rel)))
	require.NoError(t, h.indexer.HandleEvent(context.Background(), domain.FileEvent{Path: h.path(rel), Op: domain.OpDelete}))
}

func (h *harness) check(rel, content string) domain.GuardResponse {
	return h.guard.Check(context.Background(), domain.GuardRequest{
		Tool:           "Write",
		TargetFilePath: h.path(rel),
		PendingContent: content,
	})
}

func (h *harness) points() []domain.Point {
	return h.backend.Points(h.ws.Collection)
}

func (h *harness) pointsFor(rel string) []domain.Point {
	var out []domain.Point
	for _, p := range h.points() {
		if p.Payload.FilePath == rel {
			out = append(out, p)
		}
	}
	return out
}
