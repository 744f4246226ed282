package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"dupguard/config"
	"dupguard/internal/adapter/chunker"
	"dupguard/internal/adapter/embedding"
	"dupguard/internal/adapter/fs"
	"dupguard/internal/adapter/store"
	"dupguard/internal/adapter/vectorstore"
	"dupguard/internal/adapter/workspace"
	"dupguard/internal/domain"
	"dupguard/internal/port"
	"dupguard/internal/usecase"
)

// app holds the collaborators every command builds from configuration.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	resolver  *workspace.Resolver
	store     *vectorstore.Client
	embedder  port.Embedder
	extractor *chunker.Extractor
}

func newApp(ctx context.Context) (*app, error) {
	c := GetConfig()
	client, err := vectorstore.Open(c.Store)
	if err != nil {
		return nil, err
	}
	emb, err := embedding.New(ctx, c.Embedding)
	if err != nil {
		client.Close()
		return nil, err
	}
	return &app{
		cfg:       c,
		logger:    logger,
		resolver:  workspace.NewResolver(c),
		store:     client,
		embedder:  emb,
		extractor: chunker.NewExtractor(c.Index),
	}, nil
}

func (a *app) Close() {
	a.store.Close()
}

// workspaceFor resolves the workspace containing dir, falling back to the
// global collection.
func (a *app) workspaceFor(ctx context.Context, dir string) (domain.Workspace, error) {
	return a.resolver.ResolveOrGlobal(ctx, dir)
}

func (a *app) openLedger(ws domain.Workspace) (*store.BoltLedger, error) {
	if err := a.cfg.EnsureStateDir(ws.Root); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return store.NewBoltLedger(a.cfg.LedgerPath(ws.Root))
}

func (a *app) fingerprint(ws domain.Workspace) string {
	return store.ComputeFingerprint(a.cfg, ws.Collection, a.embedder.ModelName(), a.embedder.Dimension())
}

func (a *app) runService(ws domain.Workspace, ledger port.Ledger) *usecase.RunService {
	indexer := usecase.NewIndexService(ws, a.store, a.embedder, a.extractor, ledger, fs.NewWalker(a.cfg.Index), a.logger)
	return usecase.NewRunService(indexer, a.cfg.Index, a.fingerprint(ws), a.logger)
}

func (a *app) guard() *usecase.GuardUseCase {
	return usecase.NewGuardUseCase(a.cfg, a.resolver, a.store, a.embedder, a.extractor, a.logger)
}

// targetDir resolves the optional [path] argument to a directory.
func targetDir(args []string) (string, error) {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return "", fmt.Errorf("invalid path: %w", err)
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", path)
	}
	return path, nil
}
