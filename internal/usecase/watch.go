package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"dupguard/config"
	dgfs "dupguard/internal/adapter/fs"
	"dupguard/internal/adapter/logging"
	"dupguard/internal/domain"
)

// RunService is the long-running indexer: a full scan, then filesystem
// events, with periodic reconcile scans to repair events the OS dropped.
type RunService struct {
	indexer     *IndexService
	cfg         config.IndexConfig
	fingerprint string
	logger      *zap.Logger
	scanning    atomic.Bool
}

func NewRunService(indexer *IndexService, cfg config.IndexConfig, fingerprint string, logger *zap.Logger) *RunService {
	return &RunService{
		indexer:     indexer,
		cfg:         cfg,
		fingerprint: fingerprint,
		logger:      logger,
	}
}

// Run blocks until ctx is cancelled. Configuration errors such as a
// dimension mismatch are returned before any work starts.
func (r *RunService) Run(ctx context.Context) error {
	ctx = logging.WithContext(ctx, r.logger)
	if err := r.indexer.Prepare(ctx, r.fingerprint); err != nil {
		return err
	}

	d := NewDispatcher(r.cfg.Workers, r.cfg.QueueSize, r.indexer.HandleEvent, r.logger)

	var c *cron.Cron
	if r.cfg.Reconcile != "" {
		c = cron.New()
		if _, err := c.AddFunc(r.cfg.Reconcile, func() { r.scan(ctx, d, "reconcile") }); err != nil {
			return fmt.Errorf("%w: index.reconcile: %v", domain.ErrConfiguration, err)
		}
	}

	ws := r.indexer.Workspace()
	// watch before scanning so changes made during the scan are not lost
	watcher, err := dgfs.NewWatcher(ws.Root, r.indexer.Walker(), r.logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	d.Start(ctx)
	defer d.Close()

	go r.scan(ctx, d, "startup")
	if c != nil {
		c.Start()
		defer c.Stop()
	}

	r.logger.Info("watching workspace",
		zap.String("root", ws.Root),
		zap.String("collection", ws.Collection),
		zap.Bool("degraded", ws.Degraded))

	err = watcher.Run(ctx, d.Submit)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// scan runs one full scan unless another is still in progress.
func (r *RunService) scan(ctx context.Context, d *Dispatcher, reason string) {
	if !r.scanning.CompareAndSwap(false, true) {
		r.logger.Debug("scan already running", zap.String("reason", reason))
		return
	}
	defer r.scanning.Store(false)

	start := time.Now()
	n, err := r.indexer.Scan(ctx, d.Submit)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("scan failed", zap.String("reason", reason), zap.Error(err))
		}
		return
	}
	r.logger.Info("scan queued",
		zap.String("reason", reason),
		zap.Int("events", n),
		zap.Duration("elapsed", time.Since(start)))
}

// RunOnce prepares the workspace, performs a single full scan and waits for
// every event to be applied. done, if set, is called after each event.
func (r *RunService) RunOnce(ctx context.Context, done func()) error {
	ctx = logging.WithContext(ctx, r.logger)
	if err := r.indexer.Prepare(ctx, r.fingerprint); err != nil {
		return err
	}

	handle := r.indexer.HandleEvent
	if done != nil {
		handle = func(ctx context.Context, ev domain.FileEvent) error {
			defer done()
			return r.indexer.HandleEvent(ctx, ev)
		}
	}
	d := NewDispatcher(r.cfg.Workers, r.cfg.QueueSize, handle, r.logger)
	d.Start(ctx)

	_, err := r.indexer.Scan(ctx, d.Submit)
	d.Close()
	if err != nil {
		return err
	}
	return ctx.Err()
}

// Stats returns the indexer counters.
func (r *RunService) Stats() domain.IndexStats {
	return r.indexer.Stats()
}
