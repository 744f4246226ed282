package usecase

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunService_ScanThenWatch(t *testing.T) {
	h := newHarness(t)
	h.write(t, "existing.py", totalFn)

	cfg := h.cfg.Index
	cfg.Reconcile = "@every 1h"
	run := NewRunService(h.indexer, cfg, "test", h.indexer.logger)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- run.Run(ctx) }()

	require.Eventually(t, func() bool { return len(h.pointsFor("existing.py")) == 1 }, 5*time.Second, 20*time.Millisecond)

	h.write(t, "fresh.go", goFile)
	require.Eventually(t, func() bool { return len(h.pointsFor("fresh.go")) == 2 }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(h.path("existing.py")))
	require.Eventually(t, func() bool { return len(h.pointsFor("existing.py")) == 0 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestRunService_InvalidReconcileSpec(t *testing.T) {
	h := newHarness(t)
	cfg := h.cfg.Index
	cfg.Reconcile = "not a cron spec"
	run := NewRunService(h.indexer, cfg, "test", h.indexer.logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Error(t, run.Run(ctx))
}
