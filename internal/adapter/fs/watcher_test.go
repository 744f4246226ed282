package fs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dupguard/config"
	"dupguard/internal/domain"
)

type eventLog struct {
	mu     sync.Mutex
	events []domain.FileEvent
}

func (l *eventLog) submit(_ context.Context, ev domain.FileEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) has(path string, op domain.EventOp) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.Path == path && ev.Op == op {
			return true
		}
	}
	return false
}

func (l *eventLog) hasPrefix(dir string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if rel, err := filepath.Rel(dir, ev.Path); err == nil && rel != ".." && rel[0] != '.' {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T, root string) *eventLog {
	t.Helper()
	w, err := NewWatcher(root, NewWalker(config.DefaultConfig().Index), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	log := &eventLog{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, log.submit)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
	return log
}

func TestWatcher_ModifyAndDelete(t *testing.T) {
	root := t.TempDir()
	existing := writeFile(t, root, "pkg/a.go", "package pkg")
	log := startWatcher(t, root)

	created := writeFile(t, root, "pkg/b.go", "package pkg\n")
	require.Eventually(t, func() bool { return log.has(created, domain.OpModify) }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(existing))
	require.Eventually(t, func() bool { return log.has(existing, domain.OpDelete) }, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	log := startWatcher(t, root)

	dir := filepath.Join(root, "feature")
	require.NoError(t, os.Mkdir(dir, 0755))
	// give the watcher a moment to add the new directory
	time.Sleep(200 * time.Millisecond)

	later := writeFile(t, root, "feature/later.py", "x = 1\n")
	require.Eventually(t, func() bool { return log.has(later, domain.OpModify) }, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_IgnoresExcluded(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0755))
	log := startWatcher(t, root)

	writeFile(t, root, "node_modules/x.js", "module.exports = 1")
	writeFile(t, root, "notes.txt", "hello")
	marker := writeFile(t, root, "marker.go", "package x")
	require.Eventually(t, func() bool { return log.has(marker, domain.OpModify) }, 5*time.Second, 20*time.Millisecond)

	require.False(t, log.hasPrefix(filepath.Join(root, "node_modules")))
	require.False(t, log.has(filepath.Join(root, "notes.txt"), domain.OpModify))
}
