package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"dupguard/internal/domain"
)

// SubmitFunc hands a file event to the indexer.
type SubmitFunc func(ctx context.Context, ev domain.FileEvent) error

// Watcher turns fsnotify notifications below a root into file events.
// fsnotify is not recursive, so every directory that survives the walker's
// exclusions gets its own watch, including ones created later.
type Watcher struct {
	root    string
	walker  *Walker
	watcher *fsnotify.Watcher
	logger  *zap.Logger
}

func NewWatcher(root string, walker *Walker, logger *zap.Logger) (*Watcher, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{root: root, walker: walker, watcher: fw, logger: logger}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Run forwards events until ctx is cancelled or the watcher fails.
func (w *Watcher) Run(ctx context.Context, submit SubmitFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if err := w.handle(ctx, ev, submit); err != nil {
				return err
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			// overflow drops events; the periodic reconcile scan repairs it
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event, submit SubmitFunc) error {
	rel, ok := w.rel(ev.Name)
	if !ok {
		return nil
	}

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if w.walker.underSkippedDir(rel) {
			return nil
		}
		return submit(ctx, domain.FileEvent{Path: ev.Name, Op: domain.OpDelete})

	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Lstat(ev.Name)
		if err != nil {
			// already gone again; the remove event follows
			return nil
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) && !w.walker.SkipDir(rel) {
				return w.addNewDir(ctx, ev.Name, submit)
			}
			return nil
		}
		if !info.Mode().IsRegular() || !w.walker.Match(rel) {
			return nil
		}
		return submit(ctx, domain.FileEvent{Path: ev.Name, Op: domain.OpModify})
	}

	// chmod only
	return nil
}

// addNewDir watches a directory created after startup and emits modify
// events for files that landed in it before the watch was in place.
func (w *Watcher) addNewDir(ctx context.Context, dir string, submit SubmitFunc) error {
	if err := w.addTree(dir); err != nil {
		w.logger.Warn("watch new directory", zap.String("dir", dir), zap.Error(err))
	}
	files, err := w.walkFrom(dir)
	if err != nil {
		w.logger.Warn("scan new directory", zap.String("dir", dir), zap.Error(err))
		return nil
	}
	for _, f := range files {
		if err := submit(ctx, domain.FileEvent{Path: f, Op: domain.OpModify}); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) walkFrom(dir string) ([]string, error) {
	infos, err := w.walker.Walk(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, fi := range infos {
		// the walker matched relative to dir, re-check relative to root
		if rel, ok := w.rel(fi.Path); ok && w.walker.Match(rel) {
			out = append(out, fi.Path)
		}
	}
	return out, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return filepath.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.rel(path); ok && rel != "." && w.walker.SkipDir(rel) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		return nil
	})
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == ".." || filepath.IsAbs(rel) || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
