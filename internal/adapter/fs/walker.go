package fs

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"dupguard/config"
	"dupguard/internal/port"
)

// alwaysSkipped directories are never indexed, whatever the excludes say.
var alwaysSkipped = []string{".git", ".hg", ".svn"}

var _ port.FileWalker = (*Walker)(nil)

type Walker struct {
	includes []string
	excludes []string
	skipDirs map[string]struct{}
}

func NewWalker(cfg config.IndexConfig) *Walker {
	includes := cfg.Includes
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	skip := make(map[string]struct{}, len(alwaysSkipped)+1)
	for _, d := range alwaysSkipped {
		skip[d] = struct{}{}
	}
	if cfg.StateDir != "" && !filepath.IsAbs(cfg.StateDir) {
		skip[filepath.Base(cfg.StateDir)] = struct{}{}
	}
	return &Walker{
		includes: includes,
		excludes: cfg.Excludes,
		skipDirs: skip,
	}
}

// Walk lists every included regular file under root. Unreadable entries are
// skipped so one bad directory does not abort the scan.
func (w *Walker) Walk(root string) ([]port.FileInfo, error) {
	var files []port.FileInfo

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path != root && w.SkipDir(relPath) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !w.Match(relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, port.FileInfo{
			Path:    path,
			ModTime: info.ModTime().UnixNano(),
			Size:    info.Size(),
		})
		return nil
	})

	return files, err
}

// Match reports whether a slash-separated path relative to the root is an
// indexable file.
func (w *Walker) Match(relPath string) bool {
	if w.underSkippedDir(relPath) {
		return false
	}
	return w.shouldInclude(relPath) && !w.shouldExclude(relPath)
}

// SkipDir reports whether a directory (relative, slash-separated) is pruned.
func (w *Walker) SkipDir(relPath string) bool {
	if _, ok := w.skipDirs[filepath.Base(relPath)]; ok {
		return true
	}
	return w.underSkippedDir(relPath) || w.shouldExclude(relPath+"/")
}

func (w *Walker) underSkippedDir(relPath string) bool {
	parts := strings.Split(relPath, "/")
	for _, p := range parts[:len(parts)-1] {
		if _, ok := w.skipDirs[p]; ok {
			return true
		}
	}
	return false
}

func (w *Walker) shouldInclude(path string) bool {
	for _, pattern := range w.includes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Walker) shouldExclude(path string) bool {
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
