package workspace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"dupguard/config"
	"dupguard/internal/adapter/logging"
	"dupguard/internal/domain"
)

const (
	collectionPrefix = "dupguard_"
	maxCollectionLen = 64
	hashLen          = 12
)

var unsafeChars = regexp.MustCompile(`[^a-z0-9_-]`)

// Resolver finds the project root for a directory and names its collection.
// The indexer and the guard both go through it so they agree on the name.
type Resolver struct {
	markers  []string
	maxDepth int
	override string
	global   string
}

func NewResolver(cfg *config.Config) *Resolver {
	global := cfg.Workspace.GlobalCollection
	if global == "" {
		global = "dupguard_global"
	}
	return &Resolver{
		markers:  cfg.Workspace.Markers,
		maxDepth: cfg.Workspace.MaxDepth,
		override: cfg.WorkspaceNameOverride,
		global:   sanitize(global),
	}
}

// Resolve walks upward from startDir looking for a project marker. It returns
// domain.ErrWorkspaceNotFound when no marker exists within maxDepth levels.
func (r *Resolver) Resolve(startDir string) (domain.Workspace, error) {
	dir, err := Canonicalize(startDir)
	if err != nil {
		return domain.Workspace{}, err
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	for depth := 0; depth <= r.maxDepth; depth++ {
		if r.hasMarker(dir) {
			return domain.Workspace{Root: dir, Collection: r.collectionFor(dir)}, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return domain.Workspace{}, fmt.Errorf("%w: no project marker above %s", domain.ErrWorkspaceNotFound, startDir)
}

// ResolveOrGlobal is Resolve with the degraded fallback: the start directory
// becomes the root and points go to the shared global collection.
func (r *Resolver) ResolveOrGlobal(ctx context.Context, startDir string) (domain.Workspace, error) {
	ws, err := r.Resolve(startDir)
	if err == nil {
		return ws, nil
	}
	if !domain.IsWorkspaceNotFound(err) {
		return domain.Workspace{}, err
	}

	root, cerr := Canonicalize(startDir)
	if cerr != nil {
		return domain.Workspace{}, cerr
	}
	collection := r.global
	if r.override != "" {
		collection = r.collectionFor(root)
	}
	logging.FromContext(ctx).Warn("no project root found, using global collection",
		zap.String("start_dir", startDir),
		zap.String("collection", collection))
	return domain.Workspace{Root: root, Collection: collection, Degraded: true}, nil
}

func (r *Resolver) hasMarker(dir string) bool {
	for _, m := range r.markers {
		if _, err := os.Lstat(filepath.Join(dir, m)); err == nil {
			return true
		}
	}
	return false
}

func (r *Resolver) collectionFor(root string) string {
	if name := sanitize(r.override); name != "" {
		return name
	}
	return CollectionName(root)
}

// CollectionName derives the collection for a canonical root path. It is a
// pure function of its input.
func CollectionName(root string) string {
	sum := sha256.Sum256([]byte(root))
	suffix := "_" + hex.EncodeToString(sum[:])[:hashLen]

	base := sanitize(filepath.Base(root))
	if base == "" {
		base = "root"
	}
	if room := maxCollectionLen - len(collectionPrefix) - len(suffix); len(base) > room {
		base = base[:room]
	}
	return collectionPrefix + base + suffix
}

func sanitize(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	name = unsafeChars.ReplaceAllString(name, "_")
	if len(name) > maxCollectionLen {
		name = name[:maxCollectionLen]
	}
	return name
}

// Canonicalize returns p as an absolute, cleaned path with symlinks resolved
// on the longest prefix that exists.
func Canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	existing := abs
	var rest []string
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			parts := append([]string{resolved}, rest...)
			return filepath.Join(parts...), nil
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
}

// NormalizePath canonicalizes p for equality checks, folding case on
// platforms whose default filesystems are case-insensitive.
func NormalizePath(p string) string {
	c, err := Canonicalize(p)
	if err != nil {
		c = filepath.Clean(p)
	}
	if caseInsensitive() {
		c = strings.ToLower(c)
	}
	return c
}

func caseInsensitive() bool {
	return runtime.GOOS == "darwin" || runtime.GOOS == "windows"
}
