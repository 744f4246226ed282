package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dupguard/config"
	"dupguard/internal/domain"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workspace.MaxDepth = 3
	return NewResolver(cfg)
}

func canonicalTempDir(t *testing.T) string {
	t.Helper()
	dir, err := Canonicalize(t.TempDir())
	require.NoError(t, err)
	return dir
}

func TestResolve_FindsMarkerAbove(t *testing.T) {
	root := canonicalTempDir(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0755))
	nested := filepath.Join(root, "pkg", "util")
	require.NoError(t, os.MkdirAll(nested, 0755))

	ws, err := newTestResolver(t).Resolve(nested)
	require.NoError(t, err)
	assert.Equal(t, root, ws.Root)
	assert.Equal(t, CollectionName(root), ws.Collection)
	assert.False(t, ws.Degraded)
}

func TestResolve_FilePathUsesParent(t *testing.T) {
	root := canonicalTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0644))
	file := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(file, []byte("package main\n"), 0644))

	ws, err := newTestResolver(t).Resolve(file)
	require.NoError(t, err)
	assert.Equal(t, root, ws.Root)
}

func TestResolve_DepthBound(t *testing.T) {
	root := canonicalTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), nil, 0644))
	deep := filepath.Join(root, "a", "b", "c", "d", "e")
	require.NoError(t, os.MkdirAll(deep, 0755))

	cfg := config.DefaultConfig()
	cfg.Workspace.MaxDepth = 2
	_, err := NewResolver(cfg).Resolve(deep)
	assert.ErrorIs(t, err, domain.ErrWorkspaceNotFound)
}

func TestResolveOrGlobal_Degraded(t *testing.T) {
	dir := canonicalTempDir(t)
	cfg := config.DefaultConfig()
	cfg.Workspace.MaxDepth = 0

	ws, err := NewResolver(cfg).ResolveOrGlobal(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, ws.Degraded)
	assert.Equal(t, "dupguard_global", ws.Collection)
	assert.Equal(t, dir, ws.Root)
}

func TestCollectionName_PureAndSafe(t *testing.T) {
	a := CollectionName("/home/dev/My Project!")
	b := CollectionName("/home/dev/My Project!")
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "dupguard_my_project__"))
	assert.Regexp(t, `^[a-z0-9_-]+$`, a)

	// same basename, different roots
	assert.NotEqual(t, CollectionName("/a/app"), CollectionName("/b/app"))

	long := CollectionName("/x/" + strings.Repeat("verylongname", 20))
	assert.LessOrEqual(t, len(long), 64)
}

func TestOverrideWins(t *testing.T) {
	root := canonicalTempDir(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0755))

	cfg := config.DefaultConfig()
	cfg.WorkspaceNameOverride = "Team Index"
	ws, err := NewResolver(cfg).Resolve(root)
	require.NoError(t, err)
	assert.Equal(t, "team_index", ws.Collection)
}

func TestPathRoundTrip(t *testing.T) {
	root := canonicalTempDir(t)
	ws := domain.Workspace{Root: root}

	for _, p := range []string{
		filepath.Join(root, "a.py"),
		filepath.Join(root, "src", "pkg", "mod.go"),
		filepath.Join(root, "src", "..", "b.py"),
	} {
		rel, err := ws.Rel(p)
		require.NoError(t, err)
		assert.False(t, filepath.IsAbs(rel))
		assert.NotContains(t, rel, `\`)
		assert.Equal(t, filepath.Clean(p), ws.Abs(rel))
	}

	_, err := ws.Rel(filepath.Join(filepath.Dir(root), "elsewhere.py"))
	assert.Error(t, err)
}

func TestNormalizePath_Symlinks(t *testing.T) {
	root := canonicalTempDir(t)
	real := filepath.Join(root, "real")
	require.NoError(t, os.Mkdir(real, 0755))
	link := filepath.Join(root, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	// the file does not exist yet; the existing prefix is still resolved
	assert.Equal(t,
		NormalizePath(filepath.Join(real, "new.py")),
		NormalizePath(filepath.Join(link, "sub", "..", "new.py")))
}
