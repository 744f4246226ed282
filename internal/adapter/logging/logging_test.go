package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dupguard/config"
)

func TestNew_FileOutput(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.File = filepath.Join(t.TempDir(), "dupguard.log")
	cfg.DebugLogging = true

	l, err := New(cfg)
	require.NoError(t, err)
	l.Debug("indexed", zap.String("file_path", "a.py"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(cfg.Log.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"file_path":"a.py"`)
}

func TestNew_BadLevel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.Level = "loud"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestContextRoundTrip(t *testing.T) {
	l := zap.NewNop()
	ctx := WithContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
