package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	} {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSetup(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	t.Setenv("TEXASE_LOG_LEVEL", "warn")

	dir := filepath.Join(t.TempDir(), "cache")
	c, err := Setup(dir)
	require.NoError(t, err)
	slog.Info("hidden")
	slog.Warn("shown", "rows", 3)
	require.NoError(t, c.Close())

	data, err := os.ReadFile(filepath.Join(dir, "texase.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "msg=shown rows=3")
}
