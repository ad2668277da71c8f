package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestNewHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	slog.New(newHandler(&buf, "info", "json")).Info("hello", "discovery_id", "d1")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), `"discovery_id":"d1"`)

	buf.Reset()
	slog.New(newHandler(&buf, "info", "text")).Info("hello", "discovery_id", "d1")
	assert.Contains(t, buf.String(), "discovery_id=d1")

	buf.Reset()
	h := newHandler(&buf, "warn", "json")
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
}

func TestNewWritesLogFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "bloom.log")
	logger, cleanup, err := New("info", "json", path)
	require.NoError(t, err)

	logger.Info("discovery saved", "discovery_id", "d1")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "discovery saved")
}
