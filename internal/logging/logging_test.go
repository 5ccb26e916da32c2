package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuild_JSONRespectsLevel(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	logger, closeFn, err := build(Config{Level: "warn"}, &buf)
	require.NoError(t, err)

	// Act
	logger.Info("hidden")
	logger.Warn("shown", zap.String("ticker", "AAPL"))
	require.NoError(t, closeFn())

	// Assert
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "AAPL", entry["ticker"])
	assert.Contains(t, entry, "timestamp")
}

func TestBuild_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := build(Config{Format: "console"}, &buf)
	require.NoError(t, err)

	logger.Info("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"msg"`)
}

func TestBuild_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	var buf bytes.Buffer
	logger, closeFn, err := build(Config{File: path}, &buf)
	require.NoError(t, err)

	logger.Info("to file")
	require.NoError(t, closeFn())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "to file")
}

func TestBuild_BadLevel(t *testing.T) {
	_, _, err := build(Config{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}
