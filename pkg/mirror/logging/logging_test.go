package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"info", log.InfoLevel},
		{"WARN", log.WarnLevel},
		{"warning", log.WarnLevel},
		{"error", log.ErrorLevel},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseLevel("verbose")
	assert.ErrorIs(t, err, ErrInvalidLevel)
}

func TestGetBeforeInitDiscards(t *testing.T) {
	require.NoError(t, Close())

	logger := Get("early")
	assert.NotNil(t, logger)
	// Must not panic or write anywhere.
	logger.Info("dropped")
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mirror.log")

	require.NoError(t, Init(Config{Level: "info", Path: path}))
	defer func() { require.NoError(t, Close()) }()

	Get("engine").Info("hashing started", "files", 3)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hashing started")
	assert.Contains(t, string(data), "engine")
}

func TestInitDiscardPath(t *testing.T) {
	require.NoError(t, Init(Config{Level: "debug", Path: "discard"}))
	defer func() { require.NoError(t, Close()) }()

	// No file, no console: logger exists but output goes nowhere.
	Get("quiet").Debug("invisible")
}

func TestLevelFiltersOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.log")

	require.NoError(t, Init(Config{Level: "error", Path: path}))
	defer func() { require.NoError(t, Close()) }()

	Get("filter").Info("below threshold")
	Get("filter").Error("kept")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "below threshold")
	assert.Contains(t, string(data), "kept")
}

func TestGetCachesLoggers(t *testing.T) {
	require.NoError(t, Init(Config{Level: "info", Path: "discard"}))
	defer func() { require.NoError(t, Close()) }()

	assert.Same(t, Get("pipeline"), Get("pipeline"))
	assert.NotSame(t, Get("pipeline"), Get("engine"))
}

func TestInitRejectsBadLevel(t *testing.T) {
	err := Init(Config{Level: "loud", Path: "discard"})
	assert.ErrorIs(t, err, ErrInvalidLevel)
}
