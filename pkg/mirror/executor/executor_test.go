package executor

import (
	"context"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests use sh")
	}
}

func TestSystemOutput(t *testing.T) {
	skipWithoutShell(t)

	out, err := NewSystem().Output(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestSystemOutput_Failure(t *testing.T) {
	skipWithoutShell(t)

	_, err := NewSystem().Output(context.Background(), "sh", "-c", "echo oops >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 3")
	assert.Contains(t, err.Error(), "oops")
}

func TestSystemOutput_MissingProgram(t *testing.T) {
	_, err := NewSystem().Output(context.Background(), "definitely-not-a-real-tool-xyz")
	require.Error(t, err)
}

func TestSystemRun(t *testing.T) {
	skipWithoutShell(t)

	var stdout, stderr strings.Builder
	s := &System{Stdout: &stdout, Stderr: &stderr}

	err := s.Run(context.Background(), "sh", "-c", "echo out; echo err >&2")
	require.NoError(t, err)
	assert.Equal(t, "out\n", stdout.String())
	assert.Equal(t, "err\n", stderr.String())
}

func TestSystemRun_ExitStatusSurfaced(t *testing.T) {
	skipWithoutShell(t)

	var stdout strings.Builder
	s := &System{Stdout: &stdout, Stderr: &stdout}

	err := s.Run(context.Background(), "sh", "-c", "exit 12")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 12")
}

func TestSystemLookPath(t *testing.T) {
	skipWithoutShell(t)

	s := NewSystem()
	assert.True(t, s.LookPath("sh"))
	assert.False(t, s.LookPath("definitely-not-a-real-tool-xyz"))
}

func TestSystemOutput_ContextCancelled(t *testing.T) {
	skipWithoutShell(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSystem().Output(ctx, "sh", "-c", "sleep 5")
	require.Error(t, err)
}
