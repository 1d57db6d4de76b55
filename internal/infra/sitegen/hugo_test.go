package sitegen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator writes a shell script standing in for the hugo binary.
func fakeGenerator(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hugo")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestBuildSuccess(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	bin := fakeGenerator(t, `echo "$@" > `+argsFile+`
exit 0`)

	h := NewHugo(bin, "/etc/site/config.toml", "https://news.example", 5*time.Second)
	err := h.Build(context.Background(), "/tmp/work", "/tmp/out")
	require.NoError(t, err)

	recorded, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	args := string(recorded)
	assert.Contains(t, args, "--source /tmp/work")
	assert.Contains(t, args, "--destination /tmp/out")
	assert.Contains(t, args, "--config /etc/site/config.toml")
	assert.Contains(t, args, "--baseURL https://news.example")
}

func TestBuildFailureCarriesStderr(t *testing.T) {
	bin := fakeGenerator(t, `echo "template error: partial missing" >&2
exit 1`)

	h := NewHugo(bin, "", "", 5*time.Second)
	err := h.Build(context.Background(), "/tmp/work", "/tmp/out")
	require.Error(t, err)

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, 1, buildErr.ExitCode)
	assert.Contains(t, buildErr.Stderr, "template error")
	assert.Contains(t, err.Error(), "template error")
}

func TestBuildTimeout(t *testing.T) {
	bin := fakeGenerator(t, `sleep 5`)

	h := NewHugo(bin, "", "", 100*time.Millisecond)
	err := h.Build(context.Background(), "/tmp/work", "/tmp/out")
	require.Error(t, err)

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Contains(t, buildErr.Err.Error(), "timed out")
}

func TestBuildMissingBinary(t *testing.T) {
	h := NewHugo(filepath.Join(t.TempDir(), "missing"), "", "", time.Second)
	err := h.Build(context.Background(), "/tmp/work", "/tmp/out")
	require.Error(t, err)

	var buildErr *BuildError
	assert.True(t, errors.As(err, &buildErr))
	assert.Equal(t, -1, buildErr.ExitCode)
}

func TestStderrTailBounded(t *testing.T) {
	long := strings.Repeat("x", stderrTailBytes*2)
	assert.Len(t, tail([]byte(long)), stderrTailBytes)
	assert.Equal(t, "short", tail([]byte("short\n")))
}

func TestNewHugoDefaults(t *testing.T) {
	h := NewHugo("", "", "", 0)
	assert.Equal(t, "hugo", h.Binary)
	assert.Equal(t, DefaultBuildTimeout, h.Timeout)
}
