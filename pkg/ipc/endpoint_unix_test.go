//go:build !windows

// ABOUTME: Tests for unix endpoint discovery
// ABOUTME: Checks env var precedence and the dial failure report
package ipc

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointsPrecedence(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("TMPDIR", "/var/tmp/")
	t.Setenv("TMP", "/ignored")
	t.Setenv("TEMP", "")

	eps := Endpoints()
	require.Len(t, eps, MaxEndpoints)
	assert.Equal(t, "/var/tmp/discord-ipc-0", eps[0])
	assert.Equal(t, "/var/tmp/discord-ipc-9", eps[9])

	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000/discord-ipc-0", Endpoints()[0])
}

func TestEndpointsFallback(t *testing.T) {
	for _, key := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		t.Setenv(key, "")
	}
	assert.Equal(t, "/tmp/discord-ipc-3", Endpoints()[3])
}

func TestDialReportsEveryAttempt(t *testing.T) {
	dir := t.TempDir()
	eps := []string{filepath.Join(dir, "a"), filepath.Join(dir, "b")}

	_, err := Dial(context.Background(), eps, nil)
	require.Error(t, err)

	var cerr *ConnectionError
	require.True(t, errors.As(err, &cerr))
	require.Len(t, cerr.Attempts, 2)
	assert.Equal(t, eps[0], cerr.Attempts[0].Endpoint)
	assert.Contains(t, err.Error(), "2 endpoints tried")
}
