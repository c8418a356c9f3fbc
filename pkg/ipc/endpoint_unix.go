//go:build !windows

// ABOUTME: Unix socket endpoint discovery for Discord IPC
// ABOUTME: Probes discord-ipc-N under the runtime and temp directories
package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
)

func endpointDir() string {
	for _, key := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if dir := os.Getenv(key); dir != "" {
			return strings.TrimSuffix(dir, "/")
		}
	}
	return "/tmp"
}

// Endpoints returns the ordered list of socket paths to probe.
func Endpoints() []string {
	dir := endpointDir()
	out := make([]string, 0, MaxEndpoints)
	for i := 0; i < MaxEndpoints; i++ {
		out = append(out, fmt.Sprintf("%s/discord-ipc-%d", dir, i))
	}
	return out
}

func dialEndpoint(ctx context.Context, endpoint string) (conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "unix", endpoint)
	if err != nil {
		return nil, err
	}
	return c.(*net.UnixConn), nil
}
