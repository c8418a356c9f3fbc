//go:build windows

// ABOUTME: Named pipe endpoint discovery for Discord IPC on Windows
// ABOUTME: Probes \\?\pipe\discord-ipc-N
package ipc

import (
	"context"
	"fmt"
	"os"
)

// Endpoints returns the ordered list of named pipes to probe.
func Endpoints() []string {
	out := make([]string, 0, MaxEndpoints)
	for i := 0; i < MaxEndpoints; i++ {
		out = append(out, fmt.Sprintf(`\\?\pipe\discord-ipc-%d`, i))
	}
	return out
}

func dialEndpoint(ctx context.Context, endpoint string) (conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(endpoint, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return pipeConn{f}, nil
}

// pipeConn adapts a pipe handle; pipes have no half-close so CloseWrite is
// a no-op and Close ends both directions.
type pipeConn struct {
	*os.File
}

func (pipeConn) CloseWrite() error { return nil }
