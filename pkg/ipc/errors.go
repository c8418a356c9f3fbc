// ABOUTME: Error types for the IPC layer
// ABOUTME: Endpoint dial failures and peer-initiated close
package ipc

import (
	"fmt"
	"strings"
)

// Attempt records one failed endpoint dial.
type Attempt struct {
	Endpoint string
	Err      error
}

// ConnectionError is returned when no endpoint accepted a connection.
type ConnectionError struct {
	Attempts []Attempt
}

func (e *ConnectionError) Error() string {
	if len(e.Attempts) == 0 {
		return "ipc: no endpoints to dial"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Endpoint, a.Err))
	}
	return fmt.Sprintf("ipc: could not connect to discord (%d endpoints tried): %s",
		len(e.Attempts), strings.Join(parts, "; "))
}

// Unwrap exposes the last dial error.
func (e *ConnectionError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// CloseError is the CLOSE frame the peer sent before hanging up.
type CloseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("ipc: closed by peer: [%d] %s", e.Code, e.Message)
}
