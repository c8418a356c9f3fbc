// ABOUTME: Error types for the RPC client
// ABOUTME: Peer errors, auth and subscription failures, disconnects
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrDisconnected is returned for requests pending when the session ends.
	ErrDisconnected = errors.New("rpc: disconnected")

	// ErrClosed is returned once the client has been destroyed.
	ErrClosed = errors.New("rpc: client destroyed")

	// ErrTimeout is returned when a request outlives the request timeout.
	ErrTimeout = errors.New("rpc: request timed out")
)

// Error is an ERROR response to a correlated request.
type Error struct {
	Cmd     Command
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc: %s failed: [%d] %s", e.Cmd, e.Code, e.Message)
}

// AuthError wraps a failure of the authorization or authentication steps.
type AuthError struct {
	Step string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("rpc: %s failed: %v", e.Step, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// SubscriptionError is a rejected SUBSCRIBE or UNSUBSCRIBE.
type SubscriptionError struct {
	Cmd   Command
	Event Event
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("rpc: %s %s: %v", e.Cmd, e.Event, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
