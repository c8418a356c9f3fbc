// ABOUTME: Validation errors for action options
// ABOUTME: Returned and logged when an action cannot run
package actions

import "fmt"

// ValidationError reports an option that could not be used.
type ValidationError struct {
	Action string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Reason)
}

func invalid(action, format string, args ...any) *ValidationError {
	return &ValidationError{Action: action, Reason: fmt.Sprintf(format, args...)}
}
