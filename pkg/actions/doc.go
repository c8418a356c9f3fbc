// ABOUTME: Control-surface command package
// ABOUTME: Maps button presses to RPC requests
// Package actions turns control-surface button presses into Discord RPC
// requests. Each action reads the current voice.Store, computes the target
// value and sends one request. Failures are logged and returned as errors,
// and a *ValidationError marks an action that did nothing because its
// options could not be used.
package actions
