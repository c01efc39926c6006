// Package errors defines the error taxonomy for the tabsync session core.
//
// Initialization failures (asset fetch, connection verification) propagate to
// the initializer's caller after teardown. Per-statement failures propagate
// only to that statement's caller. Broadcast failures never propagate; the
// session continues with the remaining notification transports.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned when operating on a closed session
	ErrSessionClosed = errors.New("session is closed")

	// ErrQueueFull is returned when the operation queue is at capacity
	ErrQueueFull = errors.New("operation queue is full")

	// ErrConnectionReplaced is returned for operations that were still queued
	// when the connection was torn down or replaced by a reinitialization
	ErrConnectionReplaced = errors.New("connection replaced before operation ran")

	// ErrHubUnavailable is returned when the broadcast socket can neither be
	// bound nor dialed
	ErrHubUnavailable = errors.New("broadcast hub unavailable")

	// ErrInvalidBundle is returned when a fetched asset fails validation
	ErrInvalidBundle = errors.New("asset bundle is not valid")
)

// AssetFetchError reports that one of the two initialization assets was not
// retrievable or not valid. Fatal to that initialization attempt.
type AssetFetchError struct {
	Asset string // "engine" or "data"
	Path  string
	Err   error
}

func (e *AssetFetchError) Error() string {
	return fmt.Sprintf("fetch %s asset %q: %v", e.Asset, e.Path, e.Err)
}

func (e *AssetFetchError) Unwrap() error { return e.Err }

// VerificationError reports that the post-construction round-trip failed.
type VerificationError struct {
	Err error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("connection verification failed: %v", e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// ExecutionError reports that a statement failed after exhausting its retry
// budget. It carries the last underlying error.
type ExecutionError struct {
	Statement string
	Attempts  int
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("statement failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// BroadcastError reports a failure on one notification transport. It is logged
// by the broadcaster and never surfaced to callers.
type BroadcastError struct {
	Transport string // "direct", "storage" or "local"
	Err       error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast via %s transport: %v", e.Transport, e.Err)
}

func (e *BroadcastError) Unwrap() error { return e.Err }
