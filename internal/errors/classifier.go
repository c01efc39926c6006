package errors

import (
	"errors"
	"syscall"
)

// ErrorCategory represents the category of an error for observability.
type ErrorCategory int

const (
	ErrorTransient  ErrorCategory = iota // Temporary errors (busy engine, timeouts)
	ErrorPermanent                       // Permanent errors
	ErrorCritical                        // System-level errors
	ErrorBroadcast                       // Notification transport errors (non-fatal)
)

// Classifier categorizes errors for metrics and log severity. The transaction
// queue's retry budget is fixed by contract, so classification does not gate
// retries; it only drives reporting.
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify determines the category of an error.
func (c *Classifier) Classify(err error) ErrorCategory {
	if err == nil {
		return ErrorPermanent
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.EAGAIN, syscall.ENOMEM, syscall.ETIMEDOUT:
			return ErrorTransient
		case syscall.EIO, syscall.ENOSPC:
			return ErrorCritical
		}
	}

	var bErr *BroadcastError
	if errors.As(err, &bErr) || errors.Is(err, ErrHubUnavailable) {
		return ErrorBroadcast
	}

	var vErr *VerificationError
	if errors.As(err, &vErr) {
		return ErrorCritical
	}

	switch {
	case errors.Is(err, ErrQueueFull):
		return ErrorTransient
	case errors.Is(err, ErrSessionClosed), errors.Is(err, ErrConnectionReplaced):
		return ErrorPermanent
	case errors.Is(err, ErrInvalidBundle):
		return ErrorPermanent
	}

	return ErrorPermanent
}

// IsCritical returns true if the error requires immediate attention.
func (c *Classifier) IsCritical(category ErrorCategory) bool {
	return category == ErrorCritical
}

// CategoryString converts ErrorCategory to a metrics label value.
func CategoryString(category ErrorCategory) string {
	switch category {
	case ErrorTransient:
		return "transient"
	case ErrorPermanent:
		return "permanent"
	case ErrorCritical:
		return "critical"
	case ErrorBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}
