package errors

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestClassify(t *testing.T) {
	c := NewClassifier()

	cases := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ErrorPermanent},
		{"busy errno", syscall.EAGAIN, ErrorTransient},
		{"no space", syscall.ENOSPC, ErrorCritical},
		{"broadcast", &BroadcastError{Transport: "direct", Err: errors.New("down")}, ErrorBroadcast},
		{"verification", &VerificationError{Err: errors.New("bad")}, ErrorCritical},
		{"asset fetch", &AssetFetchError{Asset: "engine", Err: errors.New("404")}, ErrorPermanent},
		{"queue full", ErrQueueFull, ErrorTransient},
		{"hub unavailable", fmt.Errorf("%w: bind failed", ErrHubUnavailable), ErrorBroadcast},
		{"wrapped broadcast", fmt.Errorf("outer: %w", &BroadcastError{Transport: "storage", Err: errors.New("x")}), ErrorBroadcast},
		{"plain", errors.New("whatever"), ErrorPermanent},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.err); got != tc.want {
			t.Errorf("%s: category = %s, want %s", tc.name, CategoryString(got), CategoryString(tc.want))
		}
	}
}

func TestTypedErrorsUnwrap(t *testing.T) {
	inner := errors.New("inner")

	execErr := &ExecutionError{Statement: "INSERT INTO t VALUES (1)", Attempts: 3, Err: inner}
	if !errors.Is(execErr, inner) {
		t.Error("ExecutionError does not unwrap")
	}
	if execErr.Error() == "" {
		t.Error("empty message")
	}

	fetchErr := &AssetFetchError{Asset: "data", Path: "/x", Err: ErrInvalidBundle}
	if !errors.Is(fetchErr, ErrInvalidBundle) {
		t.Error("AssetFetchError does not unwrap")
	}
}

func TestIsCritical(t *testing.T) {
	c := NewClassifier()
	if !c.IsCritical(ErrorCritical) {
		t.Error("critical not critical")
	}
	if c.IsCritical(ErrorTransient) {
		t.Error("transient reported critical")
	}
}
