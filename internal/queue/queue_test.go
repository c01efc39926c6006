package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kartikbazzad/bunbase/tabsync/internal/engine"
	apperrors "github.com/kartikbazzad/bunbase/tabsync/internal/errors"
	"github.com/kartikbazzad/bunbase/tabsync/internal/logger"
	"github.com/kartikbazzad/bunbase/tabsync/internal/metrics"
)

type fakeExecutor struct {
	mu       sync.Mutex
	calls    []string
	failures map[string]int // remaining failures per statement
	delay    time.Duration

	inFlight atomic.Int32
	overlaps atomic.Int32
}

func (f *fakeExecutor) Exec(ctx context.Context, stmt string, params []any) (*engine.ResultSet, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlaps.Add(1)
	}
	defer f.inFlight.Add(-1)

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.calls = append(f.calls, stmt)
	remaining := f.failures[stmt]
	if remaining > 0 {
		f.failures[stmt] = remaining - 1
	}
	f.mu.Unlock()

	if remaining > 0 {
		return nil, errors.New("engine busy")
	}
	return &engine.ResultSet{RowsAffected: 1}, nil
}

func (f *fakeExecutor) callCount(stmt string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == stmt {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu    sync.Mutex
	stmts []string
}

func (f *fakeNotifier) Broadcast(stmt, entityHint string) {
	f.mu.Lock()
	f.stmts = append(f.stmts, stmt)
	f.mu.Unlock()
}

func (f *fakeNotifier) broadcasts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stmts...)
}

func newTestQueue(t *testing.T, exec Executor, notifier Notifier, cfg Config) *Queue {
	t.Helper()
	if cfg.Retry == nil {
		cfg.Retry = apperrors.NewRetryControllerWithBase(5 * time.Millisecond)
	}
	q := New(exec, notifier, cfg, logger.Default(), metrics.New())
	t.Cleanup(q.Close)
	return q
}

func TestWritesSerializeInOrder(t *testing.T) {
	exec := &fakeExecutor{delay: 5 * time.Millisecond}
	q := newTestQueue(t, exec, nil, Config{Capacity: 16, Retries: 1})

	const n = 8
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		stmt := fmt.Sprintf("INSERT INTO t VALUES (%d)", i)
		wg.Add(1)
		// Submit sequentially so queue order is deterministic, but wait
		// concurrently so the submitters overlap in time.
		done := make(chan struct{})
		go func(i int) {
			defer wg.Done()
			close(done)
			_, err := q.Execute(context.Background(), stmt, nil, Options{})
			results[i] = err
		}(i)
		<-done
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	for i, err := range results {
		if err != nil {
			t.Errorf("op %d: %v", i, err)
		}
	}
	if exec.overlaps.Load() != 0 {
		t.Errorf("%d overlapping executions", exec.overlaps.Load())
	}
	exec.mu.Lock()
	defer exec.mu.Unlock()
	for i, stmt := range exec.calls {
		want := fmt.Sprintf("INSERT INTO t VALUES (%d)", i)
		if stmt != want {
			t.Fatalf("execution order broken at %d: got %q", i, stmt)
		}
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	stmt := "INSERT INTO t VALUES (1)"
	exec := &fakeExecutor{failures: map[string]int{stmt: 2}}
	base := 20 * time.Millisecond
	q := newTestQueue(t, exec, nil, Config{
		Capacity: 4,
		Retries:  3,
		Retry:    apperrors.NewRetryControllerWithBase(base),
	})

	start := time.Now()
	if _, err := q.Execute(context.Background(), stmt, nil, Options{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	elapsed := time.Since(start)

	if got := exec.callCount(stmt); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	// Two backoff waits: base and 2*base.
	if elapsed < 3*base {
		t.Errorf("elapsed %v, want at least %v of backoff", elapsed, 3*base)
	}
}

func TestRetryExhaustionReportsExecutionError(t *testing.T) {
	stmt := "UPDATE t SET a=1"
	exec := &fakeExecutor{failures: map[string]int{stmt: 10}}
	q := newTestQueue(t, exec, nil, Config{Capacity: 4, Retries: 3})

	_, err := q.Execute(context.Background(), stmt, nil, Options{})
	var execErr *apperrors.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error type = %T, want *ExecutionError", err)
	}
	if execErr.Attempts != 3 {
		t.Errorf("reported attempts = %d, want 3", execErr.Attempts)
	}
	if got := exec.callCount(stmt); got != 3 {
		t.Errorf("actual attempts = %d, want exactly 3", got)
	}
}

func TestFailedOperationDoesNotStallQueue(t *testing.T) {
	bad := "INSERT INTO t VALUES ('bad')"
	good := "INSERT INTO t VALUES ('good')"
	exec := &fakeExecutor{failures: map[string]int{bad: 10}}
	q := newTestQueue(t, exec, nil, Config{Capacity: 4, Retries: 2})

	if _, err := q.Execute(context.Background(), bad, nil, Options{}); err == nil {
		t.Fatal("bad statement should fail")
	}
	if _, err := q.Execute(context.Background(), good, nil, Options{}); err != nil {
		t.Fatalf("queue stalled after failure: %v", err)
	}
}

func TestQueueFullRejectsImmediately(t *testing.T) {
	exec := &fakeExecutor{delay: 200 * time.Millisecond}
	q := newTestQueue(t, exec, nil, Config{Capacity: 1, Retries: 1})

	// First op occupies the worker, second fills the buffer.
	go q.Execute(context.Background(), "INSERT INTO t VALUES (1)", nil, Options{})
	time.Sleep(50 * time.Millisecond)
	go q.Execute(context.Background(), "INSERT INTO t VALUES (2)", nil, Options{})
	time.Sleep(50 * time.Millisecond)

	_, err := q.Execute(context.Background(), "INSERT INTO t VALUES (3)", nil, Options{})
	if !errors.Is(err, apperrors.ErrQueueFull) {
		t.Errorf("error = %v, want ErrQueueFull", err)
	}
}

func TestSkipQueueReadBypassesWorker(t *testing.T) {
	exec := &fakeExecutor{delay: 150 * time.Millisecond}
	q := newTestQueue(t, exec, nil, Config{Capacity: 4, Retries: 1})

	go q.Execute(context.Background(), "INSERT INTO t VALUES (1)", nil, Options{})
	time.Sleep(30 * time.Millisecond)

	start := time.Now()
	if _, err := q.Execute(context.Background(), "SELECT * FROM t", nil, Options{SkipQueue: true}); err != nil {
		t.Fatalf("read: %v", err)
	}
	// Must not have waited for the 150ms write ahead of it. The read
	// itself sleeps the fake delay, so allow that plus slack.
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("skip-queue read took %v", elapsed)
	}
}

func TestSkipQueueIgnoredForWrites(t *testing.T) {
	exec := &fakeExecutor{delay: 100 * time.Millisecond}
	q := newTestQueue(t, exec, nil, Config{Capacity: 4, Retries: 1})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Execute(context.Background(), fmt.Sprintf("DELETE FROM t WHERE id=%d", i), nil, Options{SkipQueue: true})
		}(i)
	}
	wg.Wait()

	if exec.overlaps.Load() != 0 {
		t.Errorf("writes overlapped despite SkipQueue being read-only")
	}
}

func TestBroadcastAfterSuccessfulWriteOnly(t *testing.T) {
	failing := "INSERT INTO t VALUES ('x')"
	exec := &fakeExecutor{failures: map[string]int{failing: 10}}
	notifier := &fakeNotifier{}
	q := newTestQueue(t, exec, notifier, Config{Capacity: 4, Retries: 1})

	q.Execute(context.Background(), "SELECT 1", nil, Options{})
	q.Execute(context.Background(), failing, nil, Options{})
	q.Execute(context.Background(), "INSERT INTO t VALUES ('y')", nil, Options{})

	got := notifier.broadcasts()
	if len(got) != 1 || got[0] != "INSERT INTO t VALUES ('y')" {
		t.Errorf("broadcasts = %v, want only the successful write", got)
	}
}

func TestCloseRejectsPendingOperations(t *testing.T) {
	exec := &fakeExecutor{delay: 150 * time.Millisecond}
	q := New(exec, nil, Config{
		Capacity: 4,
		Retries:  1,
		Retry:    apperrors.NewRetryControllerWithBase(time.Millisecond),
	}, logger.Default(), metrics.New())

	go q.Execute(context.Background(), "INSERT INTO t VALUES (1)", nil, Options{})
	time.Sleep(30 * time.Millisecond)

	pendingErr := make(chan error, 1)
	go func() {
		_, err := q.Execute(context.Background(), "INSERT INTO t VALUES (2)", nil, Options{})
		pendingErr <- err
	}()
	time.Sleep(30 * time.Millisecond)

	q.Close()

	select {
	case err := <-pendingErr:
		if !errors.Is(err, apperrors.ErrConnectionReplaced) {
			t.Errorf("pending op error = %v, want ErrConnectionReplaced", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending op never resolved")
	}

	if _, err := q.Execute(context.Background(), "INSERT INTO t VALUES (3)", nil, Options{}); !errors.Is(err, apperrors.ErrSessionClosed) {
		t.Errorf("post-close error = %v, want ErrSessionClosed", err)
	}

	q.Close() // idempotent
}
