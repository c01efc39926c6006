// Package queue serializes statement execution through a single worker so
// concurrent writers never overlap. Operations run in submission order;
// failures consume their retry budget and are reported to the submitter
// without stalling the operations behind them.
package queue

import (
	"context"
	"sync"

	"github.com/kartikbazzad/bunbase/tabsync/internal/engine"
	apperrors "github.com/kartikbazzad/bunbase/tabsync/internal/errors"
	"github.com/kartikbazzad/bunbase/tabsync/internal/logger"
	"github.com/kartikbazzad/bunbase/tabsync/internal/metrics"
	"github.com/kartikbazzad/bunbase/tabsync/internal/sqlhint"
)

// Executor runs one statement against the engine.
type Executor interface {
	Exec(ctx context.Context, stmt string, params []any) (*engine.ResultSet, error)
}

// Notifier announces a successful mutating statement.
type Notifier interface {
	Broadcast(stmt, entityHint string)
}

// Options tune a single Execute call.
type Options struct {
	// SkipQueue runs a read-only statement immediately instead of waiting
	// behind queued operations. Ignored for mutating statements, which
	// always serialize.
	SkipQueue bool
	// Retries overrides the queue's attempt budget when positive.
	Retries int
	// EntityHint names the affected table for the change notification when
	// the statement is too gnarly for the prefix heuristic.
	EntityHint string
}

type outcome struct {
	rs  *engine.ResultSet
	err error
}

type operation struct {
	ctx        context.Context
	stmt       string
	params     []any
	retries    int
	entityHint string
	result     chan outcome
}

// Queue owns the single worker goroutine. One Queue per engine handle; a
// teardown closes the queue and the replacement handle gets a fresh one.
type Queue struct {
	logger     *logger.Logger
	metrics    *metrics.Metrics
	exec       Executor
	notifier   Notifier
	retry      *apperrors.RetryController
	classifier *apperrors.Classifier
	retries    int

	ops  chan *operation
	quit chan struct{}
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// Config carries the queue's construction parameters.
type Config struct {
	Capacity int
	Retries  int
	Retry    *apperrors.RetryController // nil for the default backoff base
}

func New(exec Executor, notifier Notifier, cfg Config, log *logger.Logger, m *metrics.Metrics) *Queue {
	if cfg.Capacity < 1 {
		cfg.Capacity = 256
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	rc := cfg.Retry
	if rc == nil {
		rc = apperrors.NewRetryController()
	}

	q := &Queue{
		logger:     log,
		metrics:    m,
		exec:       exec,
		notifier:   notifier,
		retry:      rc,
		classifier: apperrors.NewClassifier(),
		retries:    cfg.Retries,
		ops:        make(chan *operation, cfg.Capacity),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go q.worker()
	return q
}

// Execute submits a statement and blocks until it ran (or was rejected).
// Mutating statements always pass through the worker; a read-only statement
// with SkipQueue set runs on the caller's goroutine instead.
func (q *Queue) Execute(ctx context.Context, stmt string, params []any, opts Options) (*engine.ResultSet, error) {
	retries := q.retries
	if opts.Retries > 0 {
		retries = opts.Retries
	}
	op := &operation{
		ctx:        ctx,
		stmt:       stmt,
		params:     params,
		retries:    retries,
		entityHint: opts.EntityHint,
		result:     make(chan outcome, 1),
	}

	if opts.SkipQueue && !sqlhint.IsModifying(stmt) {
		out := q.run(op)
		return out.rs, out.err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, apperrors.ErrSessionClosed
	}
	select {
	case q.ops <- op:
		q.metrics.QueueDepth.Inc()
	default:
		q.mu.Unlock()
		return nil, apperrors.ErrQueueFull
	}
	q.mu.Unlock()

	out := <-op.result
	return out.rs, out.err
}

// Depth returns the number of operations waiting behind the one in flight.
func (q *Queue) Depth() int {
	return len(q.ops)
}

// Close stops the worker and fails every queued operation with
// ErrConnectionReplaced. It blocks until the in-flight operation finished
// and the queue drained. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.quit)
	<-q.done
}

func (q *Queue) worker() {
	for {
		// Shutdown wins over pending work so drained operations get the
		// replacement error instead of running against a dying handle.
		select {
		case <-q.quit:
			q.drain()
			return
		default:
		}

		select {
		case op := <-q.ops:
			q.metrics.QueueDepth.Dec()
			op.result <- q.run(op)
		case <-q.quit:
			q.drain()
			return
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case op := <-q.ops:
			q.metrics.QueueDepth.Dec()
			op.result <- outcome{err: apperrors.ErrConnectionReplaced}
		default:
			close(q.done)
			return
		}
	}
}

func (q *Queue) run(op *operation) outcome {
	kind := "read"
	if sqlhint.IsModifying(op.stmt) {
		kind = "write"
	}

	var rs *engine.ResultSet
	err := q.retry.Do(op.ctx, op.retries, func(attempt int) error {
		if attempt > 1 {
			q.metrics.RetryAttemptsTotal.Inc()
			q.logger.Debug("retrying statement (attempt %d/%d): %s", attempt, op.retries, op.stmt)
		}
		var execErr error
		rs, execErr = q.exec.Exec(op.ctx, op.stmt, op.params)
		return execErr
	})
	if err != nil {
		q.metrics.QueriesTotal.WithLabelValues(kind, "error").Inc()
		q.metrics.RecordError(q.classifier.Classify(err))
		q.logger.Warn("statement failed after %d attempt(s): %v", op.retries, err)
		return outcome{err: &apperrors.ExecutionError{
			Statement: op.stmt,
			Attempts:  op.retries,
			Err:       err,
		}}
	}

	q.metrics.QueriesTotal.WithLabelValues(kind, "ok").Inc()
	if kind == "write" && q.notifier != nil {
		q.notifier.Broadcast(op.stmt, op.entityHint)
	}
	return outcome{rs: rs}
}
