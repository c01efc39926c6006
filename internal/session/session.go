// Package session ties the pieces together: staged assets, the verified
// engine handle, the serialized queue, the three-transport notifier and the
// liveness probe. One Session per process is the intended shape; Initialize
// memoizes a shared instance so every caller in the process converges on the
// same one.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/kartikbazzad/bunbase/tabsync/internal/config"
	"github.com/kartikbazzad/bunbase/tabsync/internal/engine"
	apperrors "github.com/kartikbazzad/bunbase/tabsync/internal/errors"
	"github.com/kartikbazzad/bunbase/tabsync/internal/logger"
	"github.com/kartikbazzad/bunbase/tabsync/internal/metrics"
	"github.com/kartikbazzad/bunbase/tabsync/internal/notify"
	"github.com/kartikbazzad/bunbase/tabsync/internal/notify/hub"
	"github.com/kartikbazzad/bunbase/tabsync/internal/queue"
)

var (
	sharedMu sync.Mutex
	shared   *Session
)

// Initialize returns the process-wide shared session, creating it on the
// first call. Concurrent and repeated calls all get the same instance;
// assets are staged and the engine opened exactly once per live session.
// A failed initialization is not memoized, so the next call retries.
func Initialize(cfg *config.Config) (*Session, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if shared != nil && shared.State() != StateClosed {
		return shared, nil
	}

	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	shared = s
	return s, nil
}

// Shared returns the current shared session, or nil before Initialize
// succeeded. Callers holding the result across a Cleanup should re-resolve
// through this accessor rather than caching the pointer.
func Shared() *Session {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil || shared.State() == StateClosed {
		return nil
	}
	return shared
}

// Session is one process's attachment to the shared database: the engine
// handle, its serialized queue, and the notification fabric. The bus,
// broadcaster, listener and hub transport live as long as the session; only
// the engine and queue are rebuilt on automatic reinitialization, so
// listener registrations survive it.
type Session struct {
	cfg     *config.Config
	logger  *logger.Logger
	metrics *metrics.Metrics

	bus         *notify.Bus
	marker      *notify.Marker
	broadcaster *notify.Broadcaster
	listener    *notify.Listener
	transport   hub.Transport // nil in degraded-broadcast mode

	mu     sync.Mutex
	state  ConnectionState
	engine *engine.Handle
	queue  *queue.Queue

	markerStop func()
	probeQuit  chan struct{}
	probeDone  chan struct{}
}

// New builds and fully initializes an independent session. Most callers
// want Initialize instead; New exists for processes that deliberately run
// more than one session (tests, tooling).
func New(cfg *config.Config) (*Session, error) {
	log := logger.Default()
	s := &Session{
		cfg:       cfg,
		logger:    log,
		metrics:   metrics.New(),
		bus:       notify.NewBus(),
		marker:    notify.NewMarker(cfg.MarkerPath()),
		probeQuit: make(chan struct{}),
		probeDone: make(chan struct{}),
	}
	s.setState(StateInitializing)

	if notify.ReadyFlagSet(cfg.ReadyFlagPath()) {
		log.Info("database already initialized by another process, attaching")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout())
	defer cancel()

	if err := engine.StageAssets(ctx, cfg.Assets.EnginePath, cfg.Assets.DataBundlePath, cfg.DatabasePath(), log); err != nil {
		s.setState(StateClosed)
		return nil, err
	}

	h, err := engine.Open(ctx, cfg.DatabasePath(), log)
	if err != nil {
		s.setState(StateClosed)
		return nil, err
	}
	if err := h.Verify(ctx); err != nil {
		h.Close()
		s.setState(StateClosed)
		return nil, err
	}

	if err := notify.WriteReadyFlag(cfg.ReadyFlagPath()); err != nil {
		log.Warn("readiness flag not written: %v", err)
	}

	origin := notify.NewOriginID()
	s.broadcaster = notify.NewBroadcaster(s.bus, s.marker, cfg.Broadcast.ChannelName, origin, log, s.metrics)
	s.listener = notify.NewListener(s.bus, cfg.Broadcast.ChannelName, log, s.metrics)

	// hub.Open only fails with ErrHubUnavailable; the session carries on
	// with the marker and local transports.
	degraded := false
	transport, err := hub.Open(cfg.Broadcast.SocketPath, log)
	if err != nil {
		log.Warn("direct channel unavailable, running degraded: %v", err)
		s.metrics.RecordError(apperrors.ErrorBroadcast)
		degraded = true
	} else {
		s.transport = transport
		s.broadcaster.AttachDirect(transport)
		s.listener.AttachDirect(transport)
		log.Info("direct channel attached in %s mode", transport.Mode())
	}

	s.mu.Lock()
	s.engine = h
	s.queue = s.newQueue(h)
	s.mu.Unlock()

	// The marker watcher is the fallback path for processes whose direct
	// channel is down. Observations are republished on the bus so listeners
	// registered through the Listener see them like any other transport.
	stop, err := s.marker.Watch(log, func(n *notify.Notification) {
		s.bus.Publish(notify.TopicStorage, n)
	})
	if err != nil {
		log.Warn("marker watch unavailable: %v", err)
	} else {
		s.markerStop = stop
	}

	s.broadcaster.AnnounceOnline()
	go s.probeLoop()

	if degraded {
		s.setState(StateDegraded)
	} else {
		s.setState(StateReady)
	}
	log.Info("session ready (db=%s state=%s)", cfg.DatabasePath(), s.State())
	return s, nil
}

func (s *Session) newQueue(h *engine.Handle) *queue.Queue {
	return queue.New(h, s.broadcaster, queue.Config{
		Capacity: s.cfg.Queue.CapacityHint,
		Retries:  s.cfg.Queue.Retries,
	}, s.logger, s.metrics)
}

func (s *Session) setState(st ConnectionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.metrics.ConnectionState.Set(float64(st))
}

// State returns the current connection state.
func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Origin returns this session's notification origin identifier.
func (s *Session) Origin() string {
	return s.broadcaster.Origin()
}

// Metrics exposes the session's registry for scraping.
func (s *Session) Metrics() *metrics.Metrics {
	return s.metrics
}

// ExecuteQuery runs one statement through the serialized queue. During an
// automatic teardown-and-reinitialize window the call fails with
// ErrConnectionReplaced; retry against the session once it recovered.
func (s *Session) ExecuteQuery(ctx context.Context, stmt string, params []any, opts queue.Options) (*engine.ResultSet, error) {
	s.mu.Lock()
	st, q := s.state, s.queue
	s.mu.Unlock()

	if st == StateClosed {
		return nil, apperrors.ErrSessionClosed
	}
	if q == nil {
		return nil, apperrors.ErrConnectionReplaced
	}
	return q.Execute(ctx, stmt, params, opts)
}

// OnDatabaseUpdate registers cb for change notifications from every live
// transport and returns its unsubscribe function. Registrations survive
// automatic reinitialization.
func (s *Session) OnDatabaseUpdate(cb func(notify.Update)) func() {
	return s.listener.Subscribe(cb)
}

// TriggerRefresh asks local listeners to re-fetch. Manual fallback for when
// cross-process delivery is suspect.
func (s *Session) TriggerRefresh() {
	s.broadcaster.TriggerRefresh()
}

func (s *Session) probeLoop() {
	defer close(s.probeDone)
	ticker := time.NewTicker(s.cfg.ProbeInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.probeQuit:
			return
		case <-ticker.C:
			s.probe()
		}
	}
}

func (s *Session) probe() {
	s.mu.Lock()
	h := s.engine
	s.mu.Unlock()

	if h != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := h.Verify(ctx)
		cancel()
		if err == nil {
			return
		}
		s.metrics.ProbeFailuresTotal.Inc()
		s.logger.Warn("liveness probe failed: %v", err)
	}
	s.reinit()
}

// reinit tears the engine and queue down and rebuilds them. Queued
// operations fail with ErrConnectionReplaced; the notification fabric stays
// up throughout. A failed rebuild leaves the session degraded and the next
// probe tick tries again.
func (s *Session) reinit() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateDegraded
	q, h := s.queue, s.engine
	s.queue, s.engine = nil, nil
	s.mu.Unlock()
	s.metrics.ConnectionState.Set(float64(StateDegraded))

	if q != nil {
		q.Close()
	}
	if h != nil {
		h.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h2, err := engine.Open(ctx, s.cfg.DatabasePath(), s.logger)
	if err != nil {
		s.logger.Error("reinitialize: %v", err)
		return
	}
	if err := h2.Verify(ctx); err != nil {
		h2.Close()
		s.logger.Error("reinitialize verify: %v", err)
		return
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		h2.Close()
		return
	}
	s.engine = h2
	s.queue = s.newQueue(h2)
	ready := s.transport != nil
	if ready {
		s.state = StateReady
	}
	s.mu.Unlock()

	if ready {
		s.metrics.ConnectionState.Set(float64(StateReady))
	}
	s.metrics.ReinitsTotal.Inc()
	s.logger.Info("engine reinitialized")
}

// Cleanup releases everything in reverse initialization order: probe,
// marker watcher, queue (pending operations fail with
// ErrConnectionReplaced), engine, direct channel. Idempotent.
func (s *Session) Cleanup() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	q, h := s.queue, s.engine
	s.queue, s.engine = nil, nil
	s.mu.Unlock()
	s.metrics.ConnectionState.Set(float64(StateClosed))

	close(s.probeQuit)
	<-s.probeDone

	if s.markerStop != nil {
		s.markerStop()
	}
	if q != nil {
		q.Close()
	}
	if h != nil {
		if err := h.Close(); err != nil {
			s.logger.Debug("engine close: %v", err)
		}
	}
	if s.transport != nil {
		s.broadcaster.AttachDirect(nil)
		s.listener.AttachDirect(nil)
		if err := s.transport.Close(); err != nil {
			s.logger.Debug("direct channel close: %v", err)
		}
	}
	s.logger.Info("session closed")
}
