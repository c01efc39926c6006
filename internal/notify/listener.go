package notify

import (
	"sync"

	"github.com/kartikbazzad/bunbase/tabsync/internal/logger"
	"github.com/kartikbazzad/bunbase/tabsync/internal/metrics"
)

// DirectStream is the subscribe side of the hub transport.
type DirectStream interface {
	Subscribe(topic string, fn func(payload []byte)) (func(), error)
}

// Update is what a listener callback receives. The same logical change can
// arrive once per live transport; there is no dedup and no ordering across
// transports, so callers treat every update as a hint to re-fetch.
type Update struct {
	Transport string
	Action    string
	Statement string
	Table     string
	Timestamp int64
	Origin    string
}

func updateFrom(transport string, n *Notification) Update {
	return Update{
		Transport: transport,
		Action:    n.Action,
		Statement: n.Statement,
		Table:     n.Table,
		Timestamp: n.Timestamp,
		Origin:    n.Origin,
	}
}

// Listener registers callbacks on all four delivery paths: the direct hub
// stream, the marker-file observations (republished on the bus by the
// session's fallback watcher), the local change event, and the forced
// refresh signal.
type Listener struct {
	logger  *logger.Logger
	metrics *metrics.Metrics
	bus     *Bus
	channel string

	mu     sync.RWMutex
	direct DirectStream // nil in degraded-broadcast mode
}

func NewListener(bus *Bus, channel string, log *logger.Logger, m *metrics.Metrics) *Listener {
	return &Listener{
		logger:  log,
		metrics: m,
		bus:     bus,
		channel: channel,
	}
}

// AttachDirect wires the hub stream in for subscriptions registered from now
// on. Existing subscriptions keep their transports.
func (l *Listener) AttachDirect(d DirectStream) {
	l.mu.Lock()
	l.direct = d
	l.mu.Unlock()
}

func (l *Listener) directStream() DirectStream {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.direct
}

// Subscribe invokes cb for every notification that reaches this process,
// self-originated ones included. The returned unsubscribe releases all
// transport registrations; it is idempotent and safe to call after the
// session tore its transports down.
func (l *Listener) Subscribe(cb func(Update)) func() {
	var disposers []func()

	deliver := func(transport string) func(*Notification) {
		return func(n *Notification) {
			l.metrics.NotificationsTotal.WithLabelValues(transport).Inc()
			cb(updateFrom(transport, n))
		}
	}

	disposers = append(disposers,
		l.bus.Subscribe(TopicChange, deliver(TransportLocal)),
		l.bus.Subscribe(TopicStorage, deliver(TransportStorage)),
		l.bus.Subscribe(TopicRefresh, deliver(TransportRefresh)),
	)

	if d := l.directStream(); d != nil {
		cancel, err := d.Subscribe(l.channel, func(payload []byte) {
			n, err := DecodeNotification(payload)
			if err != nil {
				l.logger.Debug("direct notification decode: %v", err)
				return
			}
			deliver(TransportDirect)(n)
		})
		if err != nil {
			l.logger.Warn("direct channel subscribe failed, continuing without it: %v", err)
		} else {
			disposers = append(disposers, cancel)
		}
	}

	// Each disposer fires at most once no matter how many times the
	// composed unsubscribe runs.
	for i, d := range disposers {
		var once sync.Once
		d := d
		disposers[i] = func() { once.Do(d) }
	}
	return func() {
		for _, d := range disposers {
			d()
		}
	}
}
