package notify

import (
	"sync"

	apperrors "github.com/kartikbazzad/bunbase/tabsync/internal/errors"
	"github.com/kartikbazzad/bunbase/tabsync/internal/logger"
	"github.com/kartikbazzad/bunbase/tabsync/internal/metrics"
)

// DirectChannel is the publish side of the hub transport.
type DirectChannel interface {
	Publish(topic string, payload []byte) error
}

// Broadcaster fans one change notification out over the three transports.
// Every path is best-effort and independent: a failing transport is logged
// and the others still run. Broadcast never returns an error.
type Broadcaster struct {
	logger  *logger.Logger
	metrics *metrics.Metrics
	bus     *Bus
	marker  *Marker
	channel string
	origin  string

	mu     sync.RWMutex
	direct DirectChannel // nil in degraded-broadcast mode
}

func NewBroadcaster(bus *Bus, marker *Marker, channel, origin string, log *logger.Logger, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{
		logger:  log,
		metrics: m,
		bus:     bus,
		marker:  marker,
		channel: channel,
		origin:  origin,
	}
}

// AttachDirect wires the hub transport in. A nil channel detaches it and the
// broadcaster degrades to the remaining two transports.
func (b *Broadcaster) AttachDirect(d DirectChannel) {
	b.mu.Lock()
	b.direct = d
	b.mu.Unlock()
}

func (b *Broadcaster) directChannel() DirectChannel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.direct
}

// Origin returns this process's notification origin identifier.
func (b *Broadcaster) Origin() string {
	return b.origin
}

// Broadcast announces a successful mutating statement on all transports.
func (b *Broadcaster) Broadcast(stmt, entityHint string) {
	b.publish(NewNotification(stmt, entityHint, b.origin))
}

// AnnounceOnline posts the process-online announcement on the direct
// channel only; a brand-new process has no change for the other transports
// to carry.
func (b *Broadcaster) AnnounceOnline() {
	d := b.directChannel()
	if d == nil {
		return
	}
	n := &Notification{Action: ActionPeerOnline, Timestamp: nowMillis(), Origin: b.origin}
	data, err := n.Encode()
	if err != nil {
		b.logger.Error("encode online announcement: %v", err)
		return
	}
	if err := d.Publish(b.channel, data); err != nil {
		b.logAndCount(&apperrors.BroadcastError{Transport: TransportDirect, Err: err})
		return
	}
	b.metrics.BroadcastsTotal.WithLabelValues(TransportDirect).Inc()
}

// TriggerRefresh dispatches the synthetic forced-refresh signal to local
// listeners. Manual fallback only; it never crosses process boundaries.
func (b *Broadcaster) TriggerRefresh() {
	n := &Notification{Action: ActionRefresh, Timestamp: nowMillis(), Origin: b.origin}
	b.bus.Publish(TopicRefresh, n)
}

func (b *Broadcaster) publish(n *Notification) {
	if d := b.directChannel(); d != nil {
		data, err := n.Encode()
		if err != nil {
			b.logger.Error("encode notification: %v", err)
		} else if err := d.Publish(b.channel, data); err != nil {
			b.logAndCount(&apperrors.BroadcastError{Transport: TransportDirect, Err: err})
		} else {
			b.metrics.BroadcastsTotal.WithLabelValues(TransportDirect).Inc()
		}
	}

	if err := b.marker.Write(n); err != nil {
		b.logAndCount(&apperrors.BroadcastError{Transport: TransportStorage, Err: err})
	} else {
		b.metrics.BroadcastsTotal.WithLabelValues(TransportStorage).Inc()
	}

	b.bus.Publish(TopicChange, n)
	b.metrics.BroadcastsTotal.WithLabelValues(TransportLocal).Inc()
}

func (b *Broadcaster) logAndCount(err *apperrors.BroadcastError) {
	b.logger.Warn("%v", err)
	b.metrics.RecordError(apperrors.ErrorBroadcast)
}
