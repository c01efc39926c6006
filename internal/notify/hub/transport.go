package hub

import (
	"fmt"
	"net"
	"os"
	"sync"

	apperrors "github.com/kartikbazzad/bunbase/tabsync/internal/errors"
	"github.com/kartikbazzad/bunbase/tabsync/internal/logger"
)

// Transport is the direct channel as seen by a session: publish plus
// streaming subscribe, regardless of whether this process hosts the broker
// or dials another process's.
type Transport interface {
	Publish(topic string, payload []byte) error
	// Subscribe registers fn for every payload on the topic and returns a
	// cancel function.
	Subscribe(topic string, fn func(payload []byte)) (func(), error)
	// Mode reports "host" or "client".
	Mode() string
	Close() error
}

// Open attaches to the direct channel at socketPath. A live server there
// means client mode; otherwise this process clears any stale socket file
// and hosts the broker itself. ErrHubUnavailable when neither works; the
// session then runs in degraded-broadcast mode.
func Open(socketPath string, log *logger.Logger) (Transport, error) {
	if conn, err := net.Dial("unix", socketPath); err == nil {
		conn.Close()
		log.Debug("hub at %s already hosted, attaching as client", socketPath)
		return &clientTransport{
			socketPath: socketPath,
			logger:     log,
			client:     NewClient(socketPath),
			subs:       make(map[*Subscription]struct{}),
		}, nil
	}

	// No live server. A leftover socket file from a dead process would make
	// the bind fail, so clear it first.
	os.Remove(socketPath)

	srv := NewServer(socketPath, log)
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrHubUnavailable, err)
	}
	return &hostTransport{srv: srv}, nil
}

// hostTransport serves the broker in-process and attaches to it directly.
type hostTransport struct {
	srv *Server
}

func (t *hostTransport) Publish(topic string, payload []byte) error {
	t.srv.Broker().Publish(topic, payload)
	return nil
}

func (t *hostTransport) Subscribe(topic string, fn func(payload []byte)) (func(), error) {
	sub := NewFuncSubscriber(func(_ string, payload []byte) {
		fn(payload)
	})
	t.srv.Broker().Subscribe(topic, sub)
	return func() {
		t.srv.Broker().Unsubscribe(topic, sub)
	}, nil
}

func (t *hostTransport) Mode() string { return "host" }

func (t *hostTransport) Close() error {
	return t.srv.Stop()
}

// clientTransport dials a broker hosted elsewhere.
type clientTransport struct {
	socketPath string
	logger     *logger.Logger
	client     *Client

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func (t *clientTransport) Publish(topic string, payload []byte) error {
	return t.client.Publish(topic, payload)
}

func (t *clientTransport) Subscribe(topic string, fn func(payload []byte)) (func(), error) {
	sub, err := DialSubscription(t.socketPath, topic)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		sub.Close()
		return nil, fmt.Errorf("hub transport closed")
	}
	t.subs[sub] = struct{}{}
	t.mu.Unlock()

	go func() {
		if err := sub.Run(fn); err != nil {
			t.logger.Warn("hub subscription ended: %v", err)
		}
		t.mu.Lock()
		delete(t.subs, sub)
		t.mu.Unlock()
	}()

	return func() {
		sub.Close()
		t.mu.Lock()
		delete(t.subs, sub)
		t.mu.Unlock()
	}, nil
}

func (t *clientTransport) Mode() string { return "client" }

func (t *clientTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	subs := make([]*Subscription, 0, len(t.subs))
	for sub := range t.subs {
		subs = append(subs, sub)
	}
	t.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return t.client.Close()
}
