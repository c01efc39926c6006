package notify

import (
	"sync"
)

// Bus topics.
const (
	TopicChange  = "change"  // local-event transport
	TopicStorage = "storage" // marker-file observations republished in-process
	TopicRefresh = "refresh" // forced refresh signal
)

// Bus is the in-process notification broker. It outlives engine
// reinitializations, so listener registrations survive an automatic
// teardown-and-reinit cycle.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[int]func(*Notification)
	nextID int
}

func NewBus() *Bus {
	return &Bus{
		topics: make(map[string]map[int]func(*Notification)),
	}
}

// Subscribe registers fn on a topic and returns its cancel function.
func (b *Bus) Subscribe(topic string, fn func(*Notification)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.topics[topic] == nil {
		b.topics[topic] = make(map[int]func(*Notification))
	}
	id := b.nextID
	b.nextID++
	b.topics[topic][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs := b.topics[topic]; subs != nil {
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.topics, topic)
			}
		}
	}
}

// Publish fans a notification out to the topic's subscribers, each on its
// own goroutine so a slow callback does not block the publisher.
func (b *Bus) Publish(topic string, n *Notification) {
	b.mu.RLock()
	subs := b.topics[topic]
	fns := make([]func(*Notification), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn := fn
		go fn(n)
	}
}

// SubscriberCount returns the number of subscribers on a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
