package hub

import (
	"sync"
)

// Subscriber receives payloads published on one or more topics.
// Send must not block the broker; remote subscribers buffer through the
// connection's write path.
type Subscriber interface {
	Send(topic string, payload []byte)
}

type funcSubscriber struct {
	fn func(topic string, payload []byte)
}

func (f *funcSubscriber) Send(topic string, payload []byte) { f.fn(topic, payload) }

// NewFuncSubscriber wraps fn in a Subscriber usable as a set member.
// The broker keys subscribers by identity, so the wrapper is a pointer.
func NewFuncSubscriber(fn func(topic string, payload []byte)) Subscriber {
	return &funcSubscriber{fn: fn}
}

// Broker is an in-memory topic broker: fan-out on publish, no delivery to a
// topic without subscribers.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[Subscriber]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]map[Subscriber]struct{}),
	}
}

// Subscribe adds a subscriber to the given topic, creating it as needed.
func (b *Broker) Subscribe(topic string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[Subscriber]struct{})
	}
	b.topics[topic][sub] = struct{}{}
}

// Unsubscribe removes a subscriber from a topic.
func (b *Broker) Unsubscribe(topic string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs := b.topics[topic]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.topics, topic)
		}
	}
}

// Publish fans a payload out to all subscribers of the topic. Each subscriber
// is served in its own goroutine so a slow one does not block the others.
func (b *Broker) Publish(topic string, payload []byte) {
	b.mu.RLock()
	subs := b.topics[topic]
	if len(subs) == 0 {
		b.mu.RUnlock()
		return
	}
	subList := make([]Subscriber, 0, len(subs))
	for sub := range subs {
		subList = append(subList, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subList {
		sub := sub
		go sub.Send(topic, payload)
	}
}

// SubscriberCount returns the number of subscribers for a topic.
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
