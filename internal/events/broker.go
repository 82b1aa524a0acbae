// Package events provides an in-process publish/subscribe broker used to
// stream pipeline progress to HTTP clients. Topics are task IDs.
package events

import (
	"log/slog"
	"sync"

	"github.com/Veraticus/shopsort/internal/model"
)

const defaultBuffer = 64

// Broker fans events out to per-topic subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event, which is acceptable
// because slow stream consumers can recover state from the task registry.
type Broker struct {
	logger *slog.Logger
	topics map[string]map[chan model.Event]struct{}
	mu     sync.RWMutex
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]map[chan model.Event]struct{}),
		logger: slog.Default().With("component", "events"),
	}
}

// Subscribe registers a buffered subscriber channel on a topic and returns
// it along with an unsubscribe function. Unsubscribing closes the channel;
// it is safe to call more than once.
func (b *Broker) Subscribe(topic string) (<-chan model.Event, func()) {
	ch := make(chan model.Event, defaultBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[chan model.Event]struct{})
		b.topics[topic] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.topics[topic]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.topics, topic)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Publish delivers an event to every subscriber of the topic without
// blocking. Events published to a topic with no subscribers are dropped.
func (b *Broker) Publish(topic string, event model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for ch := range b.topics[topic] {
		select {
		case ch <- event:
		default:
			b.logger.Warn("subscriber buffer full, dropping event",
				"topic", topic,
				"event", event.Type)
		}
	}
}

// Close shuts the broker down, closing every subscriber channel. Subsequent
// publishes are no-ops and subsequent subscriptions get a closed channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.topics {
		for ch := range subs {
			close(ch)
		}
	}
	b.topics = make(map[string]map[chan model.Event]struct{})
}

// Reporter adapts the broker to the per-run Reporter interfaces used by the
// classification engine and the syncer.
type Reporter struct {
	broker *Broker
	topic  string
}

// NewReporter creates a Reporter publishing to the given topic.
func NewReporter(broker *Broker, topic string) *Reporter {
	return &Reporter{broker: broker, topic: topic}
}

// Report publishes the event.
func (r *Reporter) Report(event model.Event) {
	r.broker.Publish(r.topic, event)
}
