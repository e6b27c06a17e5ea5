// Package hub implements topic-based publish/subscribe for monitoring events.
//
// Every subscriber owns a bounded queue. Publish never blocks: when a
// subscriber's queue is full its oldest queued event is discarded to make
// room, and the discard is counted against that subscriber. A slow observer
// therefore loses history but never stalls the publisher or other observers.
package hub

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pulsecast/internal/telemetry"
)

// TopicMonitoring is the topic all engine events are published on.
const TopicMonitoring = "monitoring"

// DefaultBuffer is the per-subscriber queue size used when none is configured.
const DefaultBuffer = 64

// Kind identifies the payload carried by an [Event].
type Kind string

const (
	KindMetrics     Kind = "metrics"
	KindEndpoint    Kind = "endpoint"
	KindLog         Kind = "log"
	KindPerformance Kind = "performance"
)

// Event is one state change delivered to observers.
type Event struct {
	Type      Kind      `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps data with the current UTC time.
func NewEvent(kind Kind, data any) Event {
	return Event{Type: kind, Data: data, Timestamp: time.Now().UTC()}
}

// Subscription is one observer's membership of a topic.
type Subscription struct {
	id    string
	topic string
	ch    chan Event

	// mu serialises delivery with close so a send never hits a closed channel.
	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// Events returns the channel events are delivered on. It is closed by
// [Hub.Unsubscribe] or [Hub.Close].
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Topic returns the topic the subscription was created for.
func (s *Subscription) Topic() string {
	return s.topic
}

// Dropped returns how many events were discarded because the queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// deliver enqueues e, evicting the oldest queued event if the queue is full.
// It reports whether an event was evicted.
func (s *Subscription) deliver(e Event) (evicted bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, false
	}

	for {
		select {
		case s.ch <- e:
			return evicted, true
		default:
		}

		select {
		case <-s.ch:
			s.dropped.Add(1)
			evicted = true
		default:
			// consumer drained the queue in between; retry the send
		}
	}
}

func (s *Subscription) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.ch)
	return true
}

// Option configures a [Hub].
type Option func(*Hub)

// WithBuffer sets the per-subscriber queue size. Values below 1 are ignored.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n >= 1 {
			h.buffer = n
		}
	}
}

// WithMetrics records publish, drop and subscriber counts.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// Hub is a topic registry safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}

	buffer  int
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// New creates an empty Hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		topics: make(map[string]map[*Subscription]struct{}),
		buffer: DefaultBuffer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a new observer on topic.
//
// Callers must call [Hub.Unsubscribe] when the observer goes away.
func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		id:    uuid.NewString(),
		topic: topic,
		ch:    make(chan Event, h.buffer),
	}

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	h.metrics.SubscriberAdded(topic)
	h.logger.Debug("observer subscribed", "topic", topic, "subscription", sub.id)
	return sub
}

// Unsubscribe removes sub and closes its channel. It is safe to call more
// than once and with a subscription the hub no longer knows.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	if subs, ok := h.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.topics, sub.topic)
		}
	}
	h.mu.Unlock()

	if sub.close() {
		h.metrics.SubscriberRemoved(sub.topic)
		h.logger.Debug("observer unsubscribed",
			"topic", sub.topic,
			"subscription", sub.id,
			"dropped", sub.Dropped(),
		)
	}
}

// Publish delivers e to every current subscriber of topic and returns the
// number of subscribers it was queued for.
func (h *Hub) Publish(topic string, e Event) int {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.topics[topic]))
	for sub := range h.topics[topic] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	h.metrics.EventPublished(string(e.Type))

	delivered := 0
	for _, sub := range subs {
		evicted, ok := sub.deliver(e)
		if !ok {
			continue
		}
		delivered++
		if evicted {
			h.metrics.EventDropped(string(e.Type))
			h.logger.Debug("observer queue full, dropped oldest event",
				"topic", topic,
				"subscription", sub.id,
				"dropped_total", sub.Dropped(),
			)
		}
	}
	return delivered
}

// Subscribers returns the number of observers on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close unsubscribes every observer on every topic.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Subscription
	for _, subs := range h.topics {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	h.topics = make(map[string]map[*Subscription]struct{})
	h.mu.Unlock()

	for _, sub := range all {
		if sub.close() {
			h.metrics.SubscriberRemoved(sub.topic)
		}
	}
}
