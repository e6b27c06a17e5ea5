// Package relay forwards hub events to a Redis pub/sub channel so other
// processes can follow a PulseCast instance without an HTTP connection.
//
// The relay is an ordinary hub subscriber: if Redis is slow it loses events
// like any other slow observer and never delays a check.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/jpalmerr/pulsecast/internal/hub"
	"github.com/jpalmerr/pulsecast/internal/telemetry"
)

// DefaultChannel is the Redis channel used when none is configured.
const DefaultChannel = "pulsecast:monitoring"

const (
	pingTimeout    = 2 * time.Second
	publishTimeout = 250 * time.Millisecond
)

// Publisher is the subset of a Redis client the relay needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Relay copies every event on one hub topic to one Redis channel.
type Relay struct {
	hub     *hub.Hub
	pub     Publisher
	topic   string
	channel string
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Option configures a [Relay].
type Option func(*Relay)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics counts failed publishes.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// New creates a relay from topic on h to channel on pub. An empty channel
// selects [DefaultChannel].
func New(h *hub.Hub, pub Publisher, topic, channel string, opts ...Option) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	r := &Relay{
		hub:     h,
		pub:     pub,
		topic:   topic,
		channel: channel,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run forwards events until ctx is cancelled or the subscription is closed.
// Publish failures are logged and counted, never returned.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.hub.Subscribe(r.topic)
	defer r.hub.Unsubscribe(sub)

	r.logger.Info("redis relay started", "topic", r.topic, "channel", r.channel)

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.Events():
			if !ok {
				return nil
			}
			r.forward(ctx, e)
		}
	}
}

func (r *Relay) forward(ctx context.Context, e hub.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		r.metrics.RelayFailed()
		r.logger.Error("failed to encode event for relay", "type", e.Type, "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.pub.Publish(pubCtx, r.channel, payload).Err(); err != nil {
		r.metrics.RelayFailed()
		r.logger.Error("redis relay error", "op", "publish", "type", e.Type, "error", err)
	}
}
