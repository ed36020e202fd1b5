// Package redischannel relays availability transitions between portal
// instances over Redis pub/sub. Delivery is best-effort; each instance still
// reloads the persisted singleton on startup, so a missed message only delays
// convergence until the next read.
package redischannel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"certportal/internal/availability"
	"certportal/internal/platform/redis"
)

// DefaultTopic is the pub/sub channel carrying status payloads.
const DefaultTopic = "certportal:availability"

// Channel publishes local transitions and feeds remote ones into the
// availability service.
type Channel struct {
	client *redis.Client
	topic  string
	logger *slog.Logger

	// instanceID discriminates our own publishes from remote ones so a
	// transition is not applied twice on the instance that caused it.
	instanceID string
}

type envelope struct {
	Instance string              `json:"instance"`
	Status   availability.Status `json:"status"`
}

// Option configures a Channel.
type Option func(c *Channel)

func WithTopic(topic string) Option {
	return func(c *Channel) { c.topic = topic }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) { c.logger = logger }
}

// New constructs a Channel over an established Redis client.
func New(client *redis.Client, instanceID string, opts ...Option) *Channel {
	c := &Channel{
		client:     client,
		topic:      DefaultTopic,
		logger:     slog.Default(),
		instanceID: instanceID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Publish broadcasts a status change to every other instance.
func (c *Channel) Publish(ctx context.Context, status availability.Status) error {
	payload, err := json.Marshal(envelope{Instance: c.instanceID, Status: status})
	if err != nil {
		return fmt.Errorf("marshal availability status: %w", err)
	}
	if err := c.client.Publish(ctx, c.topic, payload).Err(); err != nil {
		return fmt.Errorf("publish availability status: %w", err)
	}
	return nil
}

// Run subscribes to the topic and applies remote transitions until ctx ends.
func (c *Channel) Run(ctx context.Context, svc *availability.Service) error {
	sub := c.client.Subscribe(ctx, c.topic)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				c.logger.Warn("discarding malformed availability payload", "error", err)
				continue
			}
			if env.Instance == c.instanceID {
				continue
			}
			svc.ApplyRemote(env.Status)
		}
	}
}
