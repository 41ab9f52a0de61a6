// Package redispub publishes ranking events on a Redis pub/sub channel for
// the notification rendering service. Pub/sub fan-out is fire-and-forget by
// nature, which matches the fail-open event contract.
package redispub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"egireserve/internal/events"
)

// Publisher sends every event as one JSON message on a fixed channel.
type Publisher struct {
	client  *redis.Client
	channel string
}

func New(client *redis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}
