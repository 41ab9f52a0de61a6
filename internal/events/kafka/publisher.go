// Package kafka publishes ranking events to a Kafka topic consumed by the
// certificate issuance service. Records are keyed by item ID so all events of
// one item land on one partition and per-item ordering survives partitioning.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"egireserve/internal/events"
)

// Publisher produces one record per event, synchronously. The dispatcher
// already runs off the request path, so a blocking produce here costs nothing
// user-visible and keeps delivery ordered.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// New connects a Kafka producer for the given brokers and topic.
func New(brokers []string, topic string) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.ItemID.String()),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (p *Publisher) Close() {
	p.client.Close()
}
