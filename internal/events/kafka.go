// Package events publishes committed outbox events to the message broker.
package events

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"storefront/internal/repos"
)

// KafkaPublisher forwards outbox events to a topic, keyed by aggregate id so
// every event for one order lands on the same partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ClientID("storefront"),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &KafkaPublisher{client: cl, topic: topic}, nil
}

func (p *KafkaPublisher) Name() string { return "kafka" }

func (p *KafkaPublisher) Handle(ctx context.Context, ev repos.OutboxEvent) error {
	rec := Record(p.topic, ev)
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", ev.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() { p.client.Close() }

// Record builds the Kafka record for ev. Consumers deduplicate on the event_id header.
func Record(topic string, ev repos.OutboxEvent) *kgo.Record {
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(ev.AggregateID),
		Value: []byte(ev.Payload),
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(ev.ID)},
			{Key: "event_type", Value: []byte(ev.Type)},
		},
		Timestamp: ev.CreatedAt,
	}
}
