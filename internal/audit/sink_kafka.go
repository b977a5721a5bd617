package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"consentd/internal/platform/kafka/producer"
)

// DefaultTopic is the Kafka topic consent audit events are published to.
const DefaultTopic = "consent.audit.events"

// KafkaSink publishes audit events to Kafka for compliance consumers.
// The record key is the event's dedup key, so at-least-once delivery can be
// deduplicated downstream and per-request ordering is preserved within a
// partition.
type KafkaSink struct {
	producer *producer.Producer
	topic    string
}

func NewKafkaSink(p *producer.Producer, topic string) *KafkaSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaSink{producer: p, topic: topic}
}

func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(event.DedupKey()),
		Value: value,
		Headers: map[string]string{
			"action": event.Action,
		},
	})
}
