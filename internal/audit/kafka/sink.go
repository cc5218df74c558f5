// Package kafka streams audit events to a Kafka topic. Downstream consumers
// build compliance archives and alerting from this stream; the queryable
// store inside the service stays the read path.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"landledger/internal/audit"
)

// Sink produces audit events to Kafka, keyed by property id so all events for
// a property land in one partition in order.
type Sink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

func NewSink(brokers []string, topic string, logger *slog.Logger) (*Sink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Sink{client: client, topic: topic, logger: logger}, nil
}

// Append publishes the event asynchronously. Delivery failures are logged,
// never surfaced to the emitting operation.
func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(event.PropertyID),
		Value: payload,
	}
	s.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			s.logger.Warn("kafka audit delivery failed",
				"action", event.Action, "property_id", event.PropertyID, "error", err)
		}
	})
	return nil
}

// Close flushes pending records and releases the client.
func (s *Sink) Close() {
	s.client.Flush(context.Background())
	s.client.Close()
}
