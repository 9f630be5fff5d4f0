package repository

import (
	"context"

	"FlowScan/internal/domain/models"
	"FlowScan/internal/domain/repository"
	pkgkafka "FlowScan/pkg/kafka"
)

// KafkaDispatcher publishes emitted alerts on the alert bus, keyed by
// ticker so a ticker's alerts stay ordered within a partition.
type KafkaDispatcher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaDispatcher creates a Kafka alert dispatcher.
func NewKafkaDispatcher(producer *pkgkafka.Producer, topic string) repository.Dispatcher {
	return &KafkaDispatcher{producer: producer, topic: topic}
}

func (d *KafkaDispatcher) Name() string { return "kafka" }

func (d *KafkaDispatcher) Dispatch(ctx context.Context, a *models.AlertRecord) error {
	return d.producer.Publish(ctx, d.topic, []byte(a.Ticker), a.ToMessage())
}

func (d *KafkaDispatcher) Close() error {
	if d.producer != nil {
		return d.producer.Close()
	}
	return nil
}
