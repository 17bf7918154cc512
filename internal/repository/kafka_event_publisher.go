package repository

import (
	"context"

	"CoinPull/internal/domain/models"
	"CoinPull/internal/domain/repository"
	pkgkafka "CoinPull/pkg/kafka"

	"github.com/segmentio/kafka-go"
)

// KafkaEventPublisher emits object and gold events as JSON.
type KafkaEventPublisher struct {
	producer    *pkgkafka.Producer
	objectTopic string
	goldTopic   string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, objectTopic, goldTopic string) repository.EventPublisher {
	return &KafkaEventPublisher{producer: producer, objectTopic: objectTopic, goldTopic: goldTopic}
}

// PublishObjectEvent is keyed by object name so repeated notifications for
// the same object land on one partition.
func (p *KafkaEventPublisher) PublishObjectEvent(ctx context.Context, ev models.ObjectEvent) error {
	return p.producer.PublishBatch(ctx, p.objectTopic, []pkgkafka.Message{{
		Key:     []byte(ev.Name),
		Value:   ev,
		Headers: traceHeaders(ctx),
	}})
}

func (p *KafkaEventPublisher) PublishGoldEvent(ctx context.Context, ev models.GoldPublishedEvent) error {
	return p.producer.PublishBatch(ctx, p.goldTopic, []pkgkafka.Message{{
		Key:     []byte(ev.Location),
		Value:   ev,
		Headers: []kafka.Header{{Key: pkgkafka.TraceHeader, Value: []byte(ev.RunID)}},
	}})
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func traceHeaders(ctx context.Context) []kafka.Header {
	if id := pkgkafka.TraceID(ctx); id != "" {
		return []kafka.Header{{Key: pkgkafka.TraceHeader, Value: []byte(id)}}
	}
	return nil
}

// NopEventPublisher is used when Kafka is disabled.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishObjectEvent(context.Context, models.ObjectEvent) error     { return nil }
func (NopEventPublisher) PublishGoldEvent(context.Context, models.GoldPublishedEvent) error { return nil }
func (NopEventPublisher) Close() error                                                      { return nil }
