package kafka_infra

import (
	"context"

	"settlement/internal/domain"
)

// ProviderEventPublisher queues verified webhook payloads for the provider
// events consumer. Keying by event id keeps redeliveries on one partition.
type ProviderEventPublisher struct {
	producer Producer
	topic    string
}

func NewProviderEventPublisher(producer Producer, topic string) *ProviderEventPublisher {
	return &ProviderEventPublisher{producer: producer, topic: topic}
}

func (p *ProviderEventPublisher) Publish(ctx context.Context, event domain.ProviderEvent, raw []byte) error {
	return p.producer.Produce(ctx, event.ID, p.topic, raw)
}
