package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"settlement/internal/domain"
)

type ProviderEventHandler interface {
	HandleProviderEvent(ctx context.Context, event domain.ProviderEvent) error
}

// ProviderEventConsumer feeds verified webhook payloads queued on Kafka into
// the order finalization flow.
type ProviderEventConsumer struct {
	handler ProviderEventHandler
	logger  *zap.Logger
}

func NewProviderEventConsumer(h ProviderEventHandler, l *zap.Logger) *ProviderEventConsumer {
	return &ProviderEventConsumer{handler: h, logger: l}
}

func (c *ProviderEventConsumer) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var event domain.ProviderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Error("Error unmarshalling provider event", zap.Error(err), zap.String("raw_message", string(msg.Value)))
		return nil
	}
	if event.ID == "" {
		c.logger.Error("Provider event without id, dropping", zap.String("key", string(msg.Key)))
		return nil
	}

	c.logger.Info("Received provider event",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))

	if err := c.handler.HandleProviderEvent(ctx, event); err != nil {
		c.logger.Error("Error processing provider event",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return err
	}
	return nil
}
