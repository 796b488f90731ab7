package finalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"settlement/internal/domain"
	"settlement/internal/repository/inbox_repo"
)

// EventHandler applies payment provider events. Deliveries are at-least-once
// and unordered, so each event id is recorded in the inbox before use.
type EventHandler struct {
	creator *Creator
	inbox   inbox_repo.InboxRepository
	logger  *zap.Logger
}

func NewEventHandler(creator *Creator, inbox inbox_repo.InboxRepository, logger *zap.Logger) *EventHandler {
	return &EventHandler{creator: creator, inbox: inbox, logger: logger}
}

// HandleProviderEvent returns an error only when the event should be
// redelivered. Permanent rejections are recorded and swallowed.
func (h *EventHandler) HandleProviderEvent(ctx context.Context, event domain.ProviderEvent) error {
	logger := h.logger.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal provider event: %w", err)
	}

	err = h.inbox.CreateMessage(ctx, &domain.InboxMessage{
		ID:         event.ID,
		EventType:  event.Type,
		Payload:    payload,
		Status:     domain.InboxStatusNew,
		ReceivedAt: time.Now().UTC(),
	})
	switch {
	case errors.Is(err, inbox_repo.ErrMessageAlreadyProcessed):
		logger.Info("Provider event already handled, skipping")
		return nil
	case errors.Is(err, inbox_repo.ErrMessageAlreadyPending):
		logger.Info("Provider event redelivered, processing again")
	case err != nil:
		return fmt.Errorf("failed to record provider event %s: %w", event.ID, err)
	}

	if event.Type != domain.ProviderEventPaymentSucceeded {
		logger.Debug("Ignoring provider event type")
		return h.finish(ctx, event.ID, domain.InboxStatusIgnored, "")
	}

	snap, err := checkoutFromEvent(event)
	if err != nil {
		logger.Error("Provider event carries no usable checkout snapshot", zap.Error(err))
		return h.finish(ctx, event.ID, domain.InboxStatusFailed, err.Error())
	}

	result, err := h.creator.Finalize(ctx, snap)
	if err != nil {
		if domain.IsPermanentRejection(err) {
			logger.Warn("Provider event rejected permanently", zap.Error(err))
			return h.finish(ctx, event.ID, domain.InboxStatusFailed, err.Error())
		}
		logger.Error("Provider event failed, leaving for redelivery", zap.Error(err))
		return fmt.Errorf("failed to finalize from provider event %s: %w", event.ID, err)
	}

	logger.Info("Provider event finalized order",
		zap.String("order_id", result.Order.ID),
		zap.Bool("created", result.Created),
	)
	return h.finish(ctx, event.ID, domain.InboxStatusProcessed, "")
}

func (h *EventHandler) finish(ctx context.Context, id string, status domain.InboxMessageStatus, errText string) error {
	if err := h.inbox.UpdateStatus(ctx, id, status, errText); err != nil {
		return fmt.Errorf("failed to mark provider event %s as %s: %w", id, status, err)
	}
	return nil
}

// checkoutFromEvent decodes the snapshot stored in the payment intent metadata.
// The intent id is authoritative for the payment reference.
func checkoutFromEvent(event domain.ProviderEvent) (domain.CheckoutSnapshot, error) {
	var snap domain.CheckoutSnapshot

	intent := event.Data.Object
	raw, ok := intent.Metadata[domain.CheckoutMetadataKey]
	if !ok || raw == "" {
		return snap, fmt.Errorf("%w: metadata %q missing", domain.ErrValidation, domain.CheckoutMetadataKey)
	}
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return snap, fmt.Errorf("%w: metadata %q is not valid JSON: %v", domain.ErrValidation, domain.CheckoutMetadataKey, err)
	}
	if intent.ID != "" {
		snap.PaymentReference = intent.ID
	}
	if snap.Currency == "" {
		snap.Currency = intent.Currency
	}
	return snap, nil
}
