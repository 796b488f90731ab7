package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"settlement/internal/domain"
	"settlement/internal/handler/http/response"
	"settlement/internal/infrastructure/paymentprovider"
)

const (
	SignatureHeader = "Payment-Signature"
	maxPayloadBytes = 64 << 10
)

// EventSink takes a verified provider event. It must not return before the
// event is durable, since the provider stops retrying once it gets a 200.
type EventSink interface {
	Publish(ctx context.Context, event domain.ProviderEvent, raw []byte) error
}

type EventSinkFunc func(ctx context.Context, event domain.ProviderEvent, raw []byte) error

func (f EventSinkFunc) Publish(ctx context.Context, event domain.ProviderEvent, raw []byte) error {
	return f(ctx, event, raw)
}

type WebhookHandler struct {
	sink      EventSink
	secret    string
	tolerance time.Duration
	logger    *zap.Logger
}

func NewWebhookHandler(sink EventSink, secret string, tolerance time.Duration, l *zap.Logger) *WebhookHandler {
	return &WebhookHandler{sink: sink, secret: secret, tolerance: tolerance, logger: l}
}

func (h *WebhookHandler) PaymentEvents(w http.ResponseWriter, r *http.Request) {
	// An empty key would let anyone compute a valid signature.
	if h.secret == "" {
		h.logger.Error("PAYMENT_WEBHOOK_SECRET not set, refusing provider event")
		response.Error(w, http.StatusServiceUnavailable, response.CodeInternal, "webhook verification is not configured", nil)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		h.logger.Warn("Failed to read webhook body", zap.Error(err))
		response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid request body", nil)
		return
	}

	event, err := paymentprovider.ConstructEvent(payload, r.Header.Get(SignatureHeader), h.secret, h.tolerance)
	if err != nil {
		h.logger.Warn("Rejected webhook", zap.Error(err))
		message := "Invalid webhook payload"
		if errors.Is(err, paymentprovider.ErrMissingSignature) ||
			errors.Is(err, paymentprovider.ErrInvalidSignature) ||
			errors.Is(err, paymentprovider.ErrStaleSignature) {
			message = err.Error()
		}
		response.Error(w, http.StatusBadRequest, response.CodeInvalidSignature, message, nil)
		return
	}

	if err := h.sink.Publish(r.Context(), event, payload); err != nil {
		h.logger.Error("Failed to hand off provider event",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err))
		response.Error(w, http.StatusServiceUnavailable, response.CodeInternal, "Event could not be queued", nil)
		return
	}

	h.logger.Info("Provider event accepted",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))
	response.JSON(w, http.StatusOK, map[string]bool{"received": true})
}

func RegisterRoutes(r chi.Router, sink EventSink, secret string, tolerance time.Duration, l *zap.Logger) {
	handler := NewWebhookHandler(sink, secret, tolerance, l.With(zap.String("component", "WebhookHTTPHandler")))

	r.Post("/webhooks/payments", handler.PaymentEvents)
}
