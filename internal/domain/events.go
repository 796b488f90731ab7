package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ProviderEventPaymentSucceeded = "payment_intent.succeeded"
	ProviderEventPaymentFailed    = "payment_intent.payment_failed"

	OrderEventPaid = "order.paid"

	// CheckoutMetadataKey holds the JSON checkout snapshot attached to the
	// payment intent when it was created.
	CheckoutMetadataKey = "checkout"
)

// ProviderEvent is a verified payment provider notification.
type ProviderEvent struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Created int64             `json:"created"`
	Data    ProviderEventData `json:"data"`
}

type ProviderEventData struct {
	Object PaymentIntentObject `json:"object"`
}

type PaymentIntentObject struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// CheckoutSnapshot is the buyer-side order payload, shared by the finalize
// request and the provider event metadata.
type CheckoutSnapshot struct {
	PaymentReference string          `json:"paymentReference"`
	Customer         CustomerInfo    `json:"customerInfo"`
	Items            []OrderItem     `json:"items"`
	Currency         string          `json:"currency"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Shipping         decimal.Decimal `json:"shipping"`
	Tax              decimal.Decimal `json:"tax"`
	Total            decimal.Decimal `json:"total"`
	Locale           string          `json:"localeHint,omitempty"`
	RefererPath      string          `json:"-"`
	AcceptLanguage   string          `json:"-"`
}

// OrderPaidEvent is published through the outbox once an order is created.
type OrderPaidEvent struct {
	OrderID          string          `json:"order_id"`
	OrderNumber      string          `json:"order_number"`
	PaymentReference string          `json:"payment_reference"`
	Currency         string          `json:"currency"`
	Total            decimal.Decimal `json:"total"`
	Locale           string          `json:"locale"`
	Timestamp        time.Time       `json:"timestamp"`
}

func NewOrderPaidPayload(o *Order) ([]byte, error) {
	return json.Marshal(OrderPaidEvent{
		OrderID:          o.ID,
		OrderNumber:      o.OrderNumber,
		PaymentReference: o.PaymentReference,
		Currency:         o.Currency,
		Total:            o.Total,
		Locale:           o.Locale,
		Timestamp:        o.CreatedAt,
	})
}
