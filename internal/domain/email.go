package domain

import "time"

type NotificationKind string

const (
	NotificationOrderConfirmation NotificationKind = "order_confirmation"
	NotificationAdminNewOrder     NotificationKind = "admin_new_order"
	NotificationShippingUpdate    NotificationKind = "shipping_update"
	NotificationOrderDelivered    NotificationKind = "order_delivered"
	NotificationOrderCancelled    NotificationKind = "order_cancelled"
)

type EmailStatus string

const (
	EmailStatusSent   EmailStatus = "sent"
	EmailStatusFailed EmailStatus = "failed"
)

// EmailHistoryEntry is an append-only audit record. A failed entry never
// changes the order status.
type EmailHistoryEntry struct {
	Type      NotificationKind `json:"type"`
	Recipient string           `json:"recipient"`
	Status    EmailStatus      `json:"status"`
	EmailID   string           `json:"emailId,omitempty"`
	Error     string           `json:"error,omitempty"`
	SentAt    time.Time        `json:"sentAt"`
}
