package order_repo

import (
	"context"
	"errors"

	"settlement/internal/domain"
)

// ErrAlreadyExists reports that an order for the payment reference was
// stored first by another writer. It never leaves the finalize flow.
var ErrAlreadyExists = errors.New("order for payment reference already exists")

type OrderRepository interface {
	// FindByPaymentReference returns domain.ErrOrderNotFound when absent.
	FindByPaymentReference(ctx context.Context, reference string) (*domain.Order, error)
	// CreateIfAbsent inserts the order unless one already exists for its
	// payment reference, in which case it returns ErrAlreadyExists. A non-nil
	// msg is stored atomically with the order.
	CreateIfAbsent(ctx context.Context, order *domain.Order, msg *domain.OutboxMessage) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	AppendToHistory(ctx context.Context, orderID string, entry domain.EmailHistoryEntry) error
	// UpdateStatus moves the order from one status to another. It returns
	// domain.ErrStatusConflict when the stored status is no longer from.
	UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error
	// SetTracking stores the tracking number under the same compare-and-write
	// rule as UpdateStatus.
	SetTracking(ctx context.Context, orderID, trackingNumber string, from, to domain.OrderStatus) error
}
