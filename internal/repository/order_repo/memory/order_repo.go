// Package memory is an in-process order store for local runs and tests. The
// mutex makes check-and-insert atomic, which is what the unique index does
// for postgres.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"settlement/internal/domain"
	"settlement/internal/repository/order_repo"
)

type OrderRepository struct {
	mu          sync.RWMutex
	byID        map[string]*domain.Order
	byReference map[string]string
	outbox      []domain.OutboxMessage
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		byID:        make(map[string]*domain.Order),
		byReference: make(map[string]string),
	}
}

func (r *OrderRepository) CreateIfAbsent(_ context.Context, order *domain.Order, msg *domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byReference[order.PaymentReference]; exists {
		return order_repo.ErrAlreadyExists
	}
	if _, exists := r.byID[order.ID]; exists {
		return fmt.Errorf("%w: duplicate id %s", order_repo.ErrAlreadyExists, order.ID)
	}

	r.byID[order.ID] = cloneOrder(order)
	r.byReference[order.PaymentReference] = order.ID
	if msg != nil {
		r.outbox = append(r.outbox, *msg)
	}
	return nil
}

func (r *OrderRepository) FindByPaymentReference(_ context.Context, reference string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byReference[reference]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(r.byID[id]), nil
}

func (r *OrderRepository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r *OrderRepository) AppendToHistory(_ context.Context, orderID string, entry domain.EmailHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.byID[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	order.EmailHistory = append(order.EmailHistory, entry)
	order.UpdatedAt = time.Now()
	return nil
}

func (r *OrderRepository) UpdateStatus(_ context.Context, orderID string, from, to domain.OrderStatus) error {
	return r.compareAndSet(orderID, from, func(o *domain.Order) {
		o.Status = to
	})
}

func (r *OrderRepository) SetTracking(_ context.Context, orderID, trackingNumber string, from, to domain.OrderStatus) error {
	return r.compareAndSet(orderID, from, func(o *domain.Order) {
		o.Status = to
		o.TrackingNumber = trackingNumber
	})
}

func (r *OrderRepository) compareAndSet(orderID string, from domain.OrderStatus, apply func(*domain.Order)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.byID[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if order.Status != from {
		return domain.ErrStatusConflict
	}
	apply(order)
	order.UpdatedAt = time.Now()
	return nil
}

// OutboxMessages returns the order events recorded alongside created orders.
func (r *OrderRepository) OutboxMessages() []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.OutboxMessage(nil), r.outbox...)
}

func (r *OrderRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	c.EmailHistory = append([]domain.EmailHistoryEntry(nil), o.EmailHistory...)
	return &c
}
