// Package fulfillment moves paid orders through shipping and delivery.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"settlement/internal/domain"
	"settlement/internal/repository/order_repo"
)

type Notifier interface {
	Dispatch(order *domain.Order, kind domain.NotificationKind)
}

var statusNotifications = map[domain.OrderStatus]domain.NotificationKind{
	domain.OrderStatusShipped:   domain.NotificationShippingUpdate,
	domain.OrderStatusDelivered: domain.NotificationOrderDelivered,
	domain.OrderStatusCancelled: domain.NotificationOrderCancelled,
}

type Service struct {
	orders   order_repo.OrderRepository
	notifier Notifier
	logger   *zap.Logger
}

func NewService(orders order_repo.OrderRepository, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{orders: orders, notifier: notifier, logger: logger}
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	return order, nil
}

// UpdateStatus applies a lifecycle transition. The write only succeeds if the
// order still has the status it was read with.
func (s *Service) UpdateStatus(ctx context.Context, id string, to domain.OrderStatus) (*domain.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	from := order.Status
	if err := order.MarkAs(to); err != nil {
		return nil, fmt.Errorf("%w: %s to %s", err, from, to)
	}
	if err := s.orders.UpdateStatus(ctx, id, from, to); err != nil {
		return nil, err
	}

	s.logger.Info("Order status updated",
		zap.String("order_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	if kind, ok := statusNotifications[to]; ok {
		s.notifier.Dispatch(order, kind)
	}
	return order, nil
}

// SetTracking records the carrier tracking number and marks a paid order shipped.
func (s *Service) SetTracking(ctx context.Context, id, trackingNumber string) (*domain.Order, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		verr := domain.NewValidationError()
		verr.Add("trackingNumber", "is required")
		return nil, verr
	}

	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	from := order.Status
	if err := order.MarkAs(domain.OrderStatusShipped); err != nil {
		return nil, fmt.Errorf("%w: %s to %s", err, from, domain.OrderStatusShipped)
	}
	if err := s.orders.SetTracking(ctx, id, trackingNumber, from, domain.OrderStatusShipped); err != nil {
		return nil, err
	}
	order.TrackingNumber = trackingNumber

	s.logger.Info("Order shipped", zap.String("order_id", id), zap.String("tracking_number", trackingNumber))
	s.notifier.Dispatch(order, domain.NotificationShippingUpdate)
	return order, nil
}
