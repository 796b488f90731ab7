// Package finalize turns a verified payment into exactly one stored order,
// whichever of the buyer's finalize call and the provider's event arrives first.
package finalize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"settlement/internal/domain"
	"settlement/internal/money"
	"settlement/internal/repository/order_repo"
	"settlement/internal/shipping"
	"settlement/internal/util"
)

// Order numbers are random, so a collision is retried with a fresh one.
const maxCreateAttempts = 3

type Verifier interface {
	Verify(ctx context.Context, reference string, claimedMinorUnits int64, claimedCurrency string) (domain.VerifiedPayment, error)
}

type ShippingQuoter interface {
	Quote(ctx context.Context, req shipping.QuoteRequest) domain.ShippingQuote
}

type LocaleResolver interface {
	Resolve(body, refererPath, acceptLanguage string) string
}

type Notifier interface {
	Dispatch(order *domain.Order, kind domain.NotificationKind)
}

type Config struct {
	OrderEventsTopic string
	ItemWeightGrams  int
	Timeout          time.Duration
}

type Result struct {
	Order   *domain.Order
	Created bool
}

type Creator struct {
	orders   order_repo.OrderRepository
	verifier Verifier
	shipping ShippingQuoter
	locales  LocaleResolver
	notifier Notifier
	cfg      Config
	logger   *zap.Logger
}

func NewCreator(
	orders order_repo.OrderRepository,
	verifier Verifier,
	shipping ShippingQuoter,
	locales LocaleResolver,
	notifier Notifier,
	cfg Config,
	logger *zap.Logger,
) *Creator {
	if cfg.ItemWeightGrams <= 0 {
		cfg.ItemWeightGrams = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Creator{
		orders:   orders,
		verifier: verifier,
		shipping: shipping,
		locales:  locales,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Finalize is safe to call any number of times, concurrently, for the same
// payment reference: one call creates the order and every other call returns
// it with Created=false. A caller that goes away does not cancel the write.
func (c *Creator) Finalize(ctx context.Context, snap domain.CheckoutSnapshot) (Result, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.Timeout)
	defer cancel()

	snap.Currency = money.NormalizeCurrency(snap.Currency)
	snap.PaymentReference = strings.TrimSpace(snap.PaymentReference)
	if err := validate(&snap); err != nil {
		return Result{}, err
	}

	logger := c.logger.With(zap.String("payment_reference", snap.PaymentReference))

	claimedMinor := money.ToMinorUnits(snap.Total, snap.Currency)
	if _, err := c.verifier.Verify(ctx, snap.PaymentReference, claimedMinor, snap.Currency); err != nil {
		logger.Warn("Payment verification failed", zap.Error(err))
		return Result{}, err
	}

	existing, err := c.orders.FindByPaymentReference(ctx, snap.PaymentReference)
	switch {
	case err == nil:
		c.warnOnDivergence(logger, existing, &snap)
		return Result{Order: existing, Created: false}, nil
	case !errors.Is(err, domain.ErrOrderNotFound):
		return Result{}, fmt.Errorf("failed to look up order by payment reference: %w", err)
	}

	order := c.buildOrder(ctx, &snap)

	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		msg, err := c.orderPaidMessage(order)
		if err != nil {
			return Result{}, err
		}

		err = c.orders.CreateIfAbsent(ctx, order, msg)
		if err == nil {
			logger.Info("Order created",
				zap.String("order_id", order.ID),
				zap.String("order_number", order.OrderNumber),
				zap.String("locale", order.Locale),
			)
			c.notifier.Dispatch(order, domain.NotificationOrderConfirmation)
			c.notifier.Dispatch(order, domain.NotificationAdminNewOrder)
			return Result{Order: order, Created: true}, nil
		}
		if !errors.Is(err, order_repo.ErrAlreadyExists) {
			return Result{}, fmt.Errorf("failed to store order: %w", err)
		}

		stored, findErr := c.orders.FindByPaymentReference(ctx, snap.PaymentReference)
		if findErr == nil {
			logger.Info("Order was created concurrently, returning stored record", zap.String("order_id", stored.ID))
			c.warnOnDivergence(logger, stored, &snap)
			return Result{Order: stored, Created: false}, nil
		}
		if !errors.Is(findErr, domain.ErrOrderNotFound) {
			return Result{}, fmt.Errorf("failed to re-read order after conflict: %w", findErr)
		}

		logger.Warn("Order number collision, retrying", zap.String("order_number", order.OrderNumber), zap.Int("attempt", attempt))
		order.ID = util.GenerateUUID()
		order.OrderNumber = util.GenerateOrderNumber(order.CreatedAt)
	}

	return Result{}, fmt.Errorf("failed to store order after %d attempts", maxCreateAttempts)
}

func (c *Creator) buildOrder(ctx context.Context, snap *domain.CheckoutSnapshot) *domain.Order {
	now := time.Now().UTC()

	quote := c.shipping.Quote(ctx, shipping.QuoteRequest{
		Country:     snap.Customer.Address.Country,
		PostalCode:  snap.Customer.Address.PostalCode,
		WeightGrams: c.cfg.ItemWeightGrams * len(snap.Items),
		Currency:    snap.Currency,
	})

	customer := snap.Customer
	customer.Email = strings.TrimSpace(customer.Email)
	customer.Address.Country = strings.ToUpper(customer.Address.Country)

	return &domain.Order{
		ID:               util.GenerateUUID(),
		OrderNumber:      util.GenerateOrderNumber(now),
		PaymentReference: snap.PaymentReference,
		Customer:         customer,
		Items:            append([]domain.OrderItem(nil), snap.Items...),
		Currency:         snap.Currency,
		Subtotal:         snap.Subtotal,
		Shipping:         snap.Shipping,
		Tax:              snap.Tax,
		Total:            snap.Total,
		ShippingMethod:   quote.Method(),
		Status:           domain.OrderStatusPaid,
		Locale:           c.locales.Resolve(snap.Locale, snap.RefererPath, snap.AcceptLanguage),
		EmailHistory:     []domain.EmailHistoryEntry{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (c *Creator) orderPaidMessage(order *domain.Order) (*domain.OutboxMessage, error) {
	payload, err := domain.NewOrderPaidPayload(order)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order paid event: %w", err)
	}
	return &domain.OutboxMessage{
		ID:          util.GenerateUUID(),
		AggregateID: order.ID,
		MessageType: domain.OrderEventPaid,
		Topic:       c.cfg.OrderEventsTopic,
		Key:         order.ID,
		Payload:     payload,
		Status:      domain.OutboxStatusPending,
		CreatedAt:   order.CreatedAt,
	}, nil
}

// warnOnDivergence flags a repeat finalize whose totals differ from the
// stored order. The stored order stays authoritative.
func (c *Creator) warnOnDivergence(logger *zap.Logger, stored *domain.Order, snap *domain.CheckoutSnapshot) {
	if stored.Currency == snap.Currency && stored.Total.Equal(snap.Total) {
		return
	}
	logger.Warn("Finalize request totals differ from stored order",
		zap.String("order_id", stored.ID),
		zap.String("stored_total", stored.Total.String()),
		zap.String("stored_currency", stored.Currency),
		zap.String("claimed_total", snap.Total.String()),
		zap.String("claimed_currency", snap.Currency),
	)
}
