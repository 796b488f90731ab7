// Package notify sends order emails after the fact. Failures are logged and
// recorded on the order, never returned to the caller that triggered them.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"settlement/internal/domain"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, html string) (string, error)
}

type HistoryRecorder interface {
	AppendToHistory(ctx context.Context, orderID string, entry domain.EmailHistoryEntry) error
}

type Config struct {
	AdminEmail  string
	AdminLocale string
	Timeout     time.Duration
}

type Dispatcher struct {
	mailer  Mailer
	history HistoryRecorder
	cfg     Config
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(mailer Mailer, history HistoryRecorder, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.AdminLocale == "" {
		cfg.AdminLocale = "en"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Dispatcher{mailer: mailer, history: history, cfg: cfg, logger: logger}
}

// Dispatch returns immediately. The order is copied so later changes by the
// caller do not leak into the email.
func (d *Dispatcher) Dispatch(order *domain.Order, kind domain.NotificationKind) {
	snapshot := *order
	snapshot.Items = append([]domain.OrderItem(nil), order.Items...)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				d.logger.Error("Panic while dispatching notification",
					zap.String("order_id", snapshot.ID),
					zap.String("kind", string(kind)),
					zap.Any("panic", p),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
		defer cancel()
		d.deliver(ctx, &snapshot, kind)
	}()
}

// Wait blocks until in-flight notifications finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, order *domain.Order, kind domain.NotificationKind) {
	recipient, locale := order.Customer.Email, order.Locale
	if kind == domain.NotificationAdminNewOrder {
		recipient, locale = d.cfg.AdminEmail, d.cfg.AdminLocale
	}

	logger := d.logger.With(
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("kind", string(kind)),
	)

	entry := domain.EmailHistoryEntry{
		Type:      kind,
		Recipient: recipient,
		SentAt:    time.Now().UTC(),
	}

	email, err := render(order, kind, locale)
	if err == nil {
		entry.EmailID, err = d.mailer.Send(ctx, recipient, email.Subject, email.HTML)
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrNotificationFailed, err)
		entry.Status = domain.EmailStatusFailed
		entry.Error = err.Error()
		logger.Error("Failed to send notification", zap.Error(err))
	} else {
		entry.Status = domain.EmailStatusSent
		logger.Info("Notification sent", zap.String("email_id", entry.EmailID))
	}

	if err := d.history.AppendToHistory(ctx, order.ID, entry); err != nil {
		logger.Error("Failed to record email history", zap.Error(err))
	}
}
