package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"settlement/internal/domain"
	"settlement/internal/repository/order_repo"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var orderColumns = []string{
	"id", "order_number", "payment_reference", "customer", "items", "currency",
	"subtotal", "shipping", "tax", "total", "shipping_method", "status", "locale",
	"tracking_number", "email_history", "created_at", "updated_at",
}

type OutboxWriter interface {
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.OutboxMessage) error
}

type pgOrderRepository struct {
	db     *sql.DB
	outbox OutboxWriter
	logger *zap.Logger
}

func NewOrderRepository(db *sql.DB, outbox OutboxWriter, l *zap.Logger) order_repo.OrderRepository {
	return &pgOrderRepository{db: db, outbox: outbox, logger: l}
}

func (r *pgOrderRepository) CreateIfAbsent(ctx context.Context, order *domain.Order, msg *domain.OutboxMessage) (err error) {
	customer, items, method, history, err := marshalDocuments(order)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction for order creation", zap.String("order_id", order.ID), zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Panic during order creation transaction, rolling back", zap.String("order_id", order.ID))
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
			if err != nil {
				r.logger.Error("Failed to commit order creation transaction", zap.String("order_id", order.ID), zap.Error(err))
				err = fmt.Errorf("failed to commit order: %w", err)
			}
		}
	}()

	query, args, err := psql.Insert("orders").
		Columns(orderColumns...).
		Values(
			order.ID, order.OrderNumber, order.PaymentReference, customer, items, order.Currency,
			order.Subtotal, order.Shipping, order.Tax, order.Total, method, order.Status, order.Locale,
			nullString(order.TrackingNumber), history, order.CreatedAt, order.UpdatedAt,
		).
		Suffix("ON CONFLICT (payment_reference) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build order insert: %w", err)
	}

	var insertedID string
	if err = tx.QueryRowContext(ctx, query, args...).Scan(&insertedID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Info("Order already exists for payment reference", zap.String("payment_reference", order.PaymentReference))
			err = order_repo.ErrAlreadyExists
			return err
		}
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// order_number collision or a concurrent insert on another index
			err = fmt.Errorf("%w: %s", order_repo.ErrAlreadyExists, pgErr.Constraint)
			return err
		}
		err = fmt.Errorf("tx failed to create order: %w", err)
		return err
	}

	if msg != nil {
		if err = r.outbox.CreateMessageTx(ctx, tx, msg); err != nil {
			err = fmt.Errorf("tx failed to create outbox message: %w", err)
			return err
		}
		r.logger.Debug("Outbox message inserted in transaction", zap.String("message_id", msg.ID))
	}

	r.logger.Debug("Order inserted", zap.String("order_id", order.ID), zap.String("order_number", order.OrderNumber))
	return nil
}

func (r *pgOrderRepository) FindByPaymentReference(ctx context.Context, reference string) (*domain.Order, error) {
	return r.getOne(ctx, sq.Eq{"payment_reference": reference})
}

func (r *pgOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

func (r *pgOrderRepository) getOne(ctx context.Context, where sq.Eq) (*domain.Order, error) {
	query, args, err := psql.Select(orderColumns...).From("orders").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build order select: %w", err)
	}

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		r.logger.Error("Failed to get order", zap.Any("where", where), zap.Error(err))
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (r *pgOrderRepository) AppendToHistory(ctx context.Context, orderID string, entry domain.EmailHistoryEntry) error {
	payload, err := json.Marshal([]domain.EmailHistoryEntry{entry})
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	query, args, err := psql.Update("orders").
		Set("email_history", sq.Expr("email_history || ?::jsonb", string(payload))).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": orderID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build history update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to append history for order %s: %w", orderID, err)
	}
	return requireOneRow(res, orderID)
}

func (r *pgOrderRepository) UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	return r.compareAndSet(ctx, orderID, from, map[string]any{
		"status":     to,
		"updated_at": time.Now(),
	})
}

func (r *pgOrderRepository) SetTracking(ctx context.Context, orderID, trackingNumber string, from, to domain.OrderStatus) error {
	return r.compareAndSet(ctx, orderID, from, map[string]any{
		"status":          to,
		"tracking_number": trackingNumber,
		"updated_at":      time.Now(),
	})
}

func (r *pgOrderRepository) compareAndSet(ctx context.Context, orderID string, from domain.OrderStatus, values map[string]any) error {
	query, args, err := psql.Update("orders").
		SetMap(values).
		Where(sq.Eq{"id": orderID, "status": from}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build order update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update order", zap.String("order_id", orderID), zap.Error(err))
		return fmt.Errorf("failed to update order %s: %w", orderID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// Nothing matched: either the order is gone or another writer moved it.
	if _, err := r.GetByID(ctx, orderID); err != nil {
		return err
	}
	return domain.ErrStatusConflict
}

func requireOneRow(res sql.Result, orderID string) error {
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o                                domain.Order
		customer, items, method, history []byte
		tracking                         sql.NullString
	)
	if err := row.Scan(
		&o.ID, &o.OrderNumber, &o.PaymentReference, &customer, &items, &o.Currency,
		&o.Subtotal, &o.Shipping, &o.Tax, &o.Total, &method, &o.Status, &o.Locale,
		&tracking, &history, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	o.TrackingNumber = tracking.String

	if err := json.Unmarshal(customer, &o.Customer); err != nil {
		return nil, fmt.Errorf("failed to decode customer: %w", err)
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	if err := json.Unmarshal(method, &o.ShippingMethod); err != nil {
		return nil, fmt.Errorf("failed to decode shipping method: %w", err)
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &o.EmailHistory); err != nil {
			return nil, fmt.Errorf("failed to decode email history: %w", err)
		}
	}
	return &o, nil
}

func marshalDocuments(o *domain.Order) (customer, items, method, history []byte, err error) {
	if customer, err = json.Marshal(o.Customer); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal customer: %w", err)
	}
	if items, err = json.Marshal(o.Items); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal items: %w", err)
	}
	if method, err = json.Marshal(o.ShippingMethod); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal shipping method: %w", err)
	}
	entries := o.EmailHistory
	if entries == nil {
		entries = []domain.EmailHistoryEntry{}
	}
	if history, err = json.Marshal(entries); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal email history: %w", err)
	}
	return customer, items, method, history, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
