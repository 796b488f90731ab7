package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"settlement/internal/domain"
	"settlement/internal/repository/inbox_repo"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type InboxRepository struct {
	db *sql.DB
}

func NewInboxRepository(db *sql.DB) *InboxRepository {
	return &InboxRepository{db: db}
}

func (r *InboxRepository) CreateMessage(ctx context.Context, msg *domain.InboxMessage) error {
	query, args, err := psql.Insert("inbox_messages").
		Columns("id", "event_type", "payload", "status", "received_at").
		Values(msg.ID, msg.EventType, msg.Payload, msg.Status, msg.ReceivedAt).
		Suffix("ON CONFLICT (id) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build inbox insert: %w", err)
	}

	var insertedID string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&insertedID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to insert inbox message: %w", err)
	}

	existing, getErr := r.GetMessage(ctx, msg.ID)
	if getErr != nil {
		return fmt.Errorf("failed to retrieve existing inbox message after conflict: %w", getErr)
	}
	if existing.Done() {
		return inbox_repo.ErrMessageAlreadyProcessed
	}
	return inbox_repo.ErrMessageAlreadyPending
}

func (r *InboxRepository) UpdateStatus(ctx context.Context, id string, status domain.InboxMessageStatus, errText string) error {
	var processedAt sql.NullTime
	if status != domain.InboxStatusNew {
		processedAt = sql.NullTime{Time: time.Now(), Valid: true}
	}
	var errValue sql.NullString
	if errText != "" {
		errValue = sql.NullString{String: errText, Valid: true}
	}

	query, args, err := psql.Update("inbox_messages").
		Set("status", status).
		Set("error", errValue).
		Set("processed_at", processedAt).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build inbox update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update inbox message status %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for inbox message update: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", inbox_repo.ErrMessageNotFound, id)
	}
	return nil
}

func (r *InboxRepository) GetMessage(ctx context.Context, id string) (*domain.InboxMessage, error) {
	query, args, err := psql.Select("id", "event_type", "payload", "status", "error", "received_at", "processed_at").
		From("inbox_messages").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build inbox select: %w", err)
	}

	msg := &domain.InboxMessage{}
	var (
		errText     sql.NullString
		processedAt sql.NullTime
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&msg.ID,
		&msg.EventType,
		&msg.Payload,
		&msg.Status,
		&errText,
		&msg.ReceivedAt,
		&processedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", inbox_repo.ErrMessageNotFound, id)
		}
		return nil, fmt.Errorf("failed to get inbox message %s: %w", id, err)
	}
	msg.Error = errText.String
	if processedAt.Valid {
		msg.ProcessedAt = &processedAt.Time
	}
	return msg, nil
}
