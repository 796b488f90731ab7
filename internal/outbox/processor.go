package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"settlement/internal/domain"
	kafkaInfra "settlement/internal/infrastructure/kafka"
)

type OutboxRepository interface {
	GetPendingMessages(ctx context.Context, querier domain.Querier, limit int) ([]domain.OutboxMessage, error)
	UpdateMessageStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.OutboxMessageStatus) error
}

// Processor relays pending outbox rows to Kafka. Rows are locked with
// SKIP LOCKED for the whole batch, so several replicas can poll at once.
type Processor struct {
	db            *sql.DB
	outboxRepo    OutboxRepository
	kafkaProducer kafkaInfra.Producer
	pollInterval  time.Duration
	pollTimeout   time.Duration
	batchSize     int
	logger        *zap.Logger
}

func NewProcessor(
	db *sql.DB,
	outboxRepo OutboxRepository,
	kafkaProducer kafkaInfra.Producer,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	batchSize int,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		db:            db,
		outboxRepo:    outboxRepo,
		kafkaProducer: kafkaProducer,
		pollInterval:  pollInterval,
		pollTimeout:   pollTimeout,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// Start polls until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Info("Starting outbox processor...", zap.Duration("poll_interval", p.pollInterval))
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopped.")
			return nil
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error("Failed to process outbox batch", zap.Error(err))
			}
		}
	}
}

// ProcessBatch relays up to batchSize messages and returns how many were sent.
// It stops at the first publish failure so a key's events stay in order.
func (p *Processor) ProcessBatch(ctx context.Context) (sent int, err error) {
	batchCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(batchCtx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin outbox transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				p.logger.Error("Failed to rollback outbox transaction", zap.Error(rbErr))
			}
		}
	}()

	messages, err := p.outboxRepo.GetPendingMessages(batchCtx, tx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	if len(messages) == 0 {
		p.logger.Debug("No pending outbox messages found.")
		return 0, tx.Commit()
	}

	p.logger.Debug("Found pending outbox messages", zap.Int("count", len(messages)))

	for _, msg := range messages {
		if produceErr := p.kafkaProducer.Produce(batchCtx, msg.Key, msg.Topic, msg.Payload); produceErr != nil {
			p.logger.Error("Failed to send outbox message to Kafka",
				zap.String("message_id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Error(produceErr))
			break
		}
		if err = p.outboxRepo.UpdateMessageStatusTx(batchCtx, tx, msg.ID, domain.OutboxStatusSent); err != nil {
			return 0, fmt.Errorf("failed to mark outbox message %s as sent: %w", msg.ID, err)
		}
		sent++
		p.logger.Info("Outbox message relayed",
			zap.String("message_id", msg.ID),
			zap.String("message_type", msg.MessageType),
			zap.String("topic", msg.Topic))
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit outbox transaction: %w", err)
	}
	return sent, nil
}
