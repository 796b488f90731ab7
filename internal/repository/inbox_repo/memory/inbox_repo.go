package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"settlement/internal/domain"
	"settlement/internal/repository/inbox_repo"
)

type InboxRepository struct {
	mu       sync.Mutex
	messages map[string]domain.InboxMessage
}

func NewInboxRepository() *InboxRepository {
	return &InboxRepository{messages: make(map[string]domain.InboxMessage)}
}

func (r *InboxRepository) CreateMessage(_ context.Context, msg *domain.InboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.messages[msg.ID]; ok {
		if existing.Done() {
			return inbox_repo.ErrMessageAlreadyProcessed
		}
		return inbox_repo.ErrMessageAlreadyPending
	}
	stored := *msg
	stored.Payload = append([]byte(nil), msg.Payload...)
	r.messages[msg.ID] = stored
	return nil
}

func (r *InboxRepository) UpdateStatus(_ context.Context, id string, status domain.InboxMessageStatus, errText string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return fmt.Errorf("%w: %s", inbox_repo.ErrMessageNotFound, id)
	}
	msg.Status = status
	msg.Error = errText
	if status != domain.InboxStatusNew {
		now := time.Now()
		msg.ProcessedAt = &now
	}
	r.messages[id] = msg
	return nil
}

func (r *InboxRepository) GetMessage(_ context.Context, id string) (*domain.InboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", inbox_repo.ErrMessageNotFound, id)
	}
	return &msg, nil
}
