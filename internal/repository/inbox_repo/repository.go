package inbox_repo

import (
	"context"
	"errors"

	"settlement/internal/domain"
)

// InboxRepository de-duplicates payment provider events by event id.
type InboxRepository interface {
	// CreateMessage records a newly received event. It returns
	// ErrMessageAlreadyProcessed when the event already reached a terminal
	// state, and ErrMessageAlreadyPending when an earlier delivery is still
	// open and the event may be processed again.
	CreateMessage(ctx context.Context, msg *domain.InboxMessage) error
	UpdateStatus(ctx context.Context, id string, status domain.InboxMessageStatus, errText string) error
	GetMessage(ctx context.Context, id string) (*domain.InboxMessage, error)
}

var (
	ErrMessageAlreadyProcessed = errors.New("inbox message already processed")
	ErrMessageAlreadyPending   = errors.New("inbox message already pending")
	ErrMessageNotFound         = errors.New("inbox message not found")
)
