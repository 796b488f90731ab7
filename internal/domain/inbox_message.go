package domain

import "time"

type InboxMessageStatus string

const (
	InboxStatusNew       InboxMessageStatus = "NEW"
	InboxStatusProcessed InboxMessageStatus = "PROCESSED"
	InboxStatusIgnored   InboxMessageStatus = "IGNORED"
	InboxStatusFailed    InboxMessageStatus = "FAILED"
)

// InboxMessage records a payment provider event so redeliveries can be skipped.
type InboxMessage struct {
	ID          string
	EventType   string
	Payload     []byte
	Status      InboxMessageStatus
	Error       string
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}

// Done reports whether the event reached a terminal state.
func (m *InboxMessage) Done() bool {
	return m.Status == InboxStatusProcessed || m.Status == InboxStatusIgnored || m.Status == InboxStatusFailed
}
