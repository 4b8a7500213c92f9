package notification

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies an outbound message
type Kind string

const (
	KindText    Kind = "text"
	KindButtons Kind = "buttons"
	KindList    Kind = "list"
	KindFlow    Kind = "flow"
	KindReceipt Kind = "receipt"
)

// Status of a dispatch attempt
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Notification records one outbound message (matches notifications table)
type Notification struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Kind      Kind      `db:"kind"`
	Body      string    `db:"body"`
	MessageID string    `db:"message_id"`
	Status    Status    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}
