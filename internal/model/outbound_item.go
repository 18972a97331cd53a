// internal/model/outbound_item.go
package model

import "time"

type OutboundStatus string

const (
	OutboundPending    OutboundStatus = "pending"
	OutboundProcessing OutboundStatus = "processing"
	OutboundSent       OutboundStatus = "sent"
	OutboundFailed     OutboundStatus = "failed"
	OutboundCancelled  OutboundStatus = "cancelled"
)

// Priority orders ready items in the delivery queue. Stored as an int so
// `ORDER BY priority DESC` works without a mapping table.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
	PriorityUrgent Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "normal"
	}
}

// SendError is one entry of an item's forensic error trail.
type SendError struct {
	Attempt      int       `json:"attempt"`
	Timestamp    time.Time `json:"timestamp"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
}

// OutboundItem is a durable mailbox entry for one pending reply. Created by
// the orchestrator, consumed and mutated only by the sender worker. At most
// one item per conversation may be pending or processing at any time.
type OutboundItem struct {
	ID             string         `db:"id" json:"id"`
	ConversationID string         `db:"conversation_id" json:"conversation_id"`
	MessageID      string         `db:"message_id" json:"message_id"`
	Priority       Priority       `db:"priority" json:"priority"`
	Status         OutboundStatus `db:"status" json:"status"`
	Attempts       int            `db:"attempts" json:"attempts"`
	MaxAttempts    int            `db:"max_attempts" json:"max_attempts"`
	ScheduledFor   time.Time      `db:"scheduled_for" json:"scheduled_for"`
	NextAttemptAt  *time.Time     `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	ExpiresAt      *time.Time     `db:"expires_at" json:"expires_at,omitempty"`
	ErrorHistory   []SendError    `db:"error_history" json:"error_history,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// InFlight reports whether the item still occupies its conversation's
// single delivery slot.
func (i *OutboundItem) InFlight() bool {
	return i.Status == OutboundPending || i.Status == OutboundProcessing
}
