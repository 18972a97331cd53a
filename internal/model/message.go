// internal/model/message.go
package model

import "time"

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Message is a single inbound or outbound message inside a conversation.
// Immutable once created except for the Processed flag, which the pipeline
// flips before generation so redelivery never re-triggers a reply.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Direction      Direction `db:"direction" json:"direction"`
	ExternalID     string    `db:"external_id" json:"external_id"` // channel-native message id, globally unique
	SenderRef      string    `db:"sender_ref" json:"sender_ref"`
	Text           string    `db:"text" json:"text"`
	Processed      bool      `db:"processed" json:"processed"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
