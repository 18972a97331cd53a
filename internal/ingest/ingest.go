// Package ingest turns raw channel events into canonical messages, rejecting
// duplicates. The pipeline is at-least-once and idempotent: webhook handlers
// acknowledge upstream even when persistence fails, because redelivery is safe.
package ingest

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/convoreach/convoreach-backend/internal/model"
	"github.com/convoreach/convoreach-backend/internal/repository"
)

// InboundEvent is the channel-agnostic shape webhook handlers produce.
type InboundEvent struct {
	Channel          model.Channel
	ChannelAccountID string
	ExternalID       string // channel-native message id, the dedup key
	ContactID        string
	ContactRef       string // channel-native ref used when replying
	Text             string
	ReceivedAt       time.Time
}

type Ingestor struct {
	Messages      repository.MessageRepositoryInterface
	Conversations repository.ConversationRepositoryInterface

	// DuplicateTextWindow is the content-based fence: identical text from the
	// same sender within this window is dropped even under a fresh wrapper id.
	DuplicateTextWindow time.Duration
}

const defaultDuplicateTextWindow = 10 * time.Second

// Ingest locates or creates the conversation for the sender, persists the
// message, and reports whether it was new. A dedup hit is not an error: the
// existing message (or nil for a content-fence hit) comes back with isNew=false.
func (i *Ingestor) Ingest(ev InboundEvent) (*model.Message, bool, error) {
	existing, err := i.Messages.GetByExternalID(ev.ExternalID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	conv, err := i.upsertConversation(ev)
	if err != nil {
		return nil, false, err
	}

	window := i.DuplicateTextWindow
	if window <= 0 {
		window = defaultDuplicateTextWindow
	}
	dup, err := i.Messages.HasRecentDuplicate(conv.ID, ev.ContactRef, ev.Text, time.Now().Add(-window))
	if err != nil {
		return nil, false, err
	}
	if dup {
		log.Printf("ingest: dropped redelivered message (conversation=%s external_id=%s)", conv.ID, ev.ExternalID)
		return nil, false, nil
	}

	msg := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Direction:      model.DirectionIn,
		ExternalID:     ev.ExternalID,
		SenderRef:      ev.ContactRef,
		Text:           ev.Text,
		Processed:      false,
		CreatedAt:      ev.ReceivedAt,
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if err := i.Messages.Create(msg); err != nil {
		return nil, false, err
	}
	if err := i.Conversations.TouchActivity(conv.ID, msg.CreatedAt); err != nil {
		log.Printf("ingest: failed to touch conversation %s: %v", conv.ID, err)
	}
	return msg, true, nil
}

func (i *Ingestor) upsertConversation(ev InboundEvent) (*model.Conversation, error) {
	conv, err := i.Conversations.FindByContact(ev.ChannelAccountID, ev.ContactID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	conv = &model.Conversation{
		ID:               uuid.New().String(),
		ContactID:        ev.ContactID,
		ContactRef:       ev.ContactRef,
		ChannelAccountID: ev.ChannelAccountID,
		Channel:          ev.Channel,
		Status:           model.ConversationOpen,
		AIEnabled:        true,
		LeadScore:        model.LeadScore{Current: 1},
		Milestone:        model.Milestone{Status: model.MilestonePending},
	}
	if err := i.Conversations.Create(conv); err != nil {
		return nil, err
	}
	log.Printf("ingest: created conversation %s (channel=%s contact=%s)", conv.ID, ev.Channel, ev.ContactID)
	return conv, nil
}
