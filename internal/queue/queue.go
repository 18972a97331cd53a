// Package queue is the durable, priority-ordered, retrying mailbox of pending
// sends. State lives in Postgres; AMQP only nudges the worker so freshly
// queued replies go out without waiting for the next periodic drain.
package queue

import (
	"log"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/convoreach/convoreach-backend/internal/errors"
	"github.com/convoreach/convoreach-backend/internal/model"
	"github.com/convoreach/convoreach-backend/internal/repository"
)

const DefaultMaxAttempts = 3

type OutboundQueue struct {
	Items       repository.OutboundItemRepositoryInterface
	Messages    repository.MessageRepositoryInterface
	Publisher   Publisher
	MaxAttempts int
}

// Backoff computes the retry delay for an item that has failed `attempts`
// times: 1000ms * 2^attempts.
func Backoff(attempts int) time.Duration {
	if attempts > 20 {
		attempts = 20
	}
	return time.Duration(1<<uint(attempts)) * 1000 * time.Millisecond
}

func (q *OutboundQueue) HasInFlight(conversationID string) (bool, error) {
	return q.Items.HasInFlight(conversationID)
}

// Enqueue creates the outbound message and its pending item. The
// lookup-then-create check enforces the single-in-flight invariant; the
// partial unique index backstops the benign race, which the worker resolves
// idempotently via the claim.
func (q *OutboundQueue) Enqueue(conv *model.Conversation, text string) (*model.OutboundItem, error) {
	inFlight, err := q.Items.HasInFlight(conv.ID)
	if err != nil {
		return nil, err
	}
	if inFlight {
		return nil, appErrors.NewInFlightConflict(conv.ID)
	}

	msg := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Direction:      model.DirectionOut,
		Text:           text,
		Processed:      true,
		CreatedAt:      time.Now(),
	}
	if err := q.Messages.Create(msg); err != nil {
		return nil, err
	}

	maxAttempts := q.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	item := &model.OutboundItem{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		Priority:       model.PriorityNormal,
		Status:         model.OutboundPending,
		MaxAttempts:    maxAttempts,
		ScheduledFor:   time.Now(),
	}
	if err := q.Items.Create(item); err != nil {
		return nil, err
	}

	if q.Publisher != nil {
		if err := q.Publisher.PublishItemQueued(item.ID); err != nil {
			// Not fatal: the periodic drain delivers it anyway.
			log.Printf("queue: failed to publish nudge for item %s: %v", item.ID, err)
		}
	}
	return item, nil
}

// MarkSent resolves a processing item as delivered.
func (q *OutboundQueue) MarkSent(item *model.OutboundItem) error {
	item.Status = model.OutboundSent
	item.NextAttemptAt = nil
	return q.Items.Update(item)
}

// MarkTransientFailure consumes an attempt, appends the forensic record, and
// either re-queues with backoff or fails the item permanently once attempts
// are exhausted.
func (q *OutboundQueue) MarkTransientFailure(item *model.OutboundItem, code, message string) error {
	item.Attempts++
	item.ErrorHistory = append(item.ErrorHistory, model.SendError{
		Attempt:      item.Attempts,
		Timestamp:    time.Now(),
		ErrorCode:    code,
		ErrorMessage: message,
	})
	if item.Attempts >= item.MaxAttempts {
		item.Status = model.OutboundFailed
		item.NextAttemptAt = nil
	} else {
		next := time.Now().Add(Backoff(item.Attempts))
		item.Status = model.OutboundPending
		item.NextAttemptAt = &next
	}
	return q.Items.Update(item)
}

// MarkPermanentFailure skips retry entirely: retrying a RECIPIENT_NOT_FOUND
// is guaranteed futile.
func (q *OutboundQueue) MarkPermanentFailure(item *model.OutboundItem, code, message string) error {
	item.Attempts++
	item.ErrorHistory = append(item.ErrorHistory, model.SendError{
		Attempt:      item.Attempts,
		Timestamp:    time.Now(),
		ErrorCode:    code,
		ErrorMessage: message,
	})
	item.Status = model.OutboundFailed
	item.NextAttemptAt = nil
	return q.Items.Update(item)
}
