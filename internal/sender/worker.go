// Package sender drains the outbound delivery queue under rate limits and
// resolves terminal or retry states through the channel transports.
package sender

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/convoreach/convoreach-backend/internal/channel"
	appErrors "github.com/convoreach/convoreach-backend/internal/errors"
	"github.com/convoreach/convoreach-backend/internal/model"
	"github.com/convoreach/convoreach-backend/internal/queue"
	"github.com/convoreach/convoreach-backend/internal/repository"
)

type Worker struct {
	Conversations repository.ConversationRepositoryInterface
	Messages      repository.MessageRepositoryInterface
	Items         repository.OutboundItemRepositoryInterface
	Queue         *queue.OutboundQueue
	Senders       map[model.Channel]channel.Sender
	Gate          *RateGate

	Interval    time.Duration
	BatchSize   int
	SendTimeout time.Duration
	// StuckAfter bounds how long an item may sit in processing before the
	// sweep assumes a crashed worker and re-queues it.
	StuckAfter time.Duration
}

const (
	DefaultInterval  = 30 * time.Second
	DefaultBatchSize = 10

	defaultSendTimeout = 10 * time.Second
	defaultStuckAfter  = 5 * time.Minute
)

// Run executes one pass immediately, then one per interval until the context
// is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	w.RunOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce drains ready items, re-queues items stranded in processing, and
// cancels expired ones. Every error is caught at the item boundary; one bad
// conversation never aborts the pass for the others.
func (w *Worker) RunOnce(ctx context.Context) {
	batch := w.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	items, err := w.Items.ListReady(time.Now(), batch)
	if err != nil {
		log.Printf("sender: failed to list ready items: %v", err)
	} else {
		for _, item := range items {
			err := w.Process(ctx, item)
			switch {
			case err == nil:
			case appErrors.IsRateLimited(err):
				log.Printf("sender: deferring item %s: %v", item.ID, err)
			default:
				log.Printf("sender: item %s (conversation=%s attempt=%d): %v",
					item.ID, item.ConversationID, item.Attempts, err)
			}
		}
	}

	stuckAfter := w.StuckAfter
	if stuckAfter <= 0 {
		stuckAfter = defaultStuckAfter
	}
	if n, err := w.Items.ReclaimStuck(time.Now().Add(-stuckAfter)); err != nil {
		log.Printf("sender: failed to reclaim stuck items: %v", err)
	} else if n > 0 {
		log.Printf("sender: re-queued %d stuck item(s)", n)
	}

	if n, err := w.Items.CancelExpired(time.Now()); err != nil {
		log.Printf("sender: failed to cancel expired items: %v", err)
	} else if n > 0 {
		log.Printf("sender: cancelled %d expired item(s)", n)
	}
}

// ProcessByID handles an AMQP nudge for a freshly queued item.
func (w *Worker) ProcessByID(ctx context.Context, itemID string) error {
	item, err := w.Items.GetByID(itemID)
	if err != nil {
		return err
	}
	if item == nil || item.Status != model.OutboundPending {
		return nil // already handled by a periodic pass
	}
	if item.ScheduledFor.After(time.Now()) {
		return nil
	}
	return w.Process(ctx, item)
}

// Process attempts delivery of one item. Rate-gate deferrals leave the item
// pending without consuming an attempt; transport outcomes resolve through
// the queue's state transitions.
func (w *Worker) Process(ctx context.Context, item *model.OutboundItem) error {
	conv, err := w.Conversations.GetByID(item.ConversationID)
	if err != nil {
		return err
	}

	// Gates are checked before claiming so a deferral costs nothing. The
	// contact check is side-effect-free and runs first: a cooldown deferral
	// must not consume a token from the account budget.
	if !w.Gate.AllowContact(conv.ContactID) {
		return appErrors.NewRateLimited("contact")
	}
	if !w.Gate.AllowAccount(conv.ChannelAccountID) {
		return appErrors.NewRateLimited("account")
	}

	claimed, err := w.Items.Claim(item.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil // another worker or a duplicate nudge won the claim
	}
	item.Status = model.OutboundProcessing

	msg, err := w.Messages.GetByID(item.MessageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return w.Queue.MarkPermanentFailure(item, "MESSAGE_MISSING", "outbound message row not found")
	}

	chSender, ok := w.Senders[conv.Channel]
	if !ok {
		return w.Queue.MarkPermanentFailure(item, appErrors.CodeNoChannelSender,
			"no sender configured for channel "+string(conv.Channel))
	}

	timeout := w.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	externalID, sendErr := chSender.Send(sendCtx, conv.ContactRef, msg.Text)
	cancel()

	if sendErr != nil {
		return w.resolveFailure(item, sendErr)
	}

	if err := w.Messages.SetExternalID(msg.ID, externalID); err != nil {
		log.Printf("sender: failed to store external id for message %s: %v", msg.ID, err)
	}
	if err := w.Queue.MarkSent(item); err != nil {
		return err
	}
	w.Gate.RecordSend(conv.ContactID)
	log.Printf("sender: delivered item %s (conversation=%s attempts=%d)", item.ID, conv.ID, item.Attempts)
	return nil
}

func (w *Worker) resolveFailure(item *model.OutboundItem, sendErr error) error {
	var terr *appErrors.TransportError
	if errors.As(sendErr, &terr) {
		if terr.Permanent() {
			log.Printf("sender: item %s failed permanently (%s)", item.ID, terr.Code)
			return w.Queue.MarkPermanentFailure(item, terr.Code, terr.Message)
		}
		return w.Queue.MarkTransientFailure(item, terr.Code, terr.Message)
	}
	return w.Queue.MarkTransientFailure(item, "SEND_ERROR", sendErr.Error())
}
