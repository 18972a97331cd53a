package batcher

import (
	"context"
	"log"
	"time"

	"github.com/convoreach/convoreach-backend/internal/model"
	"github.com/convoreach/convoreach-backend/internal/repository"
)

// Sweeper is the crash-recovery path: it scans for unprocessed inbound
// messages no live window covers (missed timer, process restart) and feeds
// them straight downstream, bypassing batching. Correctness over latency.
type Sweeper struct {
	Messages repository.MessageRepositoryInterface
	Outbound repository.OutboundItemRepositoryInterface
	Batcher  *Batcher
	Flush    FlushFunc

	Interval  time.Duration
	BatchSize int
	// GracePeriod keeps the sweep off messages young enough that a live
	// window may still be collecting them.
	GracePeriod time.Duration
}

const (
	DefaultSweepInterval = 30 * time.Second
	defaultSweepBatch    = 100
)

// Run loops until the context is cancelled. Errors are logged per pass; one
// bad pass never stops the sweep.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.SweepOnce(); err != nil {
				log.Printf("sweep: pass failed: %v", err)
			}
		}
	}
}

// SweepOnce performs a single reconciliation pass.
func (s *Sweeper) SweepOnce() error {
	grace := s.GracePeriod
	if grace <= 0 {
		grace = s.Batcher.duration + time.Second
	}
	limit := s.BatchSize
	if limit <= 0 {
		limit = defaultSweepBatch
	}

	messages, err := s.Messages.ListUnprocessedInbound(time.Now().Add(-grace), limit)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	inFlight, err := s.Outbound.InFlightConversationIDs()
	if err != nil {
		return err
	}

	byConversation := map[string][]*model.Message{}
	order := []string{}
	for _, m := range messages {
		if _, seen := byConversation[m.ConversationID]; !seen {
			order = append(order, m.ConversationID)
		}
		byConversation[m.ConversationID] = append(byConversation[m.ConversationID], m)
	}

	swept := 0
	for _, convID := range order {
		if s.Batcher.Covers(convID) {
			continue
		}
		// A conversation already past the rule engine stage would generate a
		// duplicate reply; skip until its in-flight item resolves.
		if inFlight[convID] {
			continue
		}
		s.Flush(convID, byConversation[convID])
		swept++
	}
	if swept > 0 {
		log.Printf("sweep: recovered %d conversation batch(es)", swept)
	}
	return nil
}
