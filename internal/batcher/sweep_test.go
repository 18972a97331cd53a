package batcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoreach/convoreach-backend/internal/model"
)

// In-memory mocks

type sweepMessageRepo struct {
	unprocessed []*model.Message
}

func (m *sweepMessageRepo) Create(*model.Message) error                 { return nil }
func (m *sweepMessageRepo) GetByID(string) (*model.Message, error)      { return nil, nil }
func (m *sweepMessageRepo) GetByExternalID(string) (*model.Message, error) {
	return nil, nil
}
func (m *sweepMessageRepo) HasRecentDuplicate(string, string, string, time.Time) (bool, error) {
	return false, nil
}
func (m *sweepMessageRepo) MarkProcessed([]string) error          { return nil }
func (m *sweepMessageRepo) SetExternalID(string, string) error    { return nil }
func (m *sweepMessageRepo) ListUnprocessedInbound(olderThan time.Time, limit int) ([]*model.Message, error) {
	if len(m.unprocessed) > limit {
		return m.unprocessed[:limit], nil
	}
	return m.unprocessed, nil
}
func (m *sweepMessageRepo) ListTranscript(string, int) ([]model.Message, error) { return nil, nil }

type sweepItemRepo struct {
	inFlight map[string]bool
}

func (m *sweepItemRepo) Create(*model.OutboundItem) error            { return nil }
func (m *sweepItemRepo) GetByID(string) (*model.OutboundItem, error) { return nil, nil }
func (m *sweepItemRepo) HasInFlight(conversationID string) (bool, error) {
	return m.inFlight[conversationID], nil
}
func (m *sweepItemRepo) InFlightConversationIDs() (map[string]bool, error) {
	return m.inFlight, nil
}
func (m *sweepItemRepo) ListReady(time.Time, int) ([]*model.OutboundItem, error) { return nil, nil }
func (m *sweepItemRepo) Claim(string) (bool, error)                              { return false, nil }
func (m *sweepItemRepo) Update(*model.OutboundItem) error                        { return nil }
func (m *sweepItemRepo) ReclaimStuck(time.Time) (int64, error)                   { return 0, nil }
func (m *sweepItemRepo) CancelExpired(time.Time) (int64, error)                  { return 0, nil }
func (m *sweepItemRepo) Reset(string) (bool, error)                              { return false, nil }
func (m *sweepItemRepo) Stats() (map[string]int, error)                          { return nil, nil }

func unprocessed(id, conversationID string) *model.Message {
	return &model.Message{
		ID:             id,
		ConversationID: conversationID,
		Direction:      model.DirectionIn,
		Text:           "hi " + id,
		CreatedAt:      time.Now().Add(-time.Minute),
	}
}

func newSweeper(msgs *sweepMessageRepo, items *sweepItemRepo, rec *flushRecorder) *Sweeper {
	return &Sweeper{
		Messages:    msgs,
		Outbound:    items,
		Batcher:     New(time.Hour, rec.flush),
		Flush:       rec.flush,
		GracePeriod: time.Second,
	}
}

// An unprocessed inbound message with no live window is fed straight
// downstream, bypassing batching.
func TestSweepRecoversUncoveredMessages(t *testing.T) {
	rec := newFlushRecorder()
	msgs := &sweepMessageRepo{unprocessed: []*model.Message{unprocessed("m1", "conv-1")}}
	s := newSweeper(msgs, &sweepItemRepo{}, rec)
	defer s.Batcher.Stop()

	require.NoError(t, s.SweepOnce())

	batches := rec.get("conv-1")
	require.Len(t, batches, 1)
	assert.Equal(t, "m1", batches[0][0].ID)
}

// A live window owns its conversation; the sweep must not double-feed
// messages a timer is about to flush.
func TestSweepSkipsCoveredConversation(t *testing.T) {
	rec := newFlushRecorder()
	msgs := &sweepMessageRepo{unprocessed: []*model.Message{
		unprocessed("m1", "conv-1"),
		unprocessed("m2", "conv-2"),
	}}
	s := newSweeper(msgs, &sweepItemRepo{}, rec)
	defer s.Batcher.Stop()

	s.Batcher.Notify("conv-1", msg("live"))

	require.NoError(t, s.SweepOnce())

	assert.Empty(t, rec.get("conv-1"))
	require.Len(t, rec.get("conv-2"), 1)
}

// A conversation with an in-flight outbound item is already past the rule
// engine stage; sweeping it would generate a duplicate reply.
func TestSweepSkipsInFlightConversation(t *testing.T) {
	rec := newFlushRecorder()
	msgs := &sweepMessageRepo{unprocessed: []*model.Message{
		unprocessed("m1", "conv-1"),
		unprocessed("m2", "conv-2"),
	}}
	items := &sweepItemRepo{inFlight: map[string]bool{"conv-1": true}}
	s := newSweeper(msgs, items, rec)
	defer s.Batcher.Stop()

	require.NoError(t, s.SweepOnce())

	assert.Empty(t, rec.get("conv-1"))
	require.Len(t, rec.get("conv-2"), 1)
}

// Stranded messages come out grouped per conversation, one flush each, in
// store order.
func TestSweepGroupsByConversation(t *testing.T) {
	rec := newFlushRecorder()
	msgs := &sweepMessageRepo{unprocessed: []*model.Message{
		unprocessed("a1", "conv-1"),
		unprocessed("b1", "conv-2"),
		unprocessed("a2", "conv-1"),
	}}
	s := newSweeper(msgs, &sweepItemRepo{}, rec)
	defer s.Batcher.Stop()

	require.NoError(t, s.SweepOnce())

	first := rec.get("conv-1")
	require.Len(t, first, 1)
	require.Len(t, first[0], 2)
	assert.Equal(t, "a1", first[0][0].ID)
	assert.Equal(t, "a2", first[0][1].ID)

	second := rec.get("conv-2")
	require.Len(t, second, 1)
	assert.Len(t, second[0], 1)
}

func TestSweepEmptyPassIsNoop(t *testing.T) {
	rec := newFlushRecorder()
	s := newSweeper(&sweepMessageRepo{}, &sweepItemRepo{}, rec)
	defer s.Batcher.Stop()

	require.NoError(t, s.SweepOnce())
	assert.Empty(t, rec.batches)
}

func TestSweepHonorsBatchSize(t *testing.T) {
	rec := newFlushRecorder()
	msgs := &sweepMessageRepo{unprocessed: []*model.Message{
		unprocessed("m1", "conv-1"),
		unprocessed("m2", "conv-2"),
	}}
	s := newSweeper(msgs, &sweepItemRepo{}, rec)
	s.BatchSize = 1
	defer s.Batcher.Stop()

	require.NoError(t, s.SweepOnce())

	require.Len(t, rec.get("conv-1"), 1)
	assert.Empty(t, rec.get("conv-2"))
}
