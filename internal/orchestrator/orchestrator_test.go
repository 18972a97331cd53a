package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoreach/convoreach-backend/internal/model"
)

// In-memory mocks

type mockConversationRepo struct {
	mu    sync.Mutex
	convs map[string]*model.Conversation
}

func (m *mockConversationRepo) GetByID(id string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.convs[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, fmt.Errorf("conversation %s not found", id)
}

func (m *mockConversationRepo) FindByContact(channelAccountID, contactID string) (*model.Conversation, error) {
	return nil, nil
}

func (m *mockConversationRepo) Create(c *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[c.ID] = c
	return nil
}

func (m *mockConversationRepo) Update(c *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.convs[c.ID] = &cp
	return nil
}

func (m *mockConversationRepo) TouchActivity(id string, at time.Time) error { return nil }

type mockMessageRepo struct {
	mu         sync.Mutex
	processed  []string
	transcript []model.Message
}

func (m *mockMessageRepo) Create(msg *model.Message) error                       { return nil }
func (m *mockMessageRepo) GetByID(id string) (*model.Message, error) { return nil, nil }
func (m *mockMessageRepo) GetByExternalID(externalID string) (*model.Message, error) {
	return nil, nil
}
func (m *mockMessageRepo) HasRecentDuplicate(conversationID, senderRef, text string, since time.Time) (bool, error) {
	return false, nil
}

func (m *mockMessageRepo) MarkProcessed(ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed = append(m.processed, ids...)
	return nil
}

func (m *mockMessageRepo) SetExternalID(id, externalID string) error { return nil }
func (m *mockMessageRepo) ListUnprocessedInbound(olderThan time.Time, limit int) ([]*model.Message, error) {
	return nil, nil
}

func (m *mockMessageRepo) ListTranscript(conversationID string, limit int) ([]model.Message, error) {
	return m.transcript, nil
}

type mockConfigRepo struct {
	cfg *model.AgentConfig
}

func (m *mockConfigRepo) Load() (*model.AgentConfig, error) { return m.cfg, nil }
func (m *mockConfigRepo) Save(cfg *model.AgentConfig) error { m.cfg = cfg; return nil }

type mockEnqueuer struct {
	mu       sync.Mutex
	items    []*model.OutboundItem
	inFlight bool
}

func (m *mockEnqueuer) Enqueue(conv *model.Conversation, text string) (*model.OutboundItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := &model.OutboundItem{
		ID:             fmt.Sprintf("item-%d", len(m.items)+1),
		ConversationID: conv.ID,
		Status:         model.OutboundPending,
		Priority:       model.PriorityNormal,
	}
	m.items = append(m.items, item)
	return item, nil
}

func (m *mockEnqueuer) HasInFlight(conversationID string) (bool, error) {
	return m.inFlight, nil
}

type stubResultGenerator struct {
	result *GenerationResult
	err    error
	calls  int
}

func (g *stubResultGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

type fixture struct {
	orch  *Orchestrator
	convs *mockConversationRepo
	msgs  *mockMessageRepo
	queue *mockEnqueuer
	gen   *stubResultGenerator
	cfg   *model.AgentConfig
}

func newFixture(result *GenerationResult, genErr error) *fixture {
	conv := &model.Conversation{
		ID:        "conv-1",
		ContactID: "contact-1",
		Channel:   model.ChannelInstagram,
		AIEnabled: true,
		LeadScore: model.LeadScore{Current: 1},
		Milestone: model.Milestone{Status: model.MilestonePending},
	}
	convs := &mockConversationRepo{convs: map[string]*model.Conversation{"conv-1": conv}}
	msgs := &mockMessageRepo{}
	q := &mockEnqueuer{}
	gen := &stubResultGenerator{result: result, err: genErr}
	cfg := model.DefaultAgentConfig()
	return &fixture{
		orch: &Orchestrator{
			Conversations: convs,
			Messages:      msgs,
			Config:        &mockConfigRepo{cfg: cfg},
			Queue:         q,
			Generator:     gen,
			Detector:      KeywordDetector{},
			BusinessName:  "Acme",
		},
		convs: convs,
		msgs:  msgs,
		queue: q,
		gen:   gen,
		cfg:   cfg,
	}
}

func batch(texts ...string) []*model.Message {
	out := make([]*model.Message, 0, len(texts))
	for i, text := range texts {
		out = append(out, &model.Message{
			ID:             fmt.Sprintf("msg-%d", i+1),
			ConversationID: "conv-1",
			Direction:      model.DirectionIn,
			Text:           text,
		})
	}
	return out
}

func TestProcessBatchCreatesOneItem(t *testing.T) {
	f := newFixture(&GenerationResult{Text: "hi!", LeadScore: 2, Intent: "greeting", Confidence: 0.9}, nil)

	item, err := f.orch.ProcessBatch(context.Background(), "conv-1", batch("hello", "anyone there?"))
	require.NoError(t, err)
	require.NotNil(t, item)

	require.Len(t, f.queue.items, 1)
	assert.ElementsMatch(t, []string{"msg-1", "msg-2"}, f.msgs.processed)

	conv, _ := f.convs.GetByID("conv-1")
	assert.Equal(t, 1, conv.Counter.Total)
	assert.Equal(t, 2, conv.LeadScore.Current)
	require.Len(t, conv.LeadScore.History, 1)
	assert.Equal(t, "increased", conv.LeadScore.History[0].Progression)
}

// Generation failure: no outbound item, but the batch is still marked
// processed so it is never re-generated.
func TestGenerationFailureSkipsBatch(t *testing.T) {
	f := newFixture(nil, errors.New("timeout"))

	item, err := f.orch.ProcessBatch(context.Background(), "conv-1", batch("hello"))
	require.NoError(t, err)
	assert.Nil(t, item)

	assert.Empty(t, f.queue.items)
	assert.Equal(t, []string{"msg-1"}, f.msgs.processed)

	conv, _ := f.convs.GetByID("conv-1")
	assert.Equal(t, 0, conv.Counter.Total)
}

// While the milestone is pending, the generated score is capped at 4.
func TestScoreClampedWhileMilestonePending(t *testing.T) {
	f := newFixture(&GenerationResult{Text: "reply", LeadScore: 7, Confidence: 1}, nil)

	_, err := f.orch.ProcessBatch(context.Background(), "conv-1", batch("hello"))
	require.NoError(t, err)

	conv, _ := f.convs.GetByID("conv-1")
	assert.Equal(t, 4, conv.LeadScore.Current)
	assert.Equal(t, 4, conv.LeadScore.History[0].Score)
}

// Score 5 requires that step 4 was genuinely reached first.
func TestScoreFiveGatedBehindStepFour(t *testing.T) {
	f := newFixture(&GenerationResult{Text: "reply", LeadScore: 5, Confidence: 1}, nil)
	f.convs.convs["conv-1"].Milestone.Status = model.MilestoneFailed // no pending clamp
	f.convs.convs["conv-1"].LeadScore.Current = 2

	_, err := f.orch.ProcessBatch(context.Background(), "conv-1", batch("hello"))
	require.NoError(t, err)

	conv, _ := f.convs.GetByID("conv-1")
	assert.Equal(t, 4, conv.LeadScore.Current)

	// With step 4 already reached, score 5 is allowed.
	f2 := newFixture(&GenerationResult{Text: "reply", LeadScore: 5, Confidence: 1}, nil)
	f2.convs.convs["conv-1"].Milestone.Status = model.MilestoneFailed
	f2.convs.convs["conv-1"].LeadScore.Current = 4
	_, err = f2.orch.ProcessBatch(context.Background(), "conv-1", batch("hello"))
	require.NoError(t, err)
	conv2, _ := f2.convs.GetByID("conv-1")
	assert.Equal(t, 5, conv2.LeadScore.Current)
}

func TestMilestoneDetectionAchievesAndDisables(t *testing.T) {
	f := newFixture(&GenerationResult{Text: "see you then", LeadScore: 3, Confidence: 1}, nil)
	f.convs.convs["conv-1"].Milestone = model.Milestone{
		Target:           model.MilestoneTargetMeeting,
		Status:           model.MilestonePending,
		AutoDisableAgent: true,
	}

	_, err := f.orch.ProcessBatch(context.Background(), "conv-1", batch("I booked a call on calendly"))
	require.NoError(t, err)

	conv, _ := f.convs.GetByID("conv-1")
	assert.Equal(t, model.MilestoneAchieved, conv.Milestone.Status)
	require.NotNil(t, conv.Milestone.AchievedAt)
	assert.False(t, conv.AIEnabled)
}

func TestInFlightItemDefersBatch(t *testing.T) {
	f := newFixture(&GenerationResult{Text: "hi", LeadScore: 1, Confidence: 1}, nil)
	f.queue.inFlight = true

	item, err := f.orch.ProcessBatch(context.Background(), "conv-1", batch("hello"))
	require.NoError(t, err)
	assert.Nil(t, item)
	// Batch stays unprocessed so the sweep retries it later.
	assert.Empty(t, f.msgs.processed)
	assert.Equal(t, 0, f.gen.calls)
}

func TestAchievedMilestonePrecondition(t *testing.T) {
	f := newFixture(&GenerationResult{Text: "hi", LeadScore: 1, Confidence: 1}, nil)
	f.convs.convs["conv-1"].Milestone = model.Milestone{
		Status:           model.MilestoneAchieved,
		AutoDisableAgent: false,
	}

	item, err := f.orch.ProcessBatch(context.Background(), "conv-1", batch("hello"))
	require.NoError(t, err)
	assert.Nil(t, item)
	assert.Equal(t, []string{"msg-1"}, f.msgs.processed)
	assert.Equal(t, 0, f.gen.calls)
}

// Scenario: with a response cap of 3, four sequential batches produce exactly
// three outbound items and the fourth records the disable.
func TestResponseLimitAcrossBatches(t *testing.T) {
	f := newFixture(&GenerationResult{Text: "reply", LeadScore: 1, Confidence: 1}, nil)
	f.cfg.ResponseLimits.MaxPerConversation = 3

	for i := 0; i < 4; i++ {
		// Each batch arrives after the previous reply resolved.
		for _, item := range f.queue.items {
			item.Status = model.OutboundSent
		}
		_, err := f.orch.ProcessBatch(context.Background(), "conv-1",
			batch(fmt.Sprintf("message %d", i+1)))
		require.NoError(t, err)
	}

	assert.Len(t, f.queue.items, 3)
	conv, _ := f.convs.GetByID("conv-1")
	assert.False(t, conv.AIEnabled)
	assert.True(t, conv.Counter.DisabledByResponseLimit)
	assert.Equal(t, 3, conv.Counter.Total)
}

func TestEmptyBatchIsNoop(t *testing.T) {
	f := newFixture(&GenerationResult{Text: "hi", LeadScore: 1, Confidence: 1}, nil)
	item, err := f.orch.ProcessBatch(context.Background(), "conv-1", nil)
	require.NoError(t, err)
	assert.Nil(t, item)
	assert.Equal(t, 0, f.gen.calls)
}
