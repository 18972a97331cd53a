package ingest

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoreach/convoreach-backend/internal/model"
)

// In-memory mocks

type mockMessageRepo struct {
	mu   sync.Mutex
	msgs []*model.Message
}

func (m *mockMessageRepo) Create(msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *mockMessageRepo) GetByID(id string) (*model.Message, error) { return nil, nil }

func (m *mockMessageRepo) GetByExternalID(externalID string) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if externalID == "" {
		return nil, nil
	}
	for _, msg := range m.msgs {
		if msg.ExternalID == externalID {
			return msg, nil
		}
	}
	return nil, nil
}

func (m *mockMessageRepo) HasRecentDuplicate(conversationID, senderRef, text string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.msgs {
		if msg.ConversationID == conversationID && msg.SenderRef == senderRef &&
			msg.Text == text && msg.CreatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockMessageRepo) MarkProcessed(ids []string) error          { return nil }
func (m *mockMessageRepo) SetExternalID(id, externalID string) error { return nil }
func (m *mockMessageRepo) ListUnprocessedInbound(olderThan time.Time, limit int) ([]*model.Message, error) {
	return nil, nil
}
func (m *mockMessageRepo) ListTranscript(conversationID string, limit int) ([]model.Message, error) {
	return nil, nil
}

type mockConversationRepo struct {
	mu    sync.Mutex
	convs []*model.Conversation
}

func (m *mockConversationRepo) GetByID(id string) (*model.Conversation, error) { return nil, nil }

func (m *mockConversationRepo) FindByContact(channelAccountID, contactID string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.convs {
		if c.ChannelAccountID == channelAccountID && c.ContactID == contactID {
			return c, nil
		}
	}
	return nil, nil
}

func (m *mockConversationRepo) Create(c *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs = append(m.convs, c)
	return nil
}

func (m *mockConversationRepo) Update(c *model.Conversation) error          { return nil }
func (m *mockConversationRepo) TouchActivity(id string, at time.Time) error { return nil }

func newIngestor() (*Ingestor, *mockMessageRepo, *mockConversationRepo) {
	msgs := &mockMessageRepo{}
	convs := &mockConversationRepo{}
	return &Ingestor{Messages: msgs, Conversations: convs}, msgs, convs
}

func event(externalID, text string) InboundEvent {
	return InboundEvent{
		Channel:          model.ChannelInstagram,
		ChannelAccountID: "acct-1",
		ExternalID:       externalID,
		ContactID:        "contact-1",
		ContactRef:       "ig-user-1",
		Text:             text,
		ReceivedAt:       time.Now(),
	}
}

func TestIngestCreatesConversationAndMessage(t *testing.T) {
	ing, msgs, convs := newIngestor()

	msg, isNew, err := ing.Ingest(event("mid-1", "hello"))
	require.NoError(t, err)
	require.True(t, isNew)
	require.NotNil(t, msg)

	assert.Equal(t, model.DirectionIn, msg.Direction)
	assert.Equal(t, "hello", msg.Text)
	assert.False(t, msg.Processed)

	require.Len(t, convs.convs, 1)
	conv := convs.convs[0]
	assert.Equal(t, msg.ConversationID, conv.ID)
	assert.Equal(t, model.ConversationOpen, conv.Status)
	assert.True(t, conv.AIEnabled)
	assert.Equal(t, 1, conv.LeadScore.Current)
	assert.Equal(t, model.MilestonePending, conv.Milestone.Status)

	require.Len(t, msgs.msgs, 1)
}

// Redelivery with the same channel-native id returns the stored message
// instead of inserting a second row.
func TestIngestIsIdempotentOnExternalID(t *testing.T) {
	ing, msgs, convs := newIngestor()

	first, isNew, err := ing.Ingest(event("mid-1", "hello"))
	require.NoError(t, err)
	require.True(t, isNew)

	second, isNew, err := ing.Ingest(event("mid-1", "hello"))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.ID, second.ID)

	assert.Len(t, msgs.msgs, 1)
	assert.Len(t, convs.convs, 1)
}

// Same text from the same sender inside the fence window is dropped even when
// the wrapper id differs.
func TestIngestDropsRecentDuplicateText(t *testing.T) {
	ing, msgs, _ := newIngestor()

	_, isNew, err := ing.Ingest(event("mid-1", "hello"))
	require.NoError(t, err)
	require.True(t, isNew)

	msg, isNew, err := ing.Ingest(event("mid-2", "hello"))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Nil(t, msg)
	assert.Len(t, msgs.msgs, 1)
}

// The fence only applies inside the window; an old identical message does not
// block a new one.
func TestIngestAllowsDuplicateTextOutsideWindow(t *testing.T) {
	ing, msgs, _ := newIngestor()
	ing.DuplicateTextWindow = 50 * time.Millisecond

	_, _, err := ing.Ingest(event("mid-1", "hello"))
	require.NoError(t, err)

	msgs.mu.Lock()
	msgs.msgs[0].CreatedAt = time.Now().Add(-time.Second)
	msgs.mu.Unlock()

	_, isNew, err := ing.Ingest(event("mid-2", "hello"))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Len(t, msgs.msgs, 2)
}

func TestIngestReusesExistingConversation(t *testing.T) {
	ing, _, convs := newIngestor()

	first, _, err := ing.Ingest(event("mid-1", "hello"))
	require.NoError(t, err)

	second, isNew, err := ing.Ingest(event("mid-2", "and another thing"))
	require.NoError(t, err)
	require.True(t, isNew)

	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Len(t, convs.convs, 1)
}

func TestIngestSeparatesContacts(t *testing.T) {
	ing, _, convs := newIngestor()

	_, _, err := ing.Ingest(event("mid-1", "hello"))
	require.NoError(t, err)

	other := event("mid-2", "hello")
	other.ContactID = "contact-2"
	other.ContactRef = "ig-user-2"
	_, isNew, err := ing.Ingest(other)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Len(t, convs.convs, 2)
}
