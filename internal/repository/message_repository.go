package repository

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/convoreach/convoreach-backend/internal/model"
)

type MessageRepositoryInterface interface {
	Create(m *model.Message) error
	GetByID(id string) (*model.Message, error)
	GetByExternalID(externalID string) (*model.Message, error)
	HasRecentDuplicate(conversationID, senderRef, text string, since time.Time) (bool, error)
	MarkProcessed(ids []string) error
	SetExternalID(id, externalID string) error
	ListUnprocessedInbound(olderThan time.Time, limit int) ([]*model.Message, error)
	ListTranscript(conversationID string, limit int) ([]model.Message, error)
}

type MessageRepository struct {
	DB *sql.DB
}

const messageColumns = `id, conversation_id, direction, external_id, sender_ref, text, processed, created_at`

func (r *MessageRepository) Create(m *model.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	query := `
        INSERT INTO messages (id, conversation_id, direction, external_id, sender_ref, text, processed, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err := r.DB.Exec(query, m.ID, m.ConversationID, m.Direction, m.ExternalID, m.SenderRef, m.Text, m.Processed, m.CreatedAt)
	return err
}

func (r *MessageRepository) GetByID(id string) (*model.Message, error) {
	return r.getOne(`SELECT `+messageColumns+` FROM messages WHERE id=$1`, id)
}

// GetByExternalID is the primary dedup lookup. Returns (nil, nil) when no
// message carries the channel-native id.
func (r *MessageRepository) GetByExternalID(externalID string) (*model.Message, error) {
	return r.getOne(`SELECT `+messageColumns+` FROM messages WHERE external_id=$1`, externalID)
}

func (r *MessageRepository) getOne(query string, args ...interface{}) (*model.Message, error) {
	var m model.Message
	err := r.DB.QueryRow(query, args...).Scan(
		&m.ID, &m.ConversationID, &m.Direction, &m.ExternalID,
		&m.SenderRef, &m.Text, &m.Processed, &m.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// HasRecentDuplicate is the content-based dedup fence: some providers
// redeliver the same message under a fresh wrapper id.
func (r *MessageRepository) HasRecentDuplicate(conversationID, senderRef, text string, since time.Time) (bool, error) {
	var count int
	query := `
        SELECT COUNT(*) FROM messages
        WHERE conversation_id=$1 AND sender_ref=$2 AND text=$3 AND direction='in' AND created_at >= $4
    `
	if err := r.DB.QueryRow(query, conversationID, senderRef, text, since).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *MessageRepository) MarkProcessed(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.DB.Exec(`UPDATE messages SET processed=TRUE WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

func (r *MessageRepository) SetExternalID(id, externalID string) error {
	_, err := r.DB.Exec(`UPDATE messages SET external_id=$1 WHERE id=$2`, externalID, id)
	return err
}

// ListUnprocessedInbound feeds the reconciliation sweep: inbound messages the
// collection window never flushed, old enough that no live window can still
// cover them.
func (r *MessageRepository) ListUnprocessedInbound(olderThan time.Time, limit int) ([]*model.Message, error) {
	query := `
        SELECT ` + messageColumns + ` FROM messages
        WHERE direction='in' AND processed=FALSE AND created_at < $1
        ORDER BY created_at ASC
        LIMIT $2
    `
	rows, err := r.DB.Query(query, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*model.Message{}
	for rows.Next() {
		m := &model.Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.ExternalID,
			&m.SenderRef, &m.Text, &m.Processed, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ListTranscript returns the most recent messages of a conversation in
// chronological order, for the generation request.
func (r *MessageRepository) ListTranscript(conversationID string, limit int) ([]model.Message, error) {
	query := `
        SELECT ` + messageColumns + ` FROM (
            SELECT ` + messageColumns + ` FROM messages
            WHERE conversation_id=$1
            ORDER BY created_at DESC
            LIMIT $2
        ) recent
        ORDER BY created_at ASC
    `
	rows, err := r.DB.Query(query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transcript := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.ExternalID,
			&m.SenderRef, &m.Text, &m.Processed, &m.CreatedAt); err != nil {
			return nil, err
		}
		transcript = append(transcript, m)
	}
	return transcript, rows.Err()
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
