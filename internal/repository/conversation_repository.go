package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	appErrors "github.com/convoreach/convoreach-backend/internal/errors"
	"github.com/convoreach/convoreach-backend/internal/model"
)

type ConversationRepositoryInterface interface {
	GetByID(id string) (*model.Conversation, error)
	FindByContact(channelAccountID, contactID string) (*model.Conversation, error)
	Create(c *model.Conversation) error
	Update(c *model.Conversation) error
	TouchActivity(id string, at time.Time) error
}

type ConversationRepository struct {
	DB *sql.DB
}

const conversationColumns = `id, contact_id, contact_ref, channel_account_id, channel, status,
		ai_enabled, response_counter, lead_score, milestone, last_activity_at, created_at`

func (r *ConversationRepository) GetByID(id string) (*model.Conversation, error) {
	c, err := r.getOne(`SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, appErrors.NewConversationNotFound(id)
	}
	return c, nil
}

// FindByContact returns (nil, nil) when the contact has no conversation yet.
func (r *ConversationRepository) FindByContact(channelAccountID, contactID string) (*model.Conversation, error) {
	return r.getOne(
		`SELECT `+conversationColumns+` FROM conversations WHERE channel_account_id=$1 AND contact_id=$2`,
		channelAccountID, contactID,
	)
}

func (r *ConversationRepository) getOne(query string, args ...interface{}) (*model.Conversation, error) {
	var c model.Conversation
	var counter, leadScore, milestone []byte
	err := r.DB.QueryRow(query, args...).Scan(
		&c.ID, &c.ContactID, &c.ContactRef, &c.ChannelAccountID, &c.Channel, &c.Status,
		&c.AIEnabled, &counter, &leadScore, &milestone, &c.LastActivityAt, &c.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(counter, &c.Counter); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(leadScore, &c.LeadScore); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(milestone, &c.Milestone); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepository) Create(c *model.Conversation) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.LastActivityAt.IsZero() {
		c.LastActivityAt = now
	}
	if c.Status == "" {
		c.Status = model.ConversationOpen
	}
	counter, leadScore, milestone, err := marshalConversationState(c)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO conversations
        (id, contact_id, contact_ref, channel_account_id, channel, status, ai_enabled,
         response_counter, lead_score, milestone, last_activity_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `
	_, err = r.DB.Exec(query, c.ID, c.ContactID, c.ContactRef, c.ChannelAccountID, c.Channel,
		c.Status, c.AIEnabled, counter, leadScore, milestone, c.LastActivityAt, c.CreatedAt)
	return err
}

func (r *ConversationRepository) Update(c *model.Conversation) error {
	counter, leadScore, milestone, err := marshalConversationState(c)
	if err != nil {
		return err
	}
	query := `
        UPDATE conversations
        SET status=$1, ai_enabled=$2, response_counter=$3, lead_score=$4, milestone=$5, last_activity_at=$6
        WHERE id=$7
    `
	_, err = r.DB.Exec(query, c.Status, c.AIEnabled, counter, leadScore, milestone, c.LastActivityAt, c.ID)
	return err
}

func (r *ConversationRepository) TouchActivity(id string, at time.Time) error {
	_, err := r.DB.Exec(`UPDATE conversations SET last_activity_at=$1 WHERE id=$2`, at, id)
	return err
}

func marshalConversationState(c *model.Conversation) ([]byte, []byte, []byte, error) {
	counter, err := json.Marshal(c.Counter)
	if err != nil {
		return nil, nil, nil, err
	}
	leadScore, err := json.Marshal(c.LeadScore)
	if err != nil {
		return nil, nil, nil, err
	}
	milestone, err := json.Marshal(c.Milestone)
	if err != nil {
		return nil, nil, nil, err
	}
	return counter, leadScore, milestone, nil
}

var _ ConversationRepositoryInterface = (*ConversationRepository)(nil)
