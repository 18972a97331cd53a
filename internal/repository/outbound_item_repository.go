package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/convoreach/convoreach-backend/internal/model"
)

type OutboundItemRepositoryInterface interface {
	Create(item *model.OutboundItem) error
	GetByID(id string) (*model.OutboundItem, error)
	HasInFlight(conversationID string) (bool, error)
	InFlightConversationIDs() (map[string]bool, error)
	ListReady(now time.Time, limit int) ([]*model.OutboundItem, error)
	Claim(id string) (bool, error)
	Update(item *model.OutboundItem) error
	ReclaimStuck(cutoff time.Time) (int64, error)
	CancelExpired(now time.Time) (int64, error)
	Reset(id string) (bool, error)
	Stats() (map[string]int, error)
}

type OutboundItemRepository struct {
	DB *sql.DB
}

const outboundColumns = `id, conversation_id, message_id, priority, status, attempts, max_attempts,
		scheduled_for, next_attempt_at, expires_at, error_history, created_at, updated_at`

func (r *OutboundItemRepository) Create(item *model.OutboundItem) error {
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	if item.ScheduledFor.IsZero() {
		item.ScheduledFor = now
	}
	history, err := marshalHistory(item.ErrorHistory)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO outbound_items
        (id, conversation_id, message_id, priority, status, attempts, max_attempts,
         scheduled_for, next_attempt_at, expires_at, error_history, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `
	_, err = r.DB.Exec(query, item.ID, item.ConversationID, item.MessageID, item.Priority,
		item.Status, item.Attempts, item.MaxAttempts, item.ScheduledFor,
		item.NextAttemptAt, item.ExpiresAt, history, item.CreatedAt, item.UpdatedAt)
	return err
}

func (r *OutboundItemRepository) GetByID(id string) (*model.OutboundItem, error) {
	row := r.DB.QueryRow(`SELECT `+outboundColumns+` FROM outbound_items WHERE id=$1`, id)
	item, err := scanOutboundItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

func (r *OutboundItemRepository) HasInFlight(conversationID string) (bool, error) {
	var count int
	query := `
        SELECT COUNT(*) FROM outbound_items
        WHERE conversation_id=$1 AND status IN ('pending', 'processing')
    `
	if err := r.DB.QueryRow(query, conversationID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// InFlightConversationIDs lets the reconciliation sweep skip conversations
// that are already past the rule engine stage.
func (r *OutboundItemRepository) InFlightConversationIDs() (map[string]bool, error) {
	rows, err := r.DB.Query(`
        SELECT DISTINCT conversation_id FROM outbound_items
        WHERE status IN ('pending', 'processing')
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// ListReady selects deliverable items: pending, due, and past any backoff.
func (r *OutboundItemRepository) ListReady(now time.Time, limit int) ([]*model.OutboundItem, error) {
	query := `
        SELECT ` + outboundColumns + ` FROM outbound_items
        WHERE status='pending'
          AND scheduled_for <= $1
          AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
        ORDER BY priority DESC, scheduled_for ASC
        LIMIT $2
    `
	rows, err := r.DB.Query(query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*model.OutboundItem{}
	for rows.Next() {
		item, err := scanOutboundItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Claim flips pending -> processing. Returns false when another worker (or a
// duplicate AMQP delivery) got there first, resolving the benign enqueue race
// idempotently.
func (r *OutboundItemRepository) Claim(id string) (bool, error) {
	res, err := r.DB.Exec(`
        UPDATE outbound_items SET status='processing', updated_at=NOW()
        WHERE id=$1 AND status='pending'
    `, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *OutboundItemRepository) Update(item *model.OutboundItem) error {
	item.UpdatedAt = time.Now()
	history, err := marshalHistory(item.ErrorHistory)
	if err != nil {
		return err
	}
	query := `
        UPDATE outbound_items
        SET status=$1, attempts=$2, next_attempt_at=$3, error_history=$4, updated_at=$5
        WHERE id=$6
    `
	_, err = r.DB.Exec(query, item.Status, item.Attempts, item.NextAttemptAt, history, item.UpdatedAt, item.ID)
	return err
}

// ReclaimStuck resets items stranded in processing (crashed worker) back to
// pending so the next pass retries them.
func (r *OutboundItemRepository) ReclaimStuck(cutoff time.Time) (int64, error) {
	res, err := r.DB.Exec(`
        UPDATE outbound_items SET status='pending', updated_at=NOW()
        WHERE status='processing' AND updated_at < $1
    `, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *OutboundItemRepository) CancelExpired(now time.Time) (int64, error) {
	res, err := r.DB.Exec(`
        UPDATE outbound_items SET status='cancelled', updated_at=NOW()
        WHERE status='pending' AND expires_at IS NOT NULL AND expires_at < $1
    `, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Reset is the operator escape hatch: a failed item goes back to pending with
// its backoff cleared, so the next worker pass retries it immediately.
func (r *OutboundItemRepository) Reset(id string) (bool, error) {
	res, err := r.DB.Exec(`
        UPDATE outbound_items SET status='pending', next_attempt_at=NULL, updated_at=NOW()
        WHERE id=$1 AND status='failed'
    `, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *OutboundItemRepository) Stats() (map[string]int, error) {
	rows, err := r.DB.Query(`SELECT status, COUNT(*) FROM outbound_items GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"pending": 0, "processing": 0, "sent": 0, "failed": 0, "cancelled": 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOutboundItem(row rowScanner) (*model.OutboundItem, error) {
	var item model.OutboundItem
	var history []byte
	err := row.Scan(
		&item.ID, &item.ConversationID, &item.MessageID, &item.Priority, &item.Status,
		&item.Attempts, &item.MaxAttempts, &item.ScheduledFor, &item.NextAttemptAt,
		&item.ExpiresAt, &history, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &item.ErrorHistory); err != nil {
			return nil, err
		}
	}
	return &item, nil
}

func marshalHistory(history []model.SendError) ([]byte, error) {
	if history == nil {
		history = []model.SendError{}
	}
	return json.Marshal(history)
}

var _ OutboundItemRepositoryInterface = (*OutboundItemRepository)(nil)
