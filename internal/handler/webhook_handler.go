// internal/handler/webhook_handler.go
package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/convoreach/convoreach-backend/internal/batcher"
	"github.com/convoreach/convoreach-backend/internal/ingest"
	"github.com/convoreach/convoreach-backend/internal/model"
)

// WebhookHandler receives channel callbacks and feeds the pipeline. Webhooks
// are acknowledged with 200 even when persistence fails: ingestion is
// idempotent and providers redeliver, so refusing the delivery only delays it.
type WebhookHandler struct {
	Ingestor *ingest.Ingestor
	Batcher  *batcher.Batcher
}

type instagramWebhook struct {
	Entry []struct {
		ID        string `json:"id"` // channel account id
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Timestamp int64 `json:"timestamp"` // milliseconds
			Message   struct {
				MID  string `json:"mid"`
				Text string `json:"text"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

func (h *WebhookHandler) InstagramWebhook(w http.ResponseWriter, r *http.Request) {
	var payload instagramWebhook
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	accepted := 0
	for _, entry := range payload.Entry {
		for _, m := range entry.Messaging {
			if m.Message.MID == "" {
				continue
			}
			ev := ingest.InboundEvent{
				Channel:          model.ChannelInstagram,
				ChannelAccountID: entry.ID,
				ExternalID:       m.Message.MID,
				ContactID:        m.Sender.ID,
				ContactRef:       m.Sender.ID,
				Text:             m.Message.Text,
				ReceivedAt:       time.UnixMilli(m.Timestamp),
			}
			accepted += h.ingestEvent(ev)
		}
	}
	writeJSON(w, map[string]interface{}{"accepted": accepted})
}

type gmailWebhook struct {
	EmailAddress string `json:"emailAddress"` // channel account
	Messages     []struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
		From     string `json:"from"`
		Snippet  string `json:"snippet"`
	} `json:"messages"`
}

func (h *WebhookHandler) GmailWebhook(w http.ResponseWriter, r *http.Request) {
	var payload gmailWebhook
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	accepted := 0
	for _, m := range payload.Messages {
		if m.ID == "" {
			continue
		}
		ev := ingest.InboundEvent{
			Channel:          model.ChannelGmail,
			ChannelAccountID: payload.EmailAddress,
			ExternalID:       m.ID,
			ContactID:        m.From,
			ContactRef:       m.From + "|" + m.ThreadID,
			Text:             m.Snippet,
			ReceivedAt:       time.Now(),
		}
		accepted += h.ingestEvent(ev)
	}
	writeJSON(w, map[string]interface{}{"accepted": accepted})
}

func (h *WebhookHandler) ingestEvent(ev ingest.InboundEvent) int {
	msg, isNew, err := h.Ingestor.Ingest(ev)
	if err != nil {
		// Still acknowledged upstream; redelivery is safe.
		log.Printf("webhook: ingest failed (external_id=%s): %v", ev.ExternalID, err)
		return 0
	}
	if !isNew || msg == nil {
		return 0
	}
	h.Batcher.Notify(msg.ConversationID, msg)
	return 1
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
