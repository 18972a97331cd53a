// internal/handler/operator_handler.go
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/convoreach/convoreach-backend/internal/repository"
)

// OperatorHandler exposes the human escape hatches: inspect conversations and
// outbound items (with the full error trail) and force a failed item back to
// pending outside the normal backoff schedule.
type OperatorHandler struct {
	Conversations repository.ConversationRepositoryInterface
	Items         repository.OutboundItemRepositoryInterface
}

func (h *OperatorHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, err := h.Conversations.GetByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, conv)
}

func (h *OperatorHandler) GetOutboundItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := h.Items.GetByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if item == nil {
		http.Error(w, "outbound item not found", http.StatusNotFound)
		return
	}
	writeJSON(w, item)
}

func (h *OperatorHandler) ResetOutboundItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reset, err := h.Items.Reset(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !reset {
		http.Error(w, "item is not in failed status", http.StatusConflict)
		return
	}
	writeJSON(w, map[string]string{"id": id, "status": "pending"})
}

func (h *OperatorHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Items.Stats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
