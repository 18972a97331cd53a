// Package batcher groups rapid-fire inbound messages per conversation into
// one unit of work. Windows are fixed-length from the first message: appends
// never extend the deadline, which bounds worst-case reply latency.
package batcher

import (
	"sync"
	"time"

	"github.com/convoreach/convoreach-backend/internal/model"
)

// FlushFunc receives a complete batch when its window expires.
type FlushFunc func(conversationID string, batch []*model.Message)

type window struct {
	messages  []*model.Message
	expiresAt time.Time
	timer     *time.Timer
}

// Batcher keys windows by conversation id. The map is the only shared
// in-process state of the pipeline; everything durable lives in the store and
// the reconciliation sweep covers anything lost on restart.
type Batcher struct {
	mu       sync.Mutex
	windows  map[string]*window
	duration time.Duration
	flush    FlushFunc
}

const DefaultWindow = 5 * time.Second

func New(duration time.Duration, flush FlushFunc) *Batcher {
	if duration <= 0 {
		duration = DefaultWindow
	}
	return &Batcher{
		windows:  make(map[string]*window),
		duration: duration,
		flush:    flush,
	}
}

// Notify opens a window on the first message of a burst and appends to it
// afterwards. The flush fires on the expiry goroutine of the first message.
func (b *Batcher) Notify(conversationID string, msg *model.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if w, ok := b.windows[conversationID]; ok {
		w.messages = append(w.messages, msg)
		return
	}

	w := &window{
		messages:  []*model.Message{msg},
		expiresAt: time.Now().Add(b.duration),
	}
	w.timer = time.AfterFunc(b.duration, func() { b.expire(conversationID) })
	b.windows[conversationID] = w
}

func (b *Batcher) expire(conversationID string) {
	b.mu.Lock()
	w := b.windows[conversationID]
	delete(b.windows, conversationID)
	b.mu.Unlock()

	if w != nil && len(w.messages) > 0 {
		b.flush(conversationID, w.messages)
	}
}

// Covers reports whether a live window exists for the conversation; the
// reconciliation sweep uses it to avoid double-feeding messages that a timer
// is about to flush.
func (b *Batcher) Covers(conversationID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.windows[conversationID]
	return ok
}

// Open returns the number of live windows.
func (b *Batcher) Open() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.windows)
}

// Stop cancels all timers without flushing. Pending messages stay unprocessed
// in the store and the sweep picks them up after restart.
func (b *Batcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, w := range b.windows {
		w.timer.Stop()
		delete(b.windows, id)
	}
}
