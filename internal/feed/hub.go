package feed

import (
	"sync"
	"time"

	"github.com/redalert-desktop/redalert/internal/alerts"
)

// Event is the envelope pushed to WebSocket clients
type Event struct {
	Type   string         `json:"type"`
	Alerts []alerts.Alert `json:"alerts"`
	SentAt time.Time      `json:"sent_at"`
}

// Hub fans alert batches out to connected clients. Every listener has its
// own buffer; a full buffer drops the event for that listener only.
type Hub struct {
	mu        sync.RWMutex
	listeners map[uint64]chan Event
	nextID    uint64
	bufSize   int
	dropped   uint64
}

// NewHub creates a hub. bufSize <= 0 means 32.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 32
	}
	return &Hub{
		listeners: make(map[uint64]chan Event),
		bufSize:   bufSize,
	}
}

// Register adds a listener. Callers must Unregister the id when done.
func (h *Hub) Register() (uint64, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.bufSize)
	h.listeners[id] = ch
	return id, ch
}

// Unregister removes a listener and closes its channel. Unknown ids are ignored.
func (h *Hub) Unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.listeners[id]; ok {
		delete(h.listeners, id)
		close(ch)
	}
}

// Broadcast delivers a batch to every listener without blocking
func (h *Hub) Broadcast(batch []alerts.Alert) {
	if len(batch) == 0 {
		return
	}
	ev := Event{Type: "alerts", Alerts: batch, SentAt: time.Now().UTC()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.listeners {
		select {
		case ch <- ev:
		default:
			h.dropped++
		}
	}
}

// Size returns the number of connected listeners
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Dropped returns how many deliveries were skipped for slow listeners
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
