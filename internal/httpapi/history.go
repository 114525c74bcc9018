package httpapi

import (
	"sync"

	"github.com/you/kick-relay/internal/core"
)

// History is a bounded in-memory ring of recently relayed messages. It
// backs the REST endpoints and doubles as the gateway's message recorder.
type History struct {
	mu    sync.Mutex
	ring  []core.ChatMessage
	next  int
	count int64
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = 200
	}
	return &History{ring: make([]core.ChatMessage, size)}
}

// Append records a relayed message, evicting the oldest when full.
func (h *History) Append(msg core.ChatMessage) {
	h.mu.Lock()
	h.ring[h.next] = msg
	h.next = (h.next + 1) % len(h.ring)
	h.count++
	h.mu.Unlock()
}

// Count reports the total number of messages relayed, including evicted ones.
func (h *History) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Recent returns up to limit retained messages, newest first.
func (h *History) Recent(limit int) []core.ChatMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	retained := int(h.count)
	if retained > len(h.ring) {
		retained = len(h.ring)
	}
	if limit <= 0 || limit > retained {
		limit = retained
	}

	out := make([]core.ChatMessage, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (h.next - i + len(h.ring)) % len(h.ring)
		out = append(out, h.ring[idx])
	}
	return out
}
