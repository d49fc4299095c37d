package events

import (
	"context"
	"sync"

	"github.com/kudwa-ai/kudwa-engine/pkg/models"
)

const clientBuffer = 16

// Hub fans GraphChangeEvents out to in-process listeners such as open
// server-sent event streams. Slow listeners drop events instead of blocking.
type Hub struct {
	mu      sync.Mutex
	clients map[chan GraphChangeEvent]struct{}
	dropped int
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan GraphChangeEvent]struct{})}
}

// Subscribe registers a listener. The returned cancel func must be called to
// release it; the channel is closed afterwards. Calling it again is a no-op.
func (h *Hub) Subscribe() (<-chan GraphChangeEvent, func()) {
	ch := make(chan GraphChangeEvent, clientBuffer)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	}
}

// Close releases every listener, ending open streams.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}

// Broadcast delivers event to every listener with room in its buffer.
func (h *Hub) Broadcast(event GraphChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- event:
		default:
			h.dropped++
		}
	}
}

// Clients returns the number of registered listeners.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many deliveries were skipped because a listener was full.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *Hub) Name() string { return "event_hub" }

// ProposalDecided broadcasts the decision directly. It is registered as a
// review listener when no Redis channel connects the instances.
func (h *Hub) ProposalDecided(_ context.Context, event *models.ReviewEvent) error {
	h.Broadcast(NewGraphChangeEvent(event))
	return nil
}
