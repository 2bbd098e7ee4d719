package bridge

import (
	"log"
	"sync"
)

// PopupHub fans notifications out to every subscribed popup socket.
type PopupHub struct {
	mu   sync.Mutex
	subs map[uint64]Conn
	next uint64
}

func NewPopupHub() *PopupHub {
	return &PopupHub{subs: make(map[uint64]Conn)}
}

func (h *PopupHub) Subscribe(conn Conn) func() {
	h.mu.Lock()
	h.next++
	id := h.next
	h.subs[id] = conn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *PopupHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Notify writes v to every subscriber and returns how many received it.
// Subscribers that fail a write are closed and dropped.
func (h *PopupHub) Notify(v any) int {
	h.mu.Lock()
	targets := make(map[uint64]Conn, len(h.subs))
	for id, c := range h.subs {
		targets[id] = c
	}
	h.mu.Unlock()

	delivered := 0
	for id, c := range targets {
		if err := c.WriteJSON(v); err != nil {
			log.Printf("popup notify failed: %v", err)
			_ = c.Close()
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			continue
		}
		delivered++
	}
	return delivered
}
