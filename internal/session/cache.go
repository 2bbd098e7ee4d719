package session

import (
	"bytes"
	"container/list"
	"sync"
)

// cache is a bounded LRU of decoded sessions keyed by the exact record they
// were decoded from. A hit requires the caller to present the bytes it just
// read from the store, so an entry never outlives the persisted record.
type cache struct {
	mu      sync.Mutex
	limit   int
	order   *list.List
	entries map[string]*list.Element
}

type cacheEntry struct {
	tabID   string
	raw     []byte
	session *Session
}

func newCache(limit int) *cache {
	return &cache{
		limit:   limit,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// get returns a copy of the cached session when raw matches the record it was
// decoded from. A stale entry is dropped.
func (c *cache) get(tabID string, raw []byte) (*Session, bool) {
	if c.limit <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[tabID]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if !bytes.Equal(entry.raw, raw) {
		c.order.Remove(el)
		delete(c.entries, tabID)
		return nil, false
	}
	c.order.MoveToFront(el)
	return clone(entry.session), true
}

func (c *cache) put(s *Session, raw []byte) {
	if c.limit <= 0 || s == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := &cacheEntry{tabID: s.TabID, raw: bytes.Clone(raw), session: clone(s)}
	if el, ok := c.entries[s.TabID]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return
	}
	c.entries[s.TabID] = c.order.PushFront(entry)
	for c.order.Len() > c.limit {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).tabID)
	}
}

func (c *cache) remove(tabID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[tabID]; ok {
		c.order.Remove(el)
		delete(c.entries, tabID)
	}
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
