package session

import (
	"testing"
	"time"
)

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newCache(2)
	now := time.Now()
	c.put(newSession("a", now), []byte("a1"))
	c.put(newSession("b", now), []byte("b1"))
	if _, ok := c.get("a", []byte("a1")); !ok {
		t.Fatalf("a should be cached")
	}
	c.put(newSession("c", now), []byte("c1"))

	if _, ok := c.get("b", []byte("b1")); ok {
		t.Fatalf("b should have been evicted")
	}
	if _, ok := c.get("a", []byte("a1")); !ok {
		t.Fatalf("a should survive as most recently used")
	}
	if c.len() != 2 {
		t.Fatalf("len = %d, want 2", c.len())
	}
}

func TestCacheReturnsCopies(t *testing.T) {
	c := newCache(4)
	s := newSession("a", time.Now())
	raw := []byte("a1")
	c.put(s, raw)
	s.URL = "mutated"
	raw[1] = '9'

	got, ok := c.get("a", []byte("a1"))
	if !ok {
		t.Fatalf("entry keyed by the caller's buffer instead of a copy")
	}
	if got.URL != "" {
		t.Fatalf("cache entry aliased caller's session")
	}
	got.UserInteractions = append(got.UserInteractions, Interaction{Type: "x"})
	again, _ := c.get("a", []byte("a1"))
	if len(again.UserInteractions) != 0 {
		t.Fatalf("cache entry aliased returned session")
	}
}

func TestCacheMissesOnChangedRecord(t *testing.T) {
	c := newCache(4)
	c.put(newSession("a", time.Now()), []byte("v1"))

	if _, ok := c.get("a", []byte("v2")); ok {
		t.Fatalf("get() hit for a record rewritten elsewhere")
	}
	if c.len() != 0 {
		t.Fatalf("stale entry kept, len = %d", c.len())
	}
}

func TestCacheDisabled(t *testing.T) {
	c := newCache(0)
	c.put(newSession("a", time.Now()), []byte("a1"))
	if _, ok := c.get("a", []byte("a1")); ok {
		t.Fatalf("zero-size cache should not store entries")
	}
}
