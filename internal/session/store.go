package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/pagelens/internal/kvstore"
	"github.com/ent0n29/pagelens/internal/reliability"
)

const DefaultRetention = 24 * time.Hour

// Store keeps one persisted record per tab under kvstore.SessionKeyPrefix.
// Read-modify-write cycles on the same tab are serialized; different tabs
// proceed in parallel.
type Store struct {
	kv        kvstore.Store
	cache     *cache
	locks     *tabLocks
	retention time.Duration
	now       func() time.Time

	hookMu  sync.RWMutex
	onEvict func(tabID string)
}

func NewStore(kv kvstore.Store, retention time.Duration, cacheSize int) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		kv:        kv,
		cache:     newCache(cacheSize),
		locks:     newTabLocks(),
		retention: retention,
		now:       time.Now,
	}
}

// SetEvictHook registers a callback invoked for every session removed by Cleanup.
func (s *Store) SetEvictHook(hook func(tabID string)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onEvict = hook
}

func (s *Store) Retention() time.Duration {
	return s.retention
}

// Get returns the session for tabID, creating and persisting a default one
// when none exists.
func (s *Store) Get(ctx context.Context, tabID string) (*Session, error) {
	tabID = strings.TrimSpace(tabID)
	if tabID == "" {
		return nil, ErrInvalidTabID
	}
	unlock := s.locks.lock(tabID)
	defer unlock()

	sess, err := s.loadOrCreate(ctx, tabID)
	if err != nil {
		log.Printf("session load failed tab=%s: %v", tabID, err)
		return newSession(tabID, s.now().UTC()), nil
	}
	return clone(sess), nil
}

// Update shallow-merges patch into the session for tabID and persists it.
func (s *Store) Update(ctx context.Context, tabID string, patch Patch) (*Session, error) {
	return s.mutate(ctx, tabID, func(sess *Session) error {
		return patch.apply(sess)
	})
}

// AppendInteraction records one interaction at the end of userInteractions.
func (s *Store) AppendInteraction(ctx context.Context, tabID string, in Interaction) (*Session, error) {
	in.Type = strings.TrimSpace(in.Type)
	if in.Type == "" {
		return nil, fmt.Errorf("%w: interaction type is required", ErrInvalidPatch)
	}
	return s.mutate(ctx, tabID, func(sess *Session) error {
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		if in.Timestamp.IsZero() {
			in.Timestamp = s.now().UTC()
		}
		sess.UserInteractions = append(sess.UserInteractions, in)
		return nil
	})
}

// Delete removes the session for tabID. Missing sessions are not an error.
func (s *Store) Delete(ctx context.Context, tabID string) error {
	tabID = strings.TrimSpace(tabID)
	if tabID == "" {
		return ErrInvalidTabID
	}
	unlock := s.locks.lock(tabID)
	defer unlock()

	s.cache.remove(tabID)
	if err := s.kv.Delete(ctx, sessionKey(tabID)); err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		return reliability.New(reliability.ClassStorage, fmt.Errorf("delete session: %w", err))
	}
	return nil
}

// List returns every persisted session, most recently updated first.
// Undecodable records are logged and skipped.
func (s *Store) List(ctx context.Context) ([]*Session, error) {
	raw, err := s.kv.List(ctx, kvstore.SessionKeyPrefix)
	if err != nil {
		return nil, reliability.New(reliability.ClassStorage, fmt.Errorf("list sessions: %w", err))
	}
	out := make([]*Session, 0, len(raw))
	for key, value := range raw {
		var sess Session
		if err := json.Unmarshal(value, &sess); err != nil {
			log.Printf("session decode failed key=%s: %v", key, err)
			continue
		}
		out = append(out, &sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].TabID < out[j].TabID
		}
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	return out, nil
}

// Cleanup removes every session whose age since lastUpdated has reached the
// retention window. Sessions touched while the pass runs are kept.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	sessions, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	var evicted []string
	for _, candidate := range sessions {
		if !s.expired(candidate, s.now()) {
			continue
		}
		ok, err := s.removeIfExpired(ctx, candidate.TabID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
			evicted = append(evicted, candidate.TabID)
		}
	}

	s.hookMu.RLock()
	hook := s.onEvict
	s.hookMu.RUnlock()
	if hook != nil {
		for _, tabID := range evicted {
			hook(tabID)
		}
	}
	return removed, nil
}

func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := s.Cleanup(ctx); err != nil {
					log.Printf("session janitor failed: %v", err)
				} else if n > 0 {
					log.Printf("session janitor removed %d sessions", n)
				}
			}
		}
	}()
}

func (s *Store) removeIfExpired(ctx context.Context, tabID string) (bool, error) {
	unlock := s.locks.lock(tabID)
	defer unlock()

	current, err := s.load(ctx, tabID)
	if errors.Is(err, kvstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, reliability.New(reliability.ClassStorage, err)
	}
	if !s.expired(current, s.now()) {
		return false, nil
	}
	if err := s.kv.Delete(ctx, sessionKey(tabID)); err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		return false, reliability.New(reliability.ClassStorage, fmt.Errorf("delete session: %w", err))
	}
	s.cache.remove(tabID)
	return true, nil
}

func (s *Store) expired(sess *Session, now time.Time) bool {
	return now.Sub(sess.LastUpdated) >= s.retention
}

func (s *Store) mutate(ctx context.Context, tabID string, fn func(*Session) error) (*Session, error) {
	tabID = strings.TrimSpace(tabID)
	if tabID == "" {
		return nil, ErrInvalidTabID
	}
	unlock := s.locks.lock(tabID)
	defer unlock()

	sess, err := s.loadOrCreate(ctx, tabID)
	if err != nil {
		return nil, reliability.New(reliability.ClassStorage, err)
	}
	next := clone(sess)
	if err := fn(next); err != nil {
		if errors.Is(err, ErrInvalidPatch) {
			return nil, reliability.New(reliability.ClassInvalidRequest, err)
		}
		return nil, err
	}
	next.LastUpdated = s.nextTimestamp(sess.LastUpdated)
	if err := s.persist(ctx, next); err != nil {
		return nil, err
	}
	return clone(next), nil
}

// nextTimestamp returns the current time, or prev plus one nanosecond when the
// clock has not moved past prev.
func (s *Store) nextTimestamp(prev time.Time) time.Time {
	now := s.now().UTC()
	if !now.After(prev) {
		return prev.Add(time.Nanosecond)
	}
	return now
}

// loadOrCreate must be called with the tab lock held. The persisted record is
// read on every call; the cache only saves decoding an unchanged record.
func (s *Store) loadOrCreate(ctx context.Context, tabID string) (*Session, error) {
	sess, err := s.load(ctx, tabID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, kvstore.ErrNotFound) {
		return nil, err
	}
	sess = newSession(tabID, s.now().UTC())
	if err := s.persist(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// load reads the persisted record. A missing record also drops any cached
// copy. A record that fails to decode is reported as not found so the tab
// starts over with a fresh session.
func (s *Store) load(ctx context.Context, tabID string) (*Session, error) {
	raw, err := s.kv.Get(ctx, sessionKey(tabID))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			s.cache.remove(tabID)
			return nil, kvstore.ErrNotFound
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	if cached, ok := s.cache.get(tabID, raw); ok {
		return cached, nil
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		log.Printf("session decode failed tab=%s: %v", tabID, err)
		return nil, kvstore.ErrNotFound
	}
	sess.TabID = tabID
	if sess.UserInteractions == nil {
		sess.UserInteractions = []Interaction{}
	}
	if sess.Preferences == nil {
		sess.Preferences = map[string]json.RawMessage{}
	}
	s.cache.put(&sess, raw)
	return &sess, nil
}

func (s *Store) persist(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.kv.Set(ctx, sessionKey(sess.TabID), raw); err != nil {
		s.cache.remove(sess.TabID)
		return reliability.New(reliability.ClassStorage, fmt.Errorf("write session: %w", err))
	}
	s.cache.put(sess, raw)
	return nil
}

func sessionKey(tabID string) string {
	return kvstore.SessionKeyPrefix + tabID
}
