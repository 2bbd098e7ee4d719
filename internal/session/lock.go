package session

import "sync"

// tabLocks hands out one mutex per tab id and forgets it once unused.
type tabLocks struct {
	mu    sync.Mutex
	locks map[string]*tabLock
}

type tabLock struct {
	mu   sync.Mutex
	refs int
}

func newTabLocks() *tabLocks {
	return &tabLocks{locks: make(map[string]*tabLock)}
}

// lock blocks until tabID is free and returns the matching unlock.
func (l *tabLocks) lock(tabID string) func() {
	l.mu.Lock()
	tl, ok := l.locks[tabID]
	if !ok {
		tl = &tabLock{}
		l.locks[tabID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, tabID)
		}
		l.mu.Unlock()
	}
}
