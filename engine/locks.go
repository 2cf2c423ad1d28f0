package engine

import "sync"

// accountLocks hands out one mutex per account id. Holding the mutex for
// the span of a trade transaction serializes all mutations to that account
// while leaving other accounts fully concurrent. Locks are never removed;
// the per-account footprint is one mutex for the life of the process.
type accountLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{m: make(map[string]*sync.Mutex)}
}

func (l *accountLocks) get(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.m[id]
	if !ok {
		lk = &sync.Mutex{}
		l.m[id] = lk
	}
	return lk
}
