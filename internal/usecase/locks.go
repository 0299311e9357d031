package usecase

import (
	"sync"
)

// listingLocks serializes bid placement, cancellation and finalization per
// listing id inside this process. Bids on different listings proceed in
// parallel. Cross-process safety comes from the status compare-and-set in
// the listing store, not from this lock.
type listingLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newListingLocks() *listingLocks {
	return &listingLocks{locks: make(map[string]*lockEntry)}
}

// Lock acquires the lock for the listing id and returns its unlock func.
func (l *listingLocks) Lock(id string) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &lockEntry{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
