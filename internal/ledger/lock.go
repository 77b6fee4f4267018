package ledger

import (
	"sync"

	"stockledger/internal/models"
)

// keyedMutex serializes writers per product key. Entries are reference counted
// and dropped once the last holder unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[models.ProductKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[models.ProductKey]*keyLock)}
}

// Lock blocks until the key is free and returns its unlock function.
func (k *keyedMutex) Lock(key models.ProductKey) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
