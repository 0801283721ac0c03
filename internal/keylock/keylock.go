// Package keylock provides in-process mutual exclusion keyed by entity id.
// Cross-process exclusion is layered on top via the Redis lock manager; this
// guard serializes mutations within a single instance.
package keylock

import "sync"

// KeyedMutex hands out one mutex per key. Unused entries are reclaimed when
// their last holder releases.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty KeyedMutex.
func New() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Lock blocks until the mutex for key is held and returns the unlock
// function. The unlock function must be called exactly once.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
