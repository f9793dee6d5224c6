package flow

import (
	"context"
	"sync"
)

// Locker serializes turns that target the same conversation. The flow
// engine's load→mutate→save sequence for one ticket is a critical section;
// without it two concurrent replies could race the known-fields merge and
// silently drop a supplied value.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// KeyedMutex is the in-process Locker: one mutex per conversation key.
// Entries are kept for the life of the process; the key space is bounded by
// active customers, which is small enough not to matter.
type KeyedMutex struct {
	locks sync.Map
}

// NewKeyedMutex builds an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

// Acquire blocks until the key's mutex is held and returns its release.
func (k *KeyedMutex) Acquire(_ context.Context, key string) (func(), error) {
	entry, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := entry.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock, nil
}
