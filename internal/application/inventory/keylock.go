package inventory

import (
	"sort"
	"sync"
)

// KeyedMutex serializes operations per stock key so that two movements
// on the same key cannot interleave between read and write, while
// movements on different keys proceed concurrently. Entries are
// reference-counted and removed once the last holder unlocks.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLockEntry
}

type keyedLockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLockEntry)}
}

// Lock acquires the lock for one key and returns the unlock function
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedLockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// LockMany acquires locks for several keys in sorted order, which
// prevents deadlock when two transfers touch the same pair of keys in
// opposite directions. Duplicate keys are locked once.
func (k *KeyedMutex) LockMany(keys ...string) func() {
	unique := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			unique = append(unique, key)
		}
	}
	sort.Strings(unique)

	unlocks := make([]func(), 0, len(unique))
	for _, key := range unique {
		unlocks = append(unlocks, k.Lock(key))
	}
	return func() {
		// Release in reverse acquisition order
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
