package auction

import "sync"

// lockTable provides mutual exclusion per registry key. Operations on
// distinct auctions proceed concurrently; two operations on the same key
// serialise so every precondition-check-then-mutate sequence is a single
// critical section.
type lockTable struct {
	mu      sync.Mutex
	entries map[[32]byte]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the per-key mutex and returns the matching release function.
func (t *lockTable) lock(id [32]byte) func() {
	t.mu.Lock()
	if t.entries == nil {
		t.entries = make(map[[32]byte]*lockEntry)
	}
	entry, ok := t.entries[id]
	if !ok {
		entry = &lockEntry{}
		t.entries[id] = entry
	}
	entry.refs++
	t.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		t.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(t.entries, id)
		}
		t.mu.Unlock()
	}
}
