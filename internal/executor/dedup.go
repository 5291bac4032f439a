package executor

import (
	"sync"
	"time"
)

// Dedup guarantees each signal is decided at most once: the snapshot keeps
// serving the same signal until the engine replaces it, and the poll loop
// must not write a fresh decision row for it every tick. Entries expire
// after a TTL that must cover at least the signal freshness bound. Safe for
// concurrent use.
type Dedup struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time // signal ID -> first seen
}

// NewDedup creates a Dedup with the given entry TTL.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		ttl:  ttl,
		seen: make(map[string]time.Time),
	}
}

// Seen reports whether the signal ID was already recorded within the TTL.
// An unseen or expired ID is recorded on the spot, so the first caller
// claims the signal and every later call answers true.
func (d *Dedup) Seen(signalID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if at, ok := d.seen[signalID]; ok && now.Sub(at) < d.ttl {
		return true
	}
	d.seen[signalID] = now
	return false
}

// Forget releases a claimed signal ID so a later Seen can claim it again.
// The coordinator calls it when deciding failed transiently and no verdict
// was recorded; the signal then gets another chance while still fresh.
func (d *Dedup) Forget(signalID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, signalID)
}

// Cleanup drops expired entries. Call it periodically; Seen alone never
// shrinks the map.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, at := range d.seen {
		if now.Sub(at) >= d.ttl {
			delete(d.seen, id)
		}
	}
}

// Len returns the number of tracked IDs.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
