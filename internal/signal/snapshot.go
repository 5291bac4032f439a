package signal

import (
	"sort"
	"sync/atomic"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// Snapshot is the single-writer handoff between the signal loop and the
// execution loop: one atomically replaced latest signal per asset. Readers
// always observe a complete signal, never a partial write, and never a
// backlog; superseded values are simply gone.
type Snapshot struct {
	byAsset map[string]*atomic.Pointer[domain.Signal]
}

// NewSnapshot creates a Snapshot for a fixed asset set. Publishing an asset
// outside the set is a silent no-op; the asset universe is decided at wiring
// time, not at runtime.
func NewSnapshot(assets []string) *Snapshot {
	m := make(map[string]*atomic.Pointer[domain.Signal], len(assets))
	for _, asset := range assets {
		m[asset] = &atomic.Pointer[domain.Signal]{}
	}
	return &Snapshot{byAsset: m}
}

// Publish atomically replaces the latest signal for its asset.
func (s *Snapshot) Publish(sig domain.Signal) {
	ptr, ok := s.byAsset[sig.Asset]
	if !ok {
		return
	}
	ptr.Store(&sig)
}

// Latest returns the most recently published signal for the asset, if any.
func (s *Snapshot) Latest(asset string) (domain.Signal, bool) {
	ptr, ok := s.byAsset[asset]
	if !ok {
		return domain.Signal{}, false
	}
	sig := ptr.Load()
	if sig == nil {
		return domain.Signal{}, false
	}
	return *sig, true
}

// Assets returns the fixed asset universe the snapshot was built for,
// sorted.
func (s *Snapshot) Assets() []string {
	out := make([]string, 0, len(s.byAsset))
	for asset := range s.byAsset {
		out = append(out, asset)
	}
	sort.Strings(out)
	return out
}
