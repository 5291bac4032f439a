package signal

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages the named collection of scorers selectable at runtime.
// It is safe for concurrent use.
type Registry struct {
	scorers map[string]Scorer
	mu      sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		scorers: make(map[string]Scorer),
	}
}

// DefaultRegistry returns a Registry preloaded with the three built-in
// scorers: momentum (default), quant, and institutional.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewWeightedScorer(MomentumProfile()))
	r.Register(NewQuantScorer())
	r.Register(NewInstitutionalScorer(DefaultGateConfig()))
	return r
}

// Register adds a scorer under its own name, replacing any previous entry.
func (r *Registry) Register(s Scorer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scorers[s.Name()] = s
}

// Get retrieves a scorer by name. It returns an error when the name is not
// registered.
func (r *Registry) Get(name string) (Scorer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scorers[name]
	if !ok {
		return nil, fmt.Errorf("scorer %q: not registered", name)
	}
	return s, nil
}

// List returns the names of all registered scorers in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.scorers))
	for n := range r.scorers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
