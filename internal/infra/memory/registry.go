package memory

import (
	"sort"
	"sync"

	"trivia-engine/internal/engine"
)

// Registry is an in-memory implementation of app.SessionRegistry.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*engine.Machine
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*engine.Machine),
	}
}

func (r *Registry) Put(engineID string, m *engine.Machine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[engineID] = m
}

func (r *Registry) Get(engineID string) (*engine.Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.sessions[engineID]
	return m, ok
}

func (r *Registry) Delete(engineID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, engineID)
}

// List returns the tracked engine ids in a stable order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
