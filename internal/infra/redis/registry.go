package redis

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-engine/internal/engine"
)

// Registry is a Redis-aware implementation of app.SessionRegistry.
// Machines stay in a local map since countdowns and observers are in-process;
// Redis carries a liveness marker per session so other instances and
// operators can see what is running.
type Registry struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*engine.Machine
}

func NewRegistry(client *redis.Client, ttl time.Duration) *Registry {
	return &Registry{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*engine.Machine),
	}
}

func (r *Registry) Put(engineID string, m *engine.Machine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[engineID] = m
	// best-effort liveness marker
	_ = r.client.Set(context.Background(), Key(engineID), "1", r.ttl).Err()
}

// Get returns a live machine and pushes its liveness marker out by ttl, so
// sessions in play outlast the marker's original expiry.
func (r *Registry) Get(engineID string) (*engine.Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.sessions[engineID]
	if ok && r.ttl > 0 {
		_ = r.client.Expire(context.Background(), Key(engineID), r.ttl).Err()
	}
	return m, ok
}

func (r *Registry) Delete(engineID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[engineID]; !ok {
		return
	}
	delete(r.sessions, engineID)
	_ = r.client.Del(context.Background(), Key(engineID)).Err()
}

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

// Key is the liveness marker for an engine session.
func Key(engineID string) string {
	return "trivia:session:" + engineID
}
