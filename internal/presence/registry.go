// Package presence tracks which users currently hold a live gateway
// connection. The registry is the single shared mutable resource between
// connection handlers, so every operation is atomic under one lock.
package presence

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Registry maps a user id to its active connection id. One connection per
// user: a second connection from the same user overwrites the first.
type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[uuid.UUID]string)}
}

// Register records connID as userID's active connection, replacing any
// previous one.
func (r *Registry) Register(userID uuid.UUID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[userID] = connID
}

// Unregister removes the mapping for userID, but only if connID is still the
// connection on record. A stale disconnect from a superseded connection must
// not knock out the live one, so the check and delete happen under one lock.
// Reports whether the mapping was removed.
func (r *Registry) Unregister(userID uuid.UUID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[userID] != connID {
		return false
	}
	delete(r.conns, userID)
	return true
}

// Resolve returns userID's active connection id, if any.
func (r *Registry) Resolve(userID uuid.UUID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.conns[userID]
	return connID, ok
}

// Snapshot returns the sorted set of currently online user ids.
func (r *Registry) Snapshot() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
