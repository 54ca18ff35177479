package runtime

import (
	"chat-relay/contract"
	"sync"
)

// Registry is the single source of truth for "is this user reachable on a live connection".
// At most one connection is kept per user: the last registration wins.
// Callers must not cache a lookup across blocking calls, the mapping may change meanwhile.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]contract.Conn // map user -> live connection
}

func NewRegistry() *Registry {
	return &Registry{connections: make(map[string]contract.Conn)}
}

// Register replaces any existing mapping for userID.
// The superseded connection is not closed here.
func (r *Registry) Register(userID string, conn contract.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[userID] = conn
}

func (r *Registry) Lookup(userID string) (contract.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[userID]
	return conn, ok
}

// Remove is idempotent, removing an absent user is a no-op.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connections, userID)
}

// Release removes userID only while it still maps to conn.
// A socket closing after its user re-registered elsewhere leaves the newer mapping in place.
func (r *Registry) Release(userID string, conn contract.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.connections[userID]
	if !ok || current.ID() != conn.ID() {
		return false
	}
	delete(r.connections, userID)
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
