package realtime

import "sync"

// ConnectionRegistry tracks how many live connections each user currently has.
// A user with several tabs or devices owns several connections; presence
// transitions key off the 0→1 and 1→0 count changes reported here.
//
// The registry is purely in-memory and holds no business logic. Handlers run
// on arbitrary goroutines, so every mutation is mutex-guarded. It is created
// at process start and injected; there is no package-level instance.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{}
}

// NewConnectionRegistry returns an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{conns: make(map[string]map[string]struct{})}
}

// Register records a new connection for the user and returns the user's new
// connection count. Registering the same connection twice is a no-op.
func (r *ConnectionRegistry) Register(userID, connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	set[connID] = struct{}{}
	return len(set)
}

// Deregister removes a connection for the user and returns the new count,
// floored at zero. Unknown connections are ignored.
func (r *ConnectionRegistry) Deregister(userID, connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return 0
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, userID)
		return 0
	}
	return len(set)
}

// IsOnline reports whether the user has at least one open connection.
func (r *ConnectionRegistry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// CountFor returns the user's current connection count.
func (r *ConnectionRegistry) CountFor(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}

// OnlineUsers returns the IDs of every user with at least one open connection.
// Used by the presence idle sweep.
func (r *ConnectionRegistry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns))
	for userID := range r.conns {
		out = append(out, userID)
	}
	return out
}
