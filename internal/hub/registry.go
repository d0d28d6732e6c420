package hub

import (
	"sort"
	"sync"

	"github.com/nfrund/huddle/internal/protocol"
)

// Conn is a live client transport as seen by the hub.
type Conn interface {
	// ID is unique per transport handshake.
	ID() string
	// UserID is the handshake identity. It may be empty.
	UserID() string
	// Send queues a frame without blocking. It reports false when the frame
	// was dropped.
	Send(frame protocol.Frame) bool
}

// Registry tracks every open connection and the live connections per user.
// A user is online iff they have at least one registered connection.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Conn
	byUser map[string]map[string]Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]Conn),
		byUser: make(map[string]map[string]Conn),
	}
}

// Register adds conn. It reports whether its user just went from zero to one
// connection. Registering an id twice is a no-op.
func (r *Registry) Register(conn Conn) (wentOnline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	if _, exists := r.conns[id]; exists {
		return false
	}
	r.conns[id] = conn

	userID := conn.UserID()
	if userID == "" {
		return false
	}
	userConns, ok := r.byUser[userID]
	if !ok {
		userConns = make(map[string]Conn)
		r.byUser[userID] = userConns
	}
	userConns[id] = conn
	return len(userConns) == 1
}

// Unregister removes a connection and returns it, reporting whether its user
// just dropped to zero connections. Unknown ids are a no-op returning nil.
func (r *Registry) Unregister(connID string) (conn Conn, wentOffline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	delete(r.conns, connID)

	userID := conn.UserID()
	if userID == "" {
		return conn, false
	}
	userConns := r.byUser[userID]
	delete(userConns, connID)
	if len(userConns) > 0 {
		return conn, false
	}
	delete(r.byUser, userID)
	return conn, true
}

// Get returns a registered connection.
func (r *Registry) Get(connID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

// ConnsForUser returns the user's live connections.
func (r *Registry) ConnsForUser(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	return conns
}

// ConnectionCount returns the number of live connections for a user.
func (r *Registry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// IsOnline reports whether the user has a live connection on this instance.
func (r *Registry) IsOnline(userID string) bool {
	return r.ConnectionCount(userID) > 0
}

// OnlineUsers returns the sorted ids of users with a live connection.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
