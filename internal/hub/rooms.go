package hub

import (
	"sync"

	"github.com/samber/lo"
)

type set map[string]struct{}

// Rooms is the chat → connection membership relation, held in memory only.
//
// Connections must be opened before they can join a room. DropConnection
// closes them again, so a join racing a disconnect cannot leak membership.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]set // room id -> connection ids
	joined  map[string]set // connection id -> room ids
}

// NewRooms creates an empty membership manager.
func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]set),
		joined:  make(map[string]set),
	}
}

// Open allows connID to join rooms. Opening twice is a no-op.
func (r *Rooms) Open(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.joined[connID]; !ok {
		r.joined[connID] = make(set)
	}
}

// Join adds connID to roomID. It reports whether membership changed; joining
// twice, or joining from a connection that is not open, is a no-op.
func (r *Rooms) Join(connID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms, open := r.joined[connID]
	if !open {
		return false
	}
	if _, already := rooms[roomID]; already {
		return false
	}
	rooms[roomID] = struct{}{}

	m, ok := r.members[roomID]
	if !ok {
		m = make(set)
		r.members[roomID] = m
	}
	m[connID] = struct{}{}
	return true
}

// Leave removes connID from roomID. Leaving a room not joined is a no-op.
func (r *Rooms) Leave(connID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms, ok := r.joined[connID]
	if !ok {
		return false
	}
	if _, member := rooms[roomID]; !member {
		return false
	}
	delete(rooms, roomID)
	r.removeMember(roomID, connID)
	return true
}

// DropConnection removes connID from every room and closes it. It returns
// the rooms it was in.
func (r *Rooms) DropConnection(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms, ok := r.joined[connID]
	if !ok {
		return nil
	}
	delete(r.joined, connID)
	for roomID := range rooms {
		r.removeMember(roomID, connID)
	}
	return lo.Keys(rooms)
}

func (r *Rooms) removeMember(roomID, connID string) {
	m := r.members[roomID]
	delete(m, connID)
	if len(m) == 0 {
		delete(r.members, roomID)
	}
}

// MembersOf returns the connections in roomID. Unknown rooms yield an empty slice.
func (r *Rooms) MembersOf(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.members[roomID])
}

// RoomsOf returns the rooms connID has joined.
func (r *Rooms) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.joined[connID])
}

// IsMember reports whether connID is in roomID.
func (r *Rooms) IsMember(connID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[roomID][connID]
	return ok
}
