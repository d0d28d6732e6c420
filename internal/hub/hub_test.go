package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/huddle/internal/protocol"
)

// fakeConn records every frame sent to it.
type fakeConn struct {
	id     string
	userID string
	full   bool

	mu     sync.Mutex
	frames []protocol.Frame
}

func newFakeConn(id, userID string) *fakeConn {
	return &fakeConn{id: id, userID: userID}
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.userID }

func (c *fakeConn) Send(f protocol.Frame) bool {
	if c.full {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return true
}

func (c *fakeConn) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		if f.Event == event {
			n++
		}
	}
	return n
}

// mockChats is a ChatLister returning fixed chats per user.
type mockChats struct {
	chats map[string][]string
	err   error
}

func (m *mockChats) ListChatsForUser(_ context.Context, userID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.chats[userID], nil
}

func TestRooms_JoinTwiceLeaveOnce(t *testing.T) {
	rooms := NewRooms()
	rooms.Open("c1")

	assert.True(t, rooms.Join("c1", "r1"))
	assert.False(t, rooms.Join("c1", "r1"))
	assert.True(t, rooms.Leave("c1", "r1"))

	assert.False(t, rooms.IsMember("c1", "r1"))
	assert.Empty(t, rooms.MembersOf("r1"))
	assert.False(t, rooms.Leave("c1", "r1"), "leaving a room not joined is a no-op")
}

func TestRooms_MembersOfUnknownRoom(t *testing.T) {
	rooms := NewRooms()
	members := rooms.MembersOf("nonexistent")
	assert.NotNil(t, members)
	assert.Empty(t, members)
}

func TestRooms_DropConnection(t *testing.T) {
	rooms := NewRooms()
	rooms.Open("c1")
	rooms.Open("c2")
	rooms.Join("c1", "r1")
	rooms.Join("c1", "r2")
	rooms.Join("c2", "r1")

	dropped := rooms.DropConnection("c1")
	assert.ElementsMatch(t, []string{"r1", "r2"}, dropped)
	assert.Equal(t, []string{"c2"}, rooms.MembersOf("r1"))
	assert.Empty(t, rooms.MembersOf("r2"))
	assert.Empty(t, rooms.RoomsOf("c1"))

	assert.False(t, rooms.Join("c1", "r1"), "dropped connection cannot rejoin")
	assert.Nil(t, rooms.DropConnection("c1"))
}

func TestRegistry_PresenceTransitions(t *testing.T) {
	reg := NewRegistry()
	tab1 := newFakeConn("t1", "u1")
	tab2 := newFakeConn("t2", "u1")

	assert.True(t, reg.Register(tab1), "0 -> 1 goes online")
	assert.False(t, reg.Register(tab2), "1 -> 2 stays online")
	assert.False(t, reg.Register(tab2), "duplicate register is a no-op")
	assert.Equal(t, 2, reg.ConnectionCount("u1"))

	conn, offline := reg.Unregister("t1")
	assert.Same(t, tab1, conn)
	assert.False(t, offline, "2 -> 1 stays online")

	conn, offline = reg.Unregister("t2")
	assert.Same(t, tab2, conn)
	assert.True(t, offline, "1 -> 0 goes offline")

	conn, offline = reg.Unregister("t2")
	assert.Nil(t, conn)
	assert.False(t, offline, "double unregister is a no-op")
	assert.False(t, reg.IsOnline("u1"))
}

func TestRegistry_CountInvariant(t *testing.T) {
	// Any interleaving of registers and unregisters for one user alternates
	// online/offline events and ends online iff live connections remain.
	ops := []struct {
		register bool
		connID   string
	}{
		{true, "a"}, {true, "b"}, {false, "a"}, {false, "a"}, {true, "c"},
		{false, "b"}, {false, "c"}, {false, "c"}, {true, "d"},
	}

	reg := NewRegistry()
	live := map[string]bool{}
	var events []string
	for _, op := range ops {
		if op.register {
			if reg.Register(newFakeConn(op.connID, "u1")) {
				events = append(events, "online")
			}
			live[op.connID] = true
		} else {
			if _, off := reg.Unregister(op.connID); off {
				events = append(events, "offline")
			}
			delete(live, op.connID)
		}
		assert.Equal(t, len(live), reg.ConnectionCount("u1"))
	}

	for i := 1; i < len(events); i++ {
		assert.NotEqual(t, events[i-1], events[i], "events must alternate")
	}
	assert.Equal(t, []string{"online", "offline", "online"}, events)
	assert.Equal(t, len(live) > 0, reg.IsOnline("u1"))
}

func TestRegistry_AnonymousConnection(t *testing.T) {
	reg := NewRegistry()
	assert.False(t, reg.Register(newFakeConn("anon", "")))
	assert.Empty(t, reg.OnlineUsers())
	assert.Equal(t, 1, reg.Len())

	conn, offline := reg.Unregister("anon")
	assert.NotNil(t, conn)
	assert.False(t, offline)
}

func TestHub_DeliverToRoomOncePerConnection(t *testing.T) {
	h := New(&mockChats{})
	u1 := newFakeConn("c1", "u1")
	u2 := newFakeConn("c2", "u2")
	outsider := newFakeConn("c3", "u3")
	for _, c := range []*fakeConn{u1, u2, outsider} {
		h.Connect(c)
	}
	h.Join("c1", "room")
	h.Join("c1", "room")
	h.Join("c2", "room")

	n := h.DeliverToRoom("room", protocol.Frame{Event: protocol.EventChatMessage}, "")
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, u1.count(protocol.EventChatMessage))
	assert.Equal(t, 1, u2.count(protocol.EventChatMessage))
	assert.Equal(t, 0, outsider.count(protocol.EventChatMessage))
}

func TestHub_DeliverToRoomExcludesUser(t *testing.T) {
	h := New(&mockChats{})
	self := newFakeConn("c1", "u1")
	selfTab := newFakeConn("c2", "u1")
	other := newFakeConn("c3", "u2")
	for _, c := range []*fakeConn{self, selfTab, other} {
		h.Connect(c)
		h.Join(c.ID(), "room")
	}

	n := h.DeliverToRoom("room", protocol.Frame{Event: protocol.EventUserTyping}, "u1")
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, self.count(protocol.EventUserTyping))
	assert.Equal(t, 0, selfTab.count(protocol.EventUserTyping))
	assert.Equal(t, 1, other.count(protocol.EventUserTyping))
}

func TestHub_DeliverSkipsFullOutbox(t *testing.T) {
	h := New(&mockChats{})
	slow := newFakeConn("c1", "u1")
	slow.full = true
	h.Connect(slow)
	h.Join("c1", "room")

	assert.Equal(t, 0, h.DeliverToRoom("room", protocol.Frame{Event: protocol.EventChatMessage}, ""))
	assert.Equal(t, 0, h.DeliverToRoom("unknown", protocol.Frame{Event: protocol.EventChatMessage}, ""))
}

func TestHub_AutoJoin(t *testing.T) {
	chats := &mockChats{chats: map[string][]string{"u1": {"C1", "C2"}}}
	h := New(chats)
	h.Connect(newFakeConn("c1", "u1"))

	joined, err := h.AutoJoin(context.Background(), "c1", "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"C1", "C2"}, joined)
	assert.ElementsMatch(t, []string{"C1", "C2"}, h.Rooms().RoomsOf("c1"))
}

func TestHub_AutoJoinStoreFailureKeepsConnection(t *testing.T) {
	h := New(&mockChats{err: errors.New("store down")})
	h.Connect(newFakeConn("c1", "u1"))

	joined, err := h.AutoJoin(context.Background(), "c1", "u1")
	assert.Error(t, err)
	assert.Empty(t, joined)

	_, registered := h.Registry().Get("c1")
	assert.True(t, registered)
	assert.Empty(t, h.Rooms().RoomsOf("c1"))
}

func TestHub_AutoJoinAfterDisconnectJoinsNothing(t *testing.T) {
	chats := &mockChats{chats: map[string][]string{"u1": {"C1"}}}
	h := New(chats)
	h.Connect(newFakeConn("c1", "u1"))
	h.Disconnect("c1")

	joined, err := h.AutoJoin(context.Background(), "c1", "u1")
	require.NoError(t, err)
	assert.Empty(t, joined)
	assert.Empty(t, h.Rooms().MembersOf("C1"))
}

func TestHub_TwoTabsScenario(t *testing.T) {
	h := New(&mockChats{})

	assert.True(t, h.Connect(newFakeConn("tab1", "u1")), "first tab brings user online")
	assert.False(t, h.Connect(newFakeConn("tab2", "u1")), "second tab emits nothing")

	_, offline := h.Disconnect("tab1")
	assert.False(t, offline, "closing first tab emits nothing")

	userID, offline := h.Disconnect("tab2")
	assert.Equal(t, "u1", userID)
	assert.True(t, offline, "closing last tab takes user offline")

	_, offline = h.Disconnect("tab2")
	assert.False(t, offline, "repeated disconnect is a no-op")
}

func TestHub_ConcurrentJoinLeave(t *testing.T) {
	h := New(&mockChats{})
	const conns = 50
	for i := 0; i < conns; i++ {
		h.Connect(newFakeConn(fmt.Sprintf("c%d", i), "u"))
	}

	var wg sync.WaitGroup
	for i := 0; i < conns; i++ {
		id := fmt.Sprintf("c%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Join(id, "room")
			h.Join(id, "room")
			h.Leave(id, "room")
			h.Join(id, "room")
		}()
	}
	wg.Wait()

	assert.Len(t, h.Rooms().MembersOf("room"), conns)
}
