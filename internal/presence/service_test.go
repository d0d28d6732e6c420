package presence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/huddle/internal/protocol"
	"github.com/nfrund/huddle/internal/pubsub"
)

// loopback delivers published messages synchronously to subscribers of the
// same topic, standing in for the backbone.
type loopback struct {
	mu        sync.Mutex
	handlers  map[string][]pubsub.Handler
	published []pubsub.Message
	err       error
}

func newLoopback() *loopback {
	return &loopback{handlers: make(map[string][]pubsub.Handler)}
}

func (l *loopback) Publish(ctx context.Context, msg pubsub.Message) error {
	l.mu.Lock()
	if l.err != nil {
		l.mu.Unlock()
		return l.err
	}
	l.published = append(l.published, msg)
	hs := append([]pubsub.Handler(nil), l.handlers[msg.Topic]...)
	l.mu.Unlock()
	for _, h := range hs {
		_ = h(ctx, msg)
	}
	return nil
}

func (l *loopback) Subscribe(_ context.Context, topic string, h pubsub.Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[topic] = append(l.handlers[topic], h)
	return nil
}

func (l *loopback) PSubscribe(context.Context, string, pubsub.Handler) error { return nil }
func (l *loopback) Close() error                                           { return nil }

func (l *loopback) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.published)
}

type delivery struct {
	room    string
	frame   protocol.Frame
	exclude string
}

type recordingRooms struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (r *recordingRooms) DeliverToRoom(roomID string, frame protocol.Frame, excludeUserID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, delivery{roomID, frame, excludeUserID})
	return 1
}

func (r *recordingRooms) all() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.deliveries...)
}

func (r *recordingRooms) events(event string) []delivery {
	var out []delivery
	for _, d := range r.all() {
		if d.frame.Event == event {
			out = append(out, d)
		}
	}
	return out
}

type stubChats struct {
	chats map[string][]string
	err   error
}

func (s stubChats) ListChatsForUser(_ context.Context, userID string) ([]string, error) {
	return s.chats[userID], s.err
}

func TestService_OnlineBroadcastsToUsersChats(t *testing.T) {
	bus := newLoopback()
	rooms := &recordingRooms{}
	svc := NewService(stubChats{chats: map[string][]string{"U1": {"C1", "C2"}}}, bus, bus, rooms)
	svc.Start(context.Background())

	require.NoError(t, svc.MarkOnline(context.Background(), "U1"))

	got := rooms.events(protocol.EventOnlineUser)
	require.Len(t, got, 2)
	for i, room := range []string{"C1", "C2"} {
		assert.Equal(t, room, got[i].room)
		assert.Equal(t, "U1", got[i].exclude, "subject user is excluded")
		var data string
		require.NoError(t, json.Unmarshal(got[i].frame.Data, &data))
		assert.Equal(t, "U1", data)
	}
}

func TestService_OfflineBroadcast(t *testing.T) {
	bus := newLoopback()
	rooms := &recordingRooms{}
	svc := NewService(stubChats{chats: map[string][]string{"U1": {"C1"}}}, bus, bus, rooms)
	svc.Start(context.Background())

	require.NoError(t, svc.MarkOffline(context.Background(), "U1"))

	got := rooms.events(protocol.EventUserOffline)
	require.Len(t, got, 1)
	assert.Equal(t, "C1", got[0].room)
	assert.JSONEq(t, `"U1"`, string(got[0].frame.Data))
}

func TestService_NoChatsNoBroadcast(t *testing.T) {
	bus := newLoopback()
	svc := NewService(stubChats{}, bus, bus, &recordingRooms{})

	require.NoError(t, svc.MarkOnline(context.Background(), "loner"))
	assert.Zero(t, bus.count())
}

func TestService_Errors(t *testing.T) {
	bus := newLoopback()
	svc := NewService(stubChats{err: errors.New("db down")}, bus, bus, &recordingRooms{})
	assert.Error(t, svc.MarkOnline(context.Background(), "U1"))

	bus.err = errors.New("backbone down")
	svc = NewService(stubChats{chats: map[string][]string{"U1": {"C1"}}}, bus, bus, &recordingRooms{})
	assert.Error(t, svc.MarkOffline(context.Background(), "U1"))
}

func TestService_HandleRejectsUnknownStatus(t *testing.T) {
	svc := NewService(stubChats{}, newLoopback(), newLoopback(), &recordingRooms{})

	err := svc.Handle(context.Background(), pubsub.Message{
		Topic:   pubsub.TopicPresence,
		Payload: []byte(`{"userId":"U1","status":"away","chatIds":["C1"]}`),
	})
	assert.Error(t, err)
}

// gatedChats holds the lookup numbered gate until release is closed.
type gatedChats struct {
	chats   []string
	gate    int
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (g *gatedChats) ListChatsForUser(context.Context, string) ([]string, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()
	if n == g.gate {
		close(g.started)
		<-g.release
	}
	return g.chats, nil
}

// connCounter stands in for the hub registry's per-user connection count.
type connCounter struct {
	mu sync.Mutex
	n  int
}

func (c *connCounter) register() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n == 1
}

func (c *connCounter) unregister() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n--
	return c.n == 0
}

func (c *connCounter) online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n > 0
}

func TestService_ReconnectDuringSlowOfflineLookup(t *testing.T) {
	chats := &gatedChats{
		chats:   []string{"C1"},
		gate:    2,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	bus := newLoopback()
	rooms := &recordingRooms{}
	svc := NewService(chats, bus, bus, rooms)
	svc.Start(context.Background())
	ctx := context.Background()
	conns := &connCounter{}

	// Tab 1 connects.
	require.NoError(t, svc.Online(ctx, "U1", conns.register))

	// Tab 1 closes; its offline lookup stalls.
	offlineDone := make(chan error, 1)
	go func() { offlineDone <- svc.Offline(ctx, "U1", conns.unregister) }()
	<-chats.started

	// Tab 2 connects while the offline announcement is still pending.
	onlineDone := make(chan error, 1)
	go func() { onlineDone <- svc.Online(ctx, "U1", conns.register) }()
	require.Never(t, func() bool { return len(onlineDone) > 0 }, 50*time.Millisecond, 5*time.Millisecond,
		"reconnect waits for the pending offline announcement")

	close(chats.release)
	require.NoError(t, <-offlineDone)
	require.NoError(t, <-onlineDone)

	var sequence []string
	for _, d := range rooms.all() {
		sequence = append(sequence, d.frame.Event)
	}
	assert.Equal(t, []string{protocol.EventOnlineUser, protocol.EventUserOffline, protocol.EventOnlineUser}, sequence)
	assert.True(t, conns.online())
}

func TestService_OnlineSkipsAnnouncementWithoutTransition(t *testing.T) {
	bus := newLoopback()
	svc := NewService(stubChats{chats: map[string][]string{"U1": {"C1"}}}, bus, bus, &recordingRooms{})
	conns := &connCounter{}

	require.NoError(t, svc.Online(context.Background(), "U1", conns.register))
	require.NoError(t, svc.Online(context.Background(), "U1", conns.register))
	require.NoError(t, svc.Offline(context.Background(), "U1", conns.unregister))
	assert.Equal(t, 1, bus.count(), "second tab and first close are silent")

	require.NoError(t, svc.Offline(context.Background(), "U1", conns.unregister))
	assert.Equal(t, 2, bus.count())
	assert.Empty(t, svc.users, "per-user locks are released")
}
