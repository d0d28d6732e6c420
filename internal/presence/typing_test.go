package presence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/huddle/internal/protocol"
	"github.com/nfrund/huddle/internal/pubsub"
)

func newTestTyping(t *testing.T) (*Typing, *clock.Mock, *recordingRooms) {
	t.Helper()
	bus := newLoopback()
	rooms := &recordingRooms{}
	mock := clock.NewMock()
	typing := NewTyping(bus, bus, rooms, WithClock(mock), WithTimeout(3*time.Second))
	typing.Start(context.Background())
	t.Cleanup(typing.Stop)
	return typing, mock, rooms
}

func TestTyping_StartBroadcastOnce(t *testing.T) {
	typing, _, rooms := newTestTyping(t)
	ctx := context.Background()

	typing.MarkTyping(ctx, "C1", "U1", "alice")
	typing.MarkTyping(ctx, "C1", "U1", "alice")
	typing.MarkTyping(ctx, "C1", "U1", "alice")

	started := rooms.events(protocol.EventUserTyping)
	require.Len(t, started, 1, "refreshes do not rebroadcast")
	assert.Equal(t, "C1", started[0].room)
	assert.Equal(t, "U1", started[0].exclude, "typer is excluded")

	var ev protocol.TypingEvent
	require.NoError(t, json.Unmarshal(started[0].frame.Data, &ev))
	assert.Equal(t, protocol.TypingEvent{UserID: "U1", ChatID: "C1", Username: "alice"}, ev)
	assert.Equal(t, 1, typing.Len())
}

func TestTyping_StopsAfterTimeout(t *testing.T) {
	typing, mock, rooms := newTestTyping(t)

	typing.MarkTyping(context.Background(), "C1", "U1", "alice")
	mock.Add(3 * time.Second)

	require.Eventually(t, func() bool {
		return len(rooms.events(protocol.EventUserStoppedTyping)) == 1
	}, time.Second, 5*time.Millisecond)

	stopped := rooms.events(protocol.EventUserStoppedTyping)[0]
	assert.Equal(t, "C1", stopped.room)
	assert.Equal(t, "U1", stopped.exclude)
	assert.False(t, typing.IsTyping("C1", "U1"))
}

func TestTyping_RefreshExtendsExpiry(t *testing.T) {
	typing, mock, rooms := newTestTyping(t)
	ctx := context.Background()

	// Events at t=0, 1s and 2s with a 3s timeout: one start, one stop at 5s.
	typing.MarkTyping(ctx, "C1", "U1", "alice")
	mock.Add(time.Second)
	typing.MarkTyping(ctx, "C1", "U1", "alice")
	mock.Add(time.Second)
	typing.MarkTyping(ctx, "C1", "U1", "alice")

	mock.Add(2 * time.Second) // t=4s
	assert.True(t, typing.IsTyping("C1", "U1"))
	assert.Empty(t, rooms.events(protocol.EventUserStoppedTyping))

	mock.Add(time.Second) // t=5s
	require.Eventually(t, func() bool {
		return !typing.IsTyping("C1", "U1")
	}, time.Second, 5*time.Millisecond)

	assert.Len(t, rooms.events(protocol.EventUserTyping), 1)
	assert.Len(t, rooms.events(protocol.EventUserStoppedTyping), 1)
}

func TestTyping_IndependentPairs(t *testing.T) {
	typing, mock, rooms := newTestTyping(t)
	ctx := context.Background()

	typing.MarkTyping(ctx, "C1", "U1", "alice")
	typing.MarkTyping(ctx, "C1", "U2", "bob")
	typing.MarkTyping(ctx, "C2", "U1", "alice")
	assert.Equal(t, 3, typing.Len())
	assert.Len(t, rooms.events(protocol.EventUserTyping), 3)

	mock.Add(3 * time.Second)
	require.Eventually(t, func() bool { return typing.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Len(t, rooms.events(protocol.EventUserStoppedTyping), 3)
}

func TestTyping_TypingAgainAfterExpiryRebroadcasts(t *testing.T) {
	typing, mock, rooms := newTestTyping(t)
	ctx := context.Background()

	typing.MarkTyping(ctx, "C1", "U1", "alice")
	mock.Add(3 * time.Second)
	require.Eventually(t, func() bool { return typing.Len() == 0 }, time.Second, 5*time.Millisecond)

	typing.MarkTyping(ctx, "C1", "U1", "alice")
	assert.Len(t, rooms.events(protocol.EventUserTyping), 2)
}

func TestTyping_HandleRejectsForeignEvents(t *testing.T) {
	typing, _, rooms := newTestTyping(t)

	err := typing.Handle(context.Background(), pubsub.Message{
		Topic:   pubsub.TopicTyping,
		Payload: []byte(`{"event":"chat-message","userId":"U1","chatId":"C1"}`),
	})
	assert.Error(t, err)
	assert.Empty(t, rooms.all())
}
