package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nfrund/huddle/internal/protocol"
	"github.com/nfrund/huddle/internal/pubsub"
	"github.com/nfrund/huddle/internal/retry"
)

// DefaultTypingTimeout is how long a typing indicator lives without a refresh.
const DefaultTypingTimeout = 3 * time.Second

type typingKey struct {
	chatID string
	userID string
}

type typingEntry struct {
	username string
	timer    *clock.Timer
}

// Typing tracks who is typing where. There is at most one entry per
// (chat, user); each refresh pushes its expiry out by the timeout. Start is
// broadcast when an entry is created and stop when it expires.
type Typing struct {
	mu      sync.Mutex
	entries map[typingKey]*typingEntry

	clock     clock.Clock
	timeout   time.Duration
	publisher pubsub.Publisher
	sub       pubsub.Subscriber
	rooms     RoomDeliverer
	backoff   *retry.Backoff
	logger    *slog.Logger
}

// TypingOption configures a Typing tracker.
type TypingOption func(*Typing)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) TypingOption {
	return func(t *Typing) { t.clock = c }
}

// WithTimeout sets the typing expiry. Non-positive values keep the default.
func WithTimeout(d time.Duration) TypingOption {
	return func(t *Typing) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// NewTyping creates a typing tracker.
func NewTyping(publisher pubsub.Publisher, sub pubsub.Subscriber, rooms RoomDeliverer, opts ...TypingOption) *Typing {
	t := &Typing{
		entries:   make(map[typingKey]*typingEntry),
		clock:     clock.New(),
		timeout:   DefaultTypingTimeout,
		publisher: publisher,
		sub:       sub,
		rooms:     rooms,
		backoff:   retry.NewBackoff(),
		logger:    slog.Default().With("service", "typing"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start subscribes to typing notices from every instance.
func (t *Typing) Start(ctx context.Context) {
	pubsub.SubscribeWithRetry(ctx, t.backoff, pubsub.TopicTyping, func(ctx context.Context) error {
		return t.sub.Subscribe(ctx, pubsub.TopicTyping, t.Handle)
	})
}

// MarkTyping records that userID is typing in chatID and (re)arms the expiry.
func (t *Typing) MarkTyping(ctx context.Context, chatID, userID, username string) {
	key := typingKey{chatID: chatID, userID: userID}

	t.mu.Lock()
	old, refreshed := t.entries[key]
	if refreshed {
		old.timer.Stop()
	}
	entry := &typingEntry{username: username}
	entry.timer = t.clock.AfterFunc(t.timeout, func() { t.expire(key, entry) })
	t.entries[key] = entry
	t.mu.Unlock()

	if refreshed {
		return
	}
	t.publish(ctx, protocol.EventUserTyping, key, username)
}

// IsTyping reports whether userID currently has a live indicator in chatID.
func (t *Typing) IsTyping(chatID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[typingKey{chatID: chatID, userID: userID}]
	return ok
}

// Len returns the number of live indicators.
func (t *Typing) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Stop cancels every pending expiry without broadcasting.
func (t *Typing) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, key)
	}
}

func (t *Typing) expire(key typingKey, entry *typingEntry) {
	t.mu.Lock()
	// A refresh replaced the entry after this timer had already fired.
	if t.entries[key] != entry {
		t.mu.Unlock()
		return
	}
	delete(t.entries, key)
	t.mu.Unlock()

	t.publish(context.Background(), protocol.EventUserStoppedTyping, key, entry.username)
}

func (t *Typing) publish(ctx context.Context, event string, key typingKey, username string) {
	notice := TypingNotice{
		Event: event,
		TypingEvent: protocol.TypingEvent{
			UserID:   key.userID,
			ChatID:   key.chatID,
			Username: username,
		},
	}
	if err := pubsub.Publish(ctx, t.publisher, TopicTypingNotice, key.userID, notice); err != nil {
		t.logger.Error("Failed to publish typing notice", "event", event, "chatID", key.chatID, "userID", key.userID, "error", err)
	}
}

// Handle delivers a typing notice to the chat's room, excluding the typer.
func (t *Typing) Handle(ctx context.Context, msg pubsub.Message) error {
	notice, err := pubsub.Decode[TypingNotice](msg)
	if err != nil {
		return err
	}
	if notice.Event != protocol.EventUserTyping && notice.Event != protocol.EventUserStoppedTyping {
		return fmt.Errorf("unexpected typing event %q", notice.Event)
	}
	frame, err := protocol.NewFrame(notice.Event, notice.TypingEvent)
	if err != nil {
		return err
	}
	t.rooms.DeliverToRoom(notice.ChatID, frame, notice.UserID)
	return nil
}
