// Package presence broadcasts ephemeral user state: online/offline
// transitions and typing indicators. Nothing here is persisted; all state
// lives in memory and crosses instances on the backbone.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nfrund/huddle/internal/protocol"
	"github.com/nfrund/huddle/internal/pubsub"
	"github.com/nfrund/huddle/internal/retry"
)

// RoomDeliverer delivers a frame to the local members of a room.
type RoomDeliverer interface {
	DeliverToRoom(roomID string, frame protocol.Frame, excludeUserID string) int
}

// ChatLister resolves the chats a user belongs to.
type ChatLister interface {
	ListChatsForUser(ctx context.Context, userID string) ([]string, error)
}

// Service publishes online/offline transitions and delivers the ones it
// receives to the affected rooms on this instance.
type Service struct {
	chats     ChatLister
	publisher pubsub.Publisher
	sub       pubsub.Subscriber
	rooms     RoomDeliverer
	backoff   *retry.Backoff
	logger    *slog.Logger

	mu    sync.Mutex
	users map[string]*userLock
}

// userLock orders one user's count changes with their announcements.
type userLock struct {
	sync.Mutex
	refs int
}

// NewService creates a presence service.
func NewService(chats ChatLister, publisher pubsub.Publisher, sub pubsub.Subscriber, rooms RoomDeliverer) *Service {
	return &Service{
		chats:     chats,
		publisher: publisher,
		sub:       sub,
		rooms:     rooms,
		backoff:   retry.NewBackoff(),
		logger:    slog.Default().With("service", "presence"),
		users:     make(map[string]*userLock),
	}
}

// Start subscribes to presence transitions from every instance.
func (s *Service) Start(ctx context.Context) {
	pubsub.SubscribeWithRetry(ctx, s.backoff, pubsub.TopicPresence, func(ctx context.Context) error {
		return s.sub.Subscribe(ctx, pubsub.TopicPresence, s.Handle)
	})
}

// Online runs register while holding userID's presence lock and announces
// the user online if register reports a 0 to 1 transition. Online and
// Offline calls for the same user are serialized, so peers see the
// transitions in the order the registry made them.
func (s *Service) Online(ctx context.Context, userID string, register func() bool) error {
	unlock := s.lockUser(userID)
	defer unlock()
	if !register() {
		return nil
	}
	return s.announce(ctx, userID, StatusOnline)
}

// Offline is the counterpart of Online for unregistering a connection.
func (s *Service) Offline(ctx context.Context, userID string, unregister func() bool) error {
	unlock := s.lockUser(userID)
	defer unlock()
	if !unregister() {
		return nil
	}
	return s.announce(ctx, userID, StatusOffline)
}

func (s *Service) lockUser(userID string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.users[userID]
	if !ok {
		l = &userLock{}
		s.users[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.users, userID)
		}
		s.mu.Unlock()
	}
}

// MarkOnline announces that userID now has at least one live connection.
// Callers invoke it only on the 0 to 1 transition.
func (s *Service) MarkOnline(ctx context.Context, userID string) error {
	return s.announce(ctx, userID, StatusOnline)
}

// MarkOffline announces that userID's last connection closed.
func (s *Service) MarkOffline(ctx context.Context, userID string) error {
	return s.announce(ctx, userID, StatusOffline)
}

func (s *Service) announce(ctx context.Context, userID string, status Status) error {
	chatIDs, err := s.chats.ListChatsForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list chats for %s: %w", userID, err)
	}
	if len(chatIDs) == 0 {
		s.logger.Debug("User has no chats, skipping presence broadcast", "userID", userID, "status", status)
		return nil
	}

	t := Transition{UserID: userID, Status: status, ChatIDs: chatIDs}
	if err := pubsub.Publish(ctx, s.publisher, TopicTransition, userID, t); err != nil {
		return fmt.Errorf("publish presence: %w", err)
	}
	s.logger.Info("Presence changed", "userID", userID, "status", status, "chats", len(chatIDs))
	return nil
}

// Handle delivers a transition received from the backbone. The subject
// user never receives their own transition.
func (s *Service) Handle(ctx context.Context, msg pubsub.Message) error {
	t, err := pubsub.Decode[Transition](msg)
	if err != nil {
		return err
	}

	var event string
	switch t.Status {
	case StatusOnline:
		event = protocol.EventOnlineUser
	case StatusOffline:
		event = protocol.EventUserOffline
	default:
		return fmt.Errorf("unknown presence status %q", t.Status)
	}

	frame, err := protocol.NewFrame(event, t.UserID)
	if err != nil {
		return err
	}
	for _, chatID := range t.ChatIDs {
		s.rooms.DeliverToRoom(chatID, frame, t.UserID)
	}
	return nil
}
