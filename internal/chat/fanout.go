package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/metrics"
	"github.com/nfrund/huddle/internal/protocol"
	"github.com/nfrund/huddle/internal/pubsub"
	"github.com/nfrund/huddle/internal/retry"
)

// RoomDeliverer delivers a frame to the local members of a room.
type RoomDeliverer interface {
	DeliverToRoom(roomID string, frame protocol.Frame, excludeUserID string) int
}

// Fanout consumes envelopes from the backbone and delivers them to the
// connections joined to the envelope's chat on this instance.
type Fanout struct {
	rooms   RoomDeliverer
	sub     pubsub.Subscriber
	dedup   *Dedup
	backoff *retry.Backoff
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewFanout creates a fan-out consumer. dedup may be nil to disable
// duplicate suppression.
func NewFanout(rooms RoomDeliverer, sub pubsub.Subscriber, dedup *Dedup, m *metrics.Metrics) *Fanout {
	return &Fanout{
		rooms:   rooms,
		sub:     sub,
		dedup:   dedup,
		backoff: retry.NewBackoff(),
		metrics: m,
		logger:  slog.Default().With("service", "chat-fanout"),
	}
}

// Start subscribes to the chat stream and the notification pattern. A
// failed subscription is retried in the background; Start never fails the
// process.
func (f *Fanout) Start(ctx context.Context) {
	pubsub.SubscribeWithRetry(ctx, f.backoff, pubsub.TopicChat, func(ctx context.Context) error {
		return f.sub.Subscribe(ctx, pubsub.TopicChat, f.HandleChat)
	})
	pubsub.SubscribeWithRetry(ctx, f.backoff, pubsub.NotificationPattern, func(ctx context.Context) error {
		return f.sub.PSubscribe(ctx, pubsub.NotificationPattern, f.HandleNotification)
	})
	f.logger.Info("Fan-out subscriptions started")
}

// HandleChat delivers a chat-message frame for one envelope.
func (f *Fanout) HandleChat(ctx context.Context, msg pubsub.Message) error {
	env, err := pubsub.Decode[domain.Envelope](msg)
	if err != nil {
		return err
	}
	room := env.ChatID
	if room == "" {
		room = env.Message.ChatID
	}
	if room == "" {
		return fmt.Errorf("envelope %s has no chat id", env.Message.ID)
	}
	return f.deliver("chat", room, env, protocol.EventChatMessage, msg.Payload)
}

// HandleNotification delivers a notification frame. The room comes from the
// concrete topic the message arrived on.
func (f *Fanout) HandleNotification(ctx context.Context, msg pubsub.Message) error {
	room, ok := pubsub.ChatIDFromNotificationTopic(msg.Topic)
	if !ok {
		return fmt.Errorf("unexpected notification topic %q", msg.Topic)
	}
	env, err := pubsub.Decode[domain.Envelope](msg)
	if err != nil {
		return err
	}
	return f.deliver("notification", room, env, protocol.EventNotification, msg.Payload)
}

func (f *Fanout) deliver(kind, room string, env domain.Envelope, event string, payload []byte) error {
	if f.dedup != nil && env.Message.ID != "" && !f.dedup.FirstSight(kind+":"+env.Message.ID) {
		f.metrics.Duplicate(kind)
		f.logger.Debug("Dropping duplicate delivery", "kind", kind, "messageID", env.Message.ID)
		return nil
	}

	frame := protocol.Frame{Event: event, Data: json.RawMessage(payload)}
	n := f.rooms.DeliverToRoom(room, frame, "")
	f.logger.Debug("Fanned out message", "event", event, "room", room, "messageID", env.Message.ID, "recipients", n)
	return nil
}
