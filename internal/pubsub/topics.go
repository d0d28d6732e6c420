package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// TopicChat carries every persisted message.
	TopicChat = "chat"
	// TopicPresence carries online/offline transitions.
	TopicPresence = "presence"
	// TopicTyping carries typing start/stop events.
	TopicTyping = "typing"

	notificationPrefix = "notifications:"
	// NotificationPattern matches every per-chat notification topic.
	NotificationPattern = notificationPrefix + "*"
)

// NotificationTopic returns the notification topic for a chat.
func NotificationTopic(chatID string) string {
	return notificationPrefix + chatID
}

// ChatIDFromNotificationTopic extracts the chat id from a notification topic.
func ChatIDFromNotificationTopic(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, notificationPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Event[T] binds a topic name to its payload type.
type Event[T any] struct {
	topicName string
}

// NewEvent creates a typed event for a fixed topic.
func NewEvent[T any](name string) Event[T] {
	return Event[T]{topicName: name}
}

// Name returns the topic name.
func (e Event[T]) Name() string {
	return e.topicName
}

// Publish sends a typed event. The compiler ensures 'payload' matches 'T'.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], userID string, payload T) error {
	return PublishJSON(ctx, p, event.Name(), userID, payload)
}

// PublishJSON marshals payload and publishes it to an arbitrary topic.
func PublishJSON(ctx context.Context, p Publisher, topic, userID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	return p.Publish(ctx, Message{
		Topic:   topic,
		UserID:  userID,
		Payload: data,
	})
}

// Decode unmarshals a message payload into T.
func Decode[T any](msg Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("decode %s payload: %w", msg.Topic, err)
	}
	return v, nil
}
