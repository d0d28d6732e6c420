package pubsub

import (
	"context"
	"log/slog"
	"path"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// WatermillBridge implements Backbone using watermill's GoChannel. It serves a
// single process; every instance sharing one bridge behaves like a cluster.
type WatermillBridge struct {
	pub message.Publisher
	sub message.Subscriber
	// Logger for watermill to use
	logger watermill.LoggerAdapter

	mu       sync.RWMutex
	patterns map[string]int
}

const (
	// Metadata keys used to transfer our Message structure fields through watermill's message.
	metaKeyUserID = "user_id"
	metaKeyTopic  = "topic"

	// Pattern subscriptions are backed by an internal gochannel topic per pattern.
	patternTopicPrefix = "psub:"
)

// NewWatermillBridge initializes an in-memory Pub/Sub system.
func NewWatermillBridge() *WatermillBridge {
	logger := watermill.NewStdLogger(false, false)
	goChannel := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		logger,
	)

	return &WatermillBridge{
		pub:      goChannel,
		sub:      goChannel,
		logger:   logger,
		patterns: make(map[string]int),
	}
}

// mapToWatermillMessage converts our pubsub.Message to a watermill message.
func mapToWatermillMessage(msg Message) *message.Message {
	wmMsg := message.NewMessage(watermill.NewUUID(), msg.Payload)

	for k, v := range msg.Metadata {
		wmMsg.Metadata.Set(k, v)
	}
	wmMsg.Metadata.Set(metaKeyUserID, msg.UserID)
	wmMsg.Metadata.Set(metaKeyTopic, msg.Topic)

	return wmMsg
}

// mapToPubSubMessage converts a watermill message back to our internal pubsub.Message.
func mapToPubSubMessage(wmMsg *message.Message) Message {
	metadata := make(map[string]string)
	for k, v := range wmMsg.Metadata {
		if k != metaKeyUserID && k != metaKeyTopic {
			metadata[k] = v
		}
	}

	return Message{
		Topic:    wmMsg.Metadata.Get(metaKeyTopic),
		UserID:   wmMsg.Metadata.Get(metaKeyUserID),
		Payload:  wmMsg.Payload,
		Metadata: metadata,
	}
}

// Publish implements the Publisher interface. Messages are also routed to
// every registered pattern the topic matches.
func (wb *WatermillBridge) Publish(ctx context.Context, msg Message) error {
	if err := wb.pub.Publish(msg.Topic, mapToWatermillMessage(msg)); err != nil {
		return err
	}

	for _, pattern := range wb.matchingPatterns(msg.Topic) {
		if err := wb.pub.Publish(patternTopicPrefix+pattern, mapToWatermillMessage(msg)); err != nil {
			return err
		}
	}
	return nil
}

func (wb *WatermillBridge) matchingPatterns(topic string) []string {
	wb.mu.RLock()
	defer wb.mu.RUnlock()

	var matched []string
	for pattern := range wb.patterns {
		if ok, _ := path.Match(pattern, topic); ok {
			matched = append(matched, pattern)
		}
	}
	return matched
}

// Subscribe implements the Subscriber interface.
func (wb *WatermillBridge) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := wb.sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go wb.consume(ctx, topic, messages, handler, nil)
	return nil
}

// PSubscribe implements the Subscriber interface.
func (wb *WatermillBridge) PSubscribe(ctx context.Context, pattern string, handler Handler) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return err
	}

	messages, err := wb.sub.Subscribe(ctx, patternTopicPrefix+pattern)
	if err != nil {
		return err
	}

	wb.mu.Lock()
	wb.patterns[pattern]++
	wb.mu.Unlock()

	go wb.consume(ctx, pattern, messages, handler, func() {
		wb.mu.Lock()
		defer wb.mu.Unlock()
		if wb.patterns[pattern]--; wb.patterns[pattern] <= 0 {
			delete(wb.patterns, pattern)
		}
	})
	return nil
}

func (wb *WatermillBridge) consume(ctx context.Context, name string, messages <-chan *message.Message, handler Handler, done func()) {
	if done != nil {
		defer done()
	}

	for wmMsg := range messages {
		msg := mapToPubSubMessage(wmMsg)

		if err := handler(ctx, msg); err != nil {
			slog.Error("Failed to handle message", "subscription", name, "topic", msg.Topic, "msg_id", wmMsg.UUID, "error", err)
		}
		// Always ack: gochannel redelivers nacked messages forever, and
		// delivery on this bus is at most once.
		wmMsg.Ack()
	}
	slog.Debug("Subscription message loop ended", "subscription", name)
}

// Close implements the Publisher and Subscriber interface to shut down the bridge.
func (wb *WatermillBridge) Close() error {
	return wb.sub.Close()
}
