// Package chat implements the message pipeline: ingest (validate, persist,
// publish) and fan-out (backbone → room members).
package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/metrics"
	"github.com/nfrund/huddle/internal/protocol"
	"github.com/nfrund/huddle/internal/pubsub"
)

// ImageFolder is where image message payloads are uploaded.
const ImageFolder = "chat_images"

// MessageCreator persists messages.
type MessageCreator interface {
	CreateMessage(ctx context.Context, chatID, senderID, content string, kind domain.ContentKind) (domain.Message, error)
}

// Ingest turns an inbound NewMessage into a persisted message published on
// the backbone. It never delivers to local connections; delivery happens
// only through Fanout.
type Ingest struct {
	store     MessageCreator
	uploader  domain.Uploader
	publisher pubsub.Publisher
	validate  *validator.Validate
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewIngest creates the ingest pipeline.
func NewIngest(store MessageCreator, uploader domain.Uploader, publisher pubsub.Publisher, m *metrics.Metrics) *Ingest {
	return &Ingest{
		store:     store,
		uploader:  uploader,
		publisher: publisher,
		validate:  validator.New(),
		metrics:   m,
		logger:    slog.Default().With("service", "chat-ingest"),
	}
}

// Handle runs the pipeline for one inbound message sent by connUserID.
//
// Errors wrap domain.ErrInvalidMessage for validation failures and
// domain.ErrUploadFailed for image upload failures; in both cases nothing is
// persisted. A publish failure is logged and not returned, since the message
// is already durable.
func (i *Ingest) Handle(ctx context.Context, connUserID string, req protocol.NewMessageRequest) (domain.Message, error) {
	if err := i.validate.Struct(req); err != nil {
		i.metrics.Ingested("invalid")
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
	}
	if connUserID != "" && req.SenderID != connUserID {
		i.metrics.Ingested("invalid")
		return domain.Message{}, fmt.Errorf("%w: sender %q does not match connection user %q",
			domain.ErrInvalidMessage, req.SenderID, connUserID)
	}

	kind := req.Kind()
	content := req.Content
	switch kind {
	case domain.KindText:
		content = norm.NFC.String(content)
	case domain.KindImage:
		url, err := i.uploadImage(ctx, content)
		if err != nil {
			i.metrics.Ingested("upload_failed")
			return domain.Message{}, err
		}
		content = url
	}

	msg, err := i.store.CreateMessage(ctx, req.ChatID, req.SenderID, content, kind)
	if err != nil {
		i.metrics.Ingested("store_failed")
		return domain.Message{}, fmt.Errorf("persist message: %w", err)
	}
	i.metrics.Ingested("ok")

	i.publish(ctx, msg)
	return msg, nil
}

func (i *Ingest) uploadImage(ctx context.Context, content string) (string, error) {
	data, err := DecodeImagePayload(content)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}
	url, err := i.uploader.Upload(ctx, ImageFolder, bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, domain.ErrUploadFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}
	return url, nil
}

// publish sends the envelope to the chat stream and the chat's notification
// topic. Failures are delivery gaps healed by client resync, so they are
// only logged.
func (i *Ingest) publish(ctx context.Context, msg domain.Message) {
	env := domain.NewEnvelope(msg)

	if err := pubsub.PublishJSON(ctx, i.publisher, pubsub.TopicChat, msg.SenderID, env); err != nil {
		i.metrics.PublishFailed("chat")
		i.logger.Error("Failed to publish message", "topic", pubsub.TopicChat, "messageID", msg.ID, "chatID", msg.ChatID, "error", err)
	}

	topic := pubsub.NotificationTopic(msg.ChatID)
	if err := pubsub.PublishJSON(ctx, i.publisher, topic, msg.SenderID, env); err != nil {
		i.metrics.PublishFailed("notification")
		i.logger.Error("Failed to publish notification", "topic", topic, "messageID", msg.ID, "error", err)
	}
}
