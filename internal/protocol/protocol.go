// Package protocol defines the JSON frames exchanged with socket clients.
//
// Every frame is an object {"event": name, "data": payload}. Inbound events
// are requests from a client; outbound events are deliveries to it.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/nfrund/huddle/internal/domain"
)

// Inbound events.
const (
	EventJoinRoom   = "joinRoom"
	EventLeaveRoom  = "leaveRoom"
	EventNewMessage = "NewMessage"
	EventTyping     = "typing"
)

// Outbound events. online-user and user-offline carry the bare user id string.
const (
	EventChatMessage       = "chat-message"
	EventNotification      = "notification"
	EventOnlineUser        = "online-user"
	EventUserOffline       = "user-offline"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventError             = "error"
)

// Frame is a single socket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a frame for event.
func NewFrame(event string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s frame: %w", event, err)
	}
	return Frame{Event: event, Data: raw}, nil
}

// NewMessageRequest is the payload of a NewMessage event.
type NewMessageRequest struct {
	ChatID      string `json:"chatId" validate:"required"`
	SenderID    string `json:"senderId" validate:"required"`
	Content     string `json:"content" validate:"required"`
	MessageType string `json:"messageType" validate:"omitempty,oneof=text image file"`
}

// Kind returns the normalized content kind of the request.
func (r NewMessageRequest) Kind() domain.ContentKind {
	return domain.NormalizeKind(r.MessageType)
}

// TypingRequest is the payload of a typing event. UserID is advisory; the
// connection's handshake identity wins when they differ.
type TypingRequest struct {
	ChatID   string `json:"chatId" validate:"required"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// TypingEvent is delivered with user-typing and user-stopped-typing.
type TypingEvent struct {
	UserID   string `json:"userId"`
	ChatID   string `json:"chatId"`
	Username string `json:"username"`
}

// ErrorEvent is sent to a single connection when its request failed in a
// way the client must know about.
type ErrorEvent struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// DecodeRoomID accepts a room id sent either as a bare JSON string or as
// {"chatId": "..."}.
func DecodeRoomID(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		if id == "" {
			return "", fmt.Errorf("empty room id")
		}
		return id, nil
	}

	var obj struct {
		ChatID string `json:"chatId"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("decode room id: %w", err)
	}
	if obj.ChatID == "" {
		return "", fmt.Errorf("empty room id")
	}
	return obj.ChatID, nil
}
