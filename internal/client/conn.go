package client

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/protocol"
)

// Conn is a live socket. Reads must come from a single goroutine; writes
// may be concurrent.
type Conn struct {
	ws       *websocket.Conn
	viewerID string
	writeMu  sync.Mutex
}

// Event is a decoded server frame.
type Event struct {
	Name string

	// Set for chat-message and notification.
	Envelope *domain.Envelope
	// Set for user-typing and user-stopped-typing.
	Typing *protocol.TypingEvent
	// Set for error.
	Error *protocol.ErrorEvent
	// Set for online-user and user-offline.
	UserID string
}

// Send writes one frame.
func (c *Conn) Send(event string, data any) error {
	frame, err := protocol.NewFrame(event, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(frame)
}

// SendMessage posts a chat message as the connected user.
func (c *Conn) SendMessage(chatID, content string, kind domain.ContentKind) error {
	return c.Send(protocol.EventNewMessage, protocol.NewMessageRequest{
		ChatID:      chatID,
		SenderID:    c.viewerID,
		Content:     content,
		MessageType: string(kind),
	})
}

// Typing reports keyboard activity in chatID.
func (c *Conn) Typing(chatID, username string) error {
	return c.Send(protocol.EventTyping, protocol.TypingRequest{ChatID: chatID, UserID: c.viewerID, Username: username})
}

// Join subscribes the connection to a room it was not auto-joined to.
func (c *Conn) Join(chatID string) error {
	return c.Send(protocol.EventJoinRoom, chatID)
}

// Leave unsubscribes the connection from a room.
func (c *Conn) Leave(chatID string) error {
	return c.Send(protocol.EventLeaveRoom, chatID)
}

// Next blocks for the next server frame and decodes it.
func (c *Conn) Next() (Event, error) {
	var frame protocol.Frame
	if err := c.ws.ReadJSON(&frame); err != nil {
		return Event{}, err
	}
	return decodeEvent(frame)
}

// Visible reports whether ev should be shown to the connected user.
func (c *Conn) Visible(ev Event) bool {
	if ev.Envelope == nil {
		return true
	}
	return ShouldRender(*ev.Envelope, c.viewerID)
}

// Close sends a normal closure and releases the socket.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func decodeEvent(frame protocol.Frame) (Event, error) {
	ev := Event{Name: frame.Event}
	var err error
	switch frame.Event {
	case protocol.EventChatMessage, protocol.EventNotification:
		ev.Envelope = new(domain.Envelope)
		err = json.Unmarshal(frame.Data, ev.Envelope)
	case protocol.EventUserTyping, protocol.EventUserStoppedTyping:
		ev.Typing = new(protocol.TypingEvent)
		err = json.Unmarshal(frame.Data, ev.Typing)
	case protocol.EventError:
		ev.Error = new(protocol.ErrorEvent)
		err = json.Unmarshal(frame.Data, ev.Error)
	case protocol.EventOnlineUser, protocol.EventUserOffline:
		err = json.Unmarshal(frame.Data, &ev.UserID)
	}
	if err != nil {
		return Event{}, fmt.Errorf("decode %s: %w", frame.Event, err)
	}
	return ev, nil
}
