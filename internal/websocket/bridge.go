// Package websocket terminates client sockets. Each connection runs a read
// pump on the handshake goroutine and a write pump of its own; inbound
// frames are routed to the hub, ingest and typing tracker.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/coder/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/hub"
	"github.com/nfrund/huddle/internal/middleware"
	"github.com/nfrund/huddle/internal/protocol"
)

// DefaultSendBuffer is the outbox size of a connection.
const DefaultSendBuffer = 256

// Ingester persists and publishes a NewMessage.
type Ingester interface {
	Handle(ctx context.Context, connUserID string, req protocol.NewMessageRequest) (domain.Message, error)
}

// PresenceAnnouncer broadcasts online/offline transitions. It runs the
// registry change itself so a user's transitions are announced in order.
type PresenceAnnouncer interface {
	Online(ctx context.Context, userID string, register func() bool) error
	Offline(ctx context.Context, userID string, unregister func() bool) error
}

// TypingMarker records typing activity.
type TypingMarker interface {
	MarkTyping(ctx context.Context, chatID, userID, username string)
}

// Bridge upgrades HTTP requests to sockets and owns the connection lifecycle.
type Bridge struct {
	hub      *hub.Hub
	ingest   Ingester
	presence PresenceAnnouncer
	typing   TypingMarker

	router         *router
	validate       *validator.Validate
	sendBuffer     int
	originPatterns []string
	logger         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithSendBuffer sets the per-connection outbox size.
func WithSendBuffer(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.sendBuffer = n
		}
	}
}

// WithOriginPatterns restricts the handshake to the given origin host
// patterns. Without it any origin is accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(b *Bridge) { b.originPatterns = append(b.originPatterns, patterns...) }
}

// NewBridge creates a Bridge. presence and typing may be nil.
func NewBridge(h *hub.Hub, ingest Ingester, presence PresenceAnnouncer, typing TypingMarker, opts ...Option) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		hub:        h,
		ingest:     ingest,
		presence:   presence,
		typing:     typing,
		router:     newRouter(),
		validate:   validator.New(),
		sendBuffer: DefaultSendBuffer,
		logger:     slog.Default().With("service", "websocket"),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(b)
	}

	for event, h := range map[string]EventHandler{
		protocol.EventJoinRoom:   b.handleJoin,
		protocol.EventLeaveRoom:  b.handleLeave,
		protocol.EventNewMessage: b.handleNewMessage,
		protocol.EventTyping:     b.handleTyping,
	} {
		if err := b.router.Handle(event, h); err != nil {
			panic(err)
		}
	}
	return b
}

// Handler returns the echo handler for GET /ws?userId=... . A missing userId
// falls back to the identity resolved by middleware; a connection without
// any user is allowed but never counts towards presence.
func (b *Bridge) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.QueryParam("userId")
		if userID == "" {
			userID = middleware.UserID(c)
		}

		opts := &websocket.AcceptOptions{OriginPatterns: b.originPatterns}
		if len(b.originPatterns) == 0 {
			opts.InsecureSkipVerify = true
		}
		conn, err := websocket.Accept(c.Response(), c.Request(), opts)
		if err != nil {
			b.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
			return nil
		}

		b.Serve(c.Request().Context(), conn, userID)
		return nil
	}
}

// Serve runs one connection until the peer leaves, ctx ends or the bridge
// shuts down.
func (b *Bridge) Serve(ctx context.Context, conn *websocket.Conn, userID string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(b.ctx, cancel)
	defer stop()

	client := newClient(conn, userID, b.sendBuffer)
	b.connect(ctx, client)
	// Failures are logged by the hub; the connection stays up unjoined.
	_, _ = b.hub.AutoJoin(ctx, client.ID(), userID)

	go client.writePump(ctx)
	client.readPump(ctx, func(frame protocol.Frame) {
		b.dispatch(ctx, client, frame)
	})

	client.Close(websocket.StatusNormalClosure, "")
	b.disconnect(context.WithoutCancel(ctx), client)
}

func (b *Bridge) connect(ctx context.Context, client *Client) {
	register := func() bool { return b.hub.Connect(client) }
	if b.presence == nil {
		register()
		return
	}
	if err := b.presence.Online(ctx, client.UserID(), register); err != nil {
		b.logger.Error("Failed to announce online", "userID", client.UserID(), "error", err)
	}
}

func (b *Bridge) disconnect(ctx context.Context, client *Client) {
	unregister := func() bool {
		_, wentOffline := b.hub.Disconnect(client.ID())
		return wentOffline
	}
	if b.presence == nil {
		unregister()
		return
	}
	if err := b.presence.Offline(ctx, client.UserID(), unregister); err != nil {
		b.logger.Error("Failed to announce offline", "userID", client.UserID(), "error", err)
	}
}

// Shutdown ends every connection served by this bridge.
func (b *Bridge) Shutdown() {
	b.cancel()
}

func (b *Bridge) dispatch(ctx context.Context, client *Client, frame protocol.Frame) {
	h, ok := b.router.lookup(frame.Event)
	if !ok {
		b.logger.Debug("Dropping frame with unknown event", "connID", client.ID(), "event", frame.Event)
		return
	}
	h(ctx, client, frame.Data)
}

func (b *Bridge) handleJoin(_ context.Context, client *Client, data json.RawMessage) {
	roomID, err := protocol.DecodeRoomID(data)
	if err != nil {
		b.logger.Debug("Dropping joinRoom", "connID", client.ID(), "error", err)
		return
	}
	b.hub.Join(client.ID(), roomID)
}

func (b *Bridge) handleLeave(_ context.Context, client *Client, data json.RawMessage) {
	roomID, err := protocol.DecodeRoomID(data)
	if err != nil {
		b.logger.Debug("Dropping leaveRoom", "connID", client.ID(), "error", err)
		return
	}
	b.hub.Leave(client.ID(), roomID)
}

func (b *Bridge) handleNewMessage(ctx context.Context, client *Client, data json.RawMessage) {
	var req protocol.NewMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		b.logger.Debug("Dropping malformed NewMessage", "connID", client.ID(), "error", err)
		return
	}

	_, err := b.ingest.Handle(ctx, client.UserID(), req)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUploadFailed):
		b.logger.Warn("Image upload failed", "connID", client.ID(), "chatID", req.ChatID, "error", err)
		b.sendError(client, protocol.EventNewMessage, "image upload failed")
	case errors.Is(err, domain.ErrInvalidMessage):
		b.logger.Debug("Dropping invalid NewMessage", "connID", client.ID(), "error", err)
	default:
		b.logger.Error("Failed to ingest message", "connID", client.ID(), "chatID", req.ChatID, "error", err)
	}
}

func (b *Bridge) handleTyping(ctx context.Context, client *Client, data json.RawMessage) {
	if b.typing == nil {
		return
	}
	var req protocol.TypingRequest
	if err := json.Unmarshal(data, &req); err != nil {
		b.logger.Debug("Dropping malformed typing", "connID", client.ID(), "error", err)
		return
	}
	if err := b.validate.Struct(req); err != nil {
		b.logger.Debug("Dropping invalid typing", "connID", client.ID(), "error", err)
		return
	}

	userID := client.UserID()
	if userID == "" {
		userID = req.UserID
	}
	if userID == "" {
		return
	}
	b.typing.MarkTyping(ctx, req.ChatID, userID, req.Username)
}

func (b *Bridge) sendError(client *Client, event, message string) {
	frame, err := protocol.NewFrame(protocol.EventError, protocol.ErrorEvent{Event: event, Message: message})
	if err != nil {
		b.logger.Error("Failed to build error frame", "error", err)
		return
	}
	if !b.hub.SendTo(client.ID(), frame) {
		b.logger.Warn("Could not deliver error frame", "connID", client.ID(), "event", event)
	}
}
