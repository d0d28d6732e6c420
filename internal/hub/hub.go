// Package hub holds the per-process connection registry and room membership,
// and delivers frames to the connections of a room.
package hub

import (
	"context"
	"log/slog"

	"github.com/nfrund/huddle/internal/metrics"
	"github.com/nfrund/huddle/internal/protocol"
)

// ChatLister resolves the chats a user participates in.
type ChatLister interface {
	ListChatsForUser(ctx context.Context, userID string) ([]string, error)
}

// Hub combines the Registry and Rooms of one server instance. It is built once
// at startup and shared by every connection handler.
type Hub struct {
	registry *Registry
	rooms    *Rooms
	chats    ChatLister
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithMetrics records connection and delivery metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// New creates a Hub that resolves auto-join rooms through chats.
func New(chats ChatLister, opts ...Option) *Hub {
	h := &Hub{
		registry: NewRegistry(),
		rooms:    NewRooms(),
		chats:    chats,
		logger:   slog.Default().With("service", "hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Registry exposes the connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Rooms exposes the membership manager.
func (h *Hub) Rooms() *Rooms { return h.rooms }

// Connect registers conn and opens it for room membership. It reports
// whether the owning user just came online on this instance.
func (h *Hub) Connect(conn Conn) bool {
	h.rooms.Open(conn.ID())
	wentOnline := h.registry.Register(conn)
	h.metrics.ConnectionOpened()
	h.metrics.SetOnlineUsers(len(h.registry.OnlineUsers()))
	h.logger.Info("Connection registered", "connID", conn.ID(), "userID", conn.UserID(), "wentOnline", wentOnline)
	return wentOnline
}

// Disconnect tears a connection down: all memberships first, then the
// registry entry. Calling it more than once is a no-op.
func (h *Hub) Disconnect(connID string) (userID string, wentOffline bool) {
	h.rooms.DropConnection(connID)
	conn, wentOffline := h.registry.Unregister(connID)
	if conn == nil {
		return "", false
	}
	userID = conn.UserID()
	h.metrics.ConnectionClosed()
	h.metrics.SetOnlineUsers(len(h.registry.OnlineUsers()))
	h.logger.Info("Connection unregistered", "connID", connID, "userID", userID, "wentOffline", wentOffline)
	return userID, wentOffline
}

// AutoJoin joins connID to every chat userID participates in. A store
// failure leaves the connection registered but unjoined; it is logged and
// returned.
func (h *Hub) AutoJoin(ctx context.Context, connID, userID string) ([]string, error) {
	if userID == "" {
		return nil, nil
	}
	chatIDs, err := h.chats.ListChatsForUser(ctx, userID)
	if err != nil {
		h.logger.Error("Auto-join failed, connection stays unjoined", "connID", connID, "userID", userID, "error", err)
		return nil, err
	}

	joined := make([]string, 0, len(chatIDs))
	for _, chatID := range chatIDs {
		if h.rooms.Join(connID, chatID) {
			joined = append(joined, chatID)
		}
	}
	h.logger.Debug("Auto-joined rooms", "connID", connID, "userID", userID, "rooms", len(joined))
	return joined, nil
}

// Join adds a connection to a room on explicit client request.
func (h *Hub) Join(connID, roomID string) bool {
	return h.rooms.Join(connID, roomID)
}

// Leave removes a connection from a room on explicit client request.
func (h *Hub) Leave(connID, roomID string) bool {
	return h.rooms.Leave(connID, roomID)
}

// DeliverToRoom sends frame once to every connection in roomID, skipping
// connections owned by excludeUserID when it is non-empty. It returns the
// number of connections the frame was queued for.
func (h *Hub) DeliverToRoom(roomID string, frame protocol.Frame, excludeUserID string) int {
	delivered := 0
	for _, connID := range h.rooms.MembersOf(roomID) {
		conn, ok := h.registry.Get(connID)
		if !ok {
			continue
		}
		if excludeUserID != "" && conn.UserID() == excludeUserID {
			continue
		}
		if conn.Send(frame) {
			delivered++
		} else {
			h.metrics.Dropped()
			h.logger.Warn("Connection outbox full, dropping frame", "connID", connID, "event", frame.Event, "room", roomID)
		}
	}
	h.metrics.Delivered(frame.Event, delivered)
	return delivered
}

// SendTo sends frame to a single connection.
func (h *Hub) SendTo(connID string, frame protocol.Frame) bool {
	conn, ok := h.registry.Get(connID)
	if !ok {
		return false
	}
	if !conn.Send(frame) {
		h.metrics.Dropped()
		return false
	}
	h.metrics.Delivered(frame.Event, 1)
	return true
}
