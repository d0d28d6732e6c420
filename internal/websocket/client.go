package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/nfrund/huddle/internal/protocol"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second
	// Largest inbound frame. Image messages carry base64 payloads up to the
	// blob size limit.
	maxFrameSize = 16 << 20
)

// Client is one live socket connection. Frames queued with Send are written
// by the client's own write pump, so fan-out never blocks on a slow peer.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	outbox chan protocol.Frame

	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

func newClient(conn *websocket.Conn, userID string, buffer int) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		userID: userID,
		conn:   conn,
		outbox: make(chan protocol.Frame, buffer),
		done:   make(chan struct{}),
		logger: slog.Default().With("connID", id, "userID", userID),
	}
}

// ID returns the connection id assigned at handshake.
func (c *Client) ID() string { return c.id }

// UserID returns the user the connection was opened for, possibly empty.
func (c *Client) UserID() string { return c.userID }

// Send queues frame without blocking. It returns false when the outbox is
// full or the connection is closing; the frame is dropped.
func (c *Client) Send(frame protocol.Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.outbox <- frame:
		return true
	default:
		c.logger.Warn("Client send channel full, dropping frame", "event", frame.Event)
		return false
	}
}

// Close stops the write pump and closes the socket. Safe to call repeatedly.
func (c *Client) Close(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close(status, reason)
	})
}

// readPump decodes inbound frames and hands them to dispatch until the peer
// goes away or ctx ends.
func (c *Client) readPump(ctx context.Context, dispatch func(protocol.Frame)) {
	c.conn.SetReadLimit(maxFrameSize)
	for {
		var frame protocol.Frame
		if err := wsjson.Read(ctx, c.conn, &frame); err != nil {
			switch status := websocket.CloseStatus(err); {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				c.logger.Info("WebSocket closed normally by client")
			case errors.Is(err, io.EOF) || errors.Is(err, context.Canceled):
				c.logger.Debug("WebSocket read ended", "error", err)
			default:
				c.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}
		dispatch(frame)
	}
}

// writePump drains the outbox to the socket and keeps the connection alive
// with pings.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case frame := <-c.outbox:
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := wsjson.Write(wctx, c.conn, frame)
			cancel()
			if err != nil {
				c.logger.Warn("WebSocket write error", "event", frame.Event, "error", err)
				c.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				c.logger.Warn("WebSocket ping failed", "error", err)
				c.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}
