package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var (
	// ErrEventAlreadyRegistered is returned when an inbound event already has a handler.
	ErrEventAlreadyRegistered = errors.New("event already registered")
	// ErrInvalidEvent is returned for an empty event name or a nil handler.
	ErrInvalidEvent = errors.New("event name and handler are required")
)

// EventHandler handles one inbound frame for a connection.
type EventHandler func(ctx context.Context, client *Client, data json.RawMessage)

// router holds the inbound events a client is allowed to send. Frames with
// any other event name are dropped.
type router struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
}

func newRouter() *router {
	return &router{handlers: make(map[string]EventHandler)}
}

// Handle registers the handler for an inbound event.
func (r *router) Handle(event string, h EventHandler) error {
	if event == "" || h == nil {
		return ErrInvalidEvent
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[event]; ok {
		return ErrEventAlreadyRegistered
	}
	r.handlers[event] = h
	return nil
}

func (r *router) lookup(event string) (EventHandler, bool) {
	if event == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[event]
	return h, ok
}
