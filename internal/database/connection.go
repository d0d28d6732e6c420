package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/nfrund/huddle/internal/retry"
)

// ErrNotConnected is returned when no live database connection is available.
var ErrNotConnected = errors.New("database not connected")

// DialFunc opens a new, signed-in database connection.
type DialFunc func(ctx context.Context) (*surrealdb.DB, error)

// Connection owns a SurrealDB connection and replaces it when it breaks.
type Connection struct {
	dial    DialFunc
	retryer *retry.Backoff
	logger  *slog.Logger

	mu      sync.RWMutex
	conn    *surrealdb.DB
	healthy bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewConnection creates a managed connection. Call Connect before use.
func NewConnection(dial DialFunc) *Connection {
	return &Connection{
		dial:    dial,
		retryer: retry.NewBackoff(),
		logger:  slog.Default().With("service", "surrealdb"),
		done:    make(chan struct{}),
	}
}

// Connect establishes the initial connection, retrying with backoff.
func (c *Connection) Connect(ctx context.Context) error {
	return c.retryer.Retry(ctx, "surrealdb connect", func() error {
		return c.reconnect(ctx)
	})
}

// WithConnection runs fn with the live connection. When fn fails with a
// connection error the connection is re-established and fn retried.
func (c *Connection) WithConnection(ctx context.Context, fn func(*surrealdb.DB) error) error {
	conn := c.getConnection()
	if conn == nil {
		return ErrNotConnected
	}

	err := fn(conn)
	if err == nil || !isConnectionError(err) {
		return err
	}

	c.logger.WarnContext(ctx, "Database operation failed, reconnecting", "error", err)
	return c.retryer.Retry(ctx, "surrealdb reconnect", func() error {
		if reconnectErr := c.reconnect(ctx); reconnectErr != nil {
			return fmt.Errorf("reconnection failed: %w (original error: %v)", reconnectErr, err)
		}
		return fn(c.getConnection())
	})
}

// StartMonitoring checks connection health every interval and reconnects on failure.
func (c *Connection) StartMonitoring(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := c.checkHealth(ctx); err != nil {
					c.logger.WarnContext(ctx, "Database health check failed, reconnecting", "error", err)
					if err := c.reconnect(ctx); err != nil {
						c.logger.ErrorContext(ctx, "Database reconnect failed", "error", err)
					}
				}
				cancel()
			case <-c.done:
				return
			}
		}
	}()
}

// IsHealthy reports the result of the last health check or reconnect.
func (c *Connection) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// Close stops monitoring and closes the connection.
func (c *Connection) Close(ctx context.Context) error {
	c.closeOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(ctx)
	c.conn = nil
	c.healthy = false
	return err
}

func (c *Connection) getConnection() *surrealdb.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Connection) reconnect(ctx context.Context) error {
	conn, err := c.dial(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.healthy = false
		return err
	}
	if c.conn != nil {
		_ = c.conn.Close(ctx)
	}
	c.conn = conn
	c.healthy = true
	return nil
}

func (c *Connection) checkHealth(ctx context.Context) error {
	conn := c.getConnection()
	if conn == nil {
		c.setHealthy(false)
		return ErrNotConnected
	}

	// Version is a cheap round trip.
	if _, err := conn.Version(ctx); err != nil {
		c.setHealthy(false)
		return fmt.Errorf("database health check failed: %w", err)
	}
	c.setHealthy(true)
	return nil
}

func (c *Connection) setHealthy(v bool) {
	c.mu.Lock()
	c.healthy = v
	c.mu.Unlock()
}

// isConnectionError reports whether err is likely a lost connection rather
// than an application-level failure.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "broken pipe") ||
		strings.Contains(errMsg, "unexpected eof") ||
		strings.Contains(errMsg, "use of closed network connection")
}

// redactDBURL returns dbURL with any password replaced.
func redactDBURL(dbURL string) string {
	parsedURL, err := url.Parse(dbURL)
	if err != nil {
		return "invalid-url"
	}
	return parsedURL.Redacted()
}
