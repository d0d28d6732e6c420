// Package client talks to a huddle server the way a browser does: REST for
// history and a socket for live events.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/middleware"
)

const defaultResyncConcurrency = 4

// APIError is a non-2xx response from the REST API.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Client is bound to one server and one user.
type Client struct {
	base        *url.URL
	userID      string
	http        *http.Client
	dialer      *websocket.Dialer
	concurrency int
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the REST transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithDialer replaces the socket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithResyncConcurrency bounds the number of history requests in flight.
func WithResyncConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// New creates a Client for the server at baseURL acting as userID.
func New(baseURL, userID string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	c := &Client{
		base:        base,
		userID:      userID,
		http:        &http.Client{Timeout: 15 * time.Second},
		dialer:      websocket.DefaultDialer,
		concurrency: defaultResyncConcurrency,
		logger:      slog.Default().With("component", "client", "userID", userID),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// UserID returns the identity the client acts as.
func (c *Client) UserID() string { return c.userID }

// Chats lists the chats the user participates in.
func (c *Client) Chats(ctx context.Context) ([]domain.ChatSummary, error) {
	var chats []domain.ChatSummary
	if err := c.get(ctx, c.base.JoinPath("api", "chats"), &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// Messages fetches one page of history. An empty cursor returns the latest page.
func (c *Client) Messages(ctx context.Context, chatID, cursor string) (domain.Page, error) {
	u := c.base.JoinPath("api", "chats", chatID, "messages")
	if cursor != "" {
		q := u.Query()
		q.Set("cursor", cursor)
		u.RawQuery = q.Encode()
	}
	var page domain.Page
	err := c.get(ctx, u, &page)
	return page, err
}

// Resync fetches the latest page of every chat. It is what a client does
// after reconnecting, since the server keeps no replay buffer.
func (c *Client) Resync(ctx context.Context) (map[string]domain.Page, error) {
	chats, err := c.Chats(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	var mu sync.Mutex
	pages := make(map[string]domain.Page, len(chats))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, chat := range chats {
		g.Go(func() error {
			page, err := c.Messages(gctx, chat.ID, "")
			if err != nil {
				return fmt.Errorf("chat %s: %w", chat.ID, err)
			}
			mu.Lock()
			pages[chat.ID] = page
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	c.logger.Debug("Resync complete", "chats", len(pages))
	return pages, nil
}

func (c *Client) get(ctx context.Context, u *url.URL, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set(middleware.HeaderUserID, c.userID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Connect opens the live socket. The server auto-joins every chat the user
// belongs to.
func (c *Client) Connect(ctx context.Context) (*Conn, error) {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	q := url.Values{}
	q.Set("userId", c.userID)
	u.RawQuery = q.Encode()

	ws, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return &Conn{ws: ws, viewerID: c.userID}, nil
}
