package client_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/huddle/internal/app"
	"github.com/nfrund/huddle/internal/client"
	"github.com/nfrund/huddle/internal/config"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/protocol"
)

type fixture struct {
	app *app.App
	srv *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	a, err := app.New(ctx, &config.Config{
		Store:           config.AdapterMemory,
		PubSub:          config.AdapterMemory,
		SessionSecret:   "test",
		UploadDir:       t.TempDir(),
		UploadBaseURL:   "/uploads",
		TypingTimeout:   time.Second,
		MessagePageSize: 20,
		DedupCacheSize:  128,
		SendBuffer:      32,
	})
	require.NoError(t, err)
	a.Start(ctx)

	srv := httptest.NewServer(a.Server.E)
	t.Cleanup(func() {
		srv.Close()
		_ = a.Close(context.Background())
	})
	return &fixture{app: a, srv: srv}
}

func (f *fixture) chat(t *testing.T, creator string, others ...string) string {
	t.Helper()
	c, err := f.app.Store.CreateChat(context.Background(), domain.NewChat{CreatorID: creator, ParticipantIDs: others})
	require.NoError(t, err)
	return c.ID
}

func (f *fixture) client(t *testing.T, userID string) *client.Client {
	t.Helper()
	c, err := client.New(f.srv.URL, userID)
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := client.New("ftp://example.com", "U1")
	assert.Error(t, err)
	_, err = client.New("http://example.com", "")
	assert.Error(t, err)
	_, err = client.New("http://example.com", "U1")
	assert.NoError(t, err)
}

func TestResync_FetchesLatestPagePerChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	busy := f.chat(t, "U1", "U2")
	quiet := f.chat(t, "U1", "U3")
	for i := 0; i < 25; i++ {
		_, err := f.app.Store.CreateMessage(ctx, busy, "U2", fmt.Sprintf("busy %d", i), domain.KindText)
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := f.app.Store.CreateMessage(ctx, quiet, "U3", fmt.Sprintf("quiet %d", i), domain.KindText)
		require.NoError(t, err)
	}

	pages, err := f.client(t, "U1").Resync(ctx)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	require.Len(t, pages[busy].Messages, 20)
	assert.Equal(t, "busy 5", pages[busy].Messages[0].Content)
	assert.Equal(t, "busy 24", pages[busy].Messages[19].Content)
	assert.NotEmpty(t, pages[busy].NextCursor)

	require.Len(t, pages[quiet].Messages, 3)
	assert.Empty(t, pages[quiet].NextCursor)
}

func TestResync_NoChats(t *testing.T) {
	f := newFixture(t)
	pages, err := f.client(t, "loner").Resync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestMessages_ForbiddenIsAPIError(t *testing.T) {
	f := newFixture(t)
	chatID := f.chat(t, "U1", "U2")

	_, err := f.client(t, "U9").Messages(context.Background(), chatID, "")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
}

func TestResync_PropagatesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/chats" {
			_, _ = w.Write([]byte(`[{"id":"c1"},{"id":"c2"}]`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":"internal","message":"boom"}`))
	}))
	defer srv.Close()

	c, err := client.New(srv.URL, "U1")
	require.NoError(t, err)
	_, err = c.Resync(context.Background())

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "boom", apiErr.Message)
}

func TestConn_LiveMessagesApplyRenderPolicy(t *testing.T) {
	f := newFixture(t)
	chatID := f.chat(t, "U1", "U2")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sender, err := f.client(t, "U1").Connect(ctx)
	require.NoError(t, err)
	defer sender.Close()
	viewer, err := f.client(t, "U2").Connect(ctx)
	require.NoError(t, err)
	defer viewer.Close()

	require.Eventually(t, func() bool {
		return len(f.app.Hub.Rooms().MembersOf(chatID)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sender.SendMessage(chatID, "hi", domain.KindText))

	own := nextMatching(t, sender, protocol.EventChatMessage)
	assert.Equal(t, "hi", own.Envelope.Message.Content)
	assert.False(t, sender.Visible(own), "sender already rendered an optimistic copy")

	peer := nextMatching(t, viewer, protocol.EventChatMessage)
	assert.Equal(t, "hi", peer.Envelope.Message.Content)
	assert.True(t, viewer.Visible(peer))
}

func TestConn_TypingReachesPeer(t *testing.T) {
	f := newFixture(t)
	chatID := f.chat(t, "U1", "U2")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	typer, err := f.client(t, "U1").Connect(ctx)
	require.NoError(t, err)
	defer typer.Close()
	watcher, err := f.client(t, "U2").Connect(ctx)
	require.NoError(t, err)
	defer watcher.Close()

	require.Eventually(t, func() bool {
		return len(f.app.Hub.Rooms().MembersOf(chatID)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, typer.Typing(chatID, "Uno"))
	ev := nextMatching(t, watcher, protocol.EventUserTyping)
	require.NotNil(t, ev.Typing)
	assert.Equal(t, "U1", ev.Typing.UserID)
	assert.Equal(t, "Uno", ev.Typing.Username)
}

// nextMatching reads frames until one named event arrives. The read
// deadline is enforced by closing the connection from a timer.
func nextMatching(t *testing.T, conn *client.Conn, event string) client.Event {
	t.Helper()
	timer := time.AfterFunc(3*time.Second, func() { _ = conn.Close() })
	defer timer.Stop()
	for {
		ev, err := conn.Next()
		require.NoError(t, err, "waiting for %s", event)
		if ev.Name == event {
			return ev
		}
	}
}
