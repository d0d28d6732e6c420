package server

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/huddle/internal/config"
	"github.com/nfrund/huddle/internal/database"
	"github.com/nfrund/huddle/internal/handlers"
	"github.com/nfrund/huddle/internal/hub"
	"github.com/nfrund/huddle/internal/metrics"
	"github.com/nfrund/huddle/internal/middleware"
	"github.com/nfrund/huddle/internal/storage"
	"github.com/nfrund/huddle/internal/websocket"
)

type alwaysHealthy struct{}

func (alwaysHealthy) IsHealthy() bool { return true }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Port:            0,
		SessionSecret:   "test-secret",
		UploadBaseURL:   "/uploads",
		MessagePageSize: 20,
	}
	store := database.NewMemoryStore()
	m := metrics.New()
	h := hub.New(store, hub.WithMetrics(m))
	blobs := storage.NewBlobStore(storage.NewAferoStore(afero.NewMemMapFs()), cfg.UploadBaseURL)

	return New(Deps{
		Config:  cfg,
		Store:   store,
		Hub:     h,
		Bridge:  websocket.NewBridge(h, nil, nil, nil),
		Files:   storage.NewFileHandler(blobs),
		Metrics: m,
		Health:  map[string]handlers.HealthChecker{"store": alwaysHealthy{}},
	})
}

func request(s *Server, method, path, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	s.E.ServeHTTP(rec, req)
	return rec
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		userID string
		body   string
		want   int
	}{
		{"health", http.MethodGet, "/healthz", "", "", http.StatusOK},
		{"presence needs identity", http.MethodGet, "/api/presence", "", "", http.StatusUnauthorized},
		{"presence", http.MethodGet, "/api/presence", "U1", "", http.StatusOK},
		{"list chats", http.MethodGet, "/api/chats", "U1", "", http.StatusOK},
		{"create chat", http.MethodPost, "/api/chats", "U1", `{"participantIds":["U2"]}`, http.StatusCreated},
		{"unknown chat", http.MethodGet, "/api/chats/missing/messages", "U1", "", http.StatusNotFound},
		{"missing upload", http.MethodGet, "/uploads/chat_images/none.png", "", "", http.StatusNotFound},
		{"metrics", http.MethodGet, "/metrics", "", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := request(s, tt.method, tt.path, tt.userID, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_MetricsExposeDomainCollectors(t *testing.T) {
	s := newTestServer(t)
	request(s, http.MethodGet, "/healthz", "", "")

	rec := request(s, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "huddle_connections")
	assert.Contains(t, body, "huddle_online_users")
}

func TestServer_RequestIDHeader(t *testing.T) {
	s := newTestServer(t)

	rec := request(s, http.MethodGet, "/healthz", "", "")
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestHTTPErrorHandler_WithStackTrace(t *testing.T) {
	e := echo.New()

	var logBuffer bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuffer, &slog.HandlerOptions{AddSource: true}))
	originalLogger := slog.Default()
	slog.SetDefault(logger)
	defer slog.SetDefault(originalLogger)

	setupErrorHandling(e)
	e.GET("/test-unhandled-error", func(c echo.Context) error {
		return errors.New("a deliberate unhandled error occurred")
	})
	e.GET("/test-http-error", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "short and stout")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test-unhandled-error", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	logOutput := logBuffer.String()
	assert.Contains(t, logOutput, "Internal Server Error (Unhandled)")
	assert.Contains(t, logOutput, "error=\"a deliberate unhandled error occurred\"")
	assert.Contains(t, logOutput, "stack_trace=")
	assert.Contains(t, logOutput, "runtime/debug/stack.go")

	logBuffer.Reset()
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test-http-error", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotContains(t, logBuffer.String(), "Unhandled", "HTTP errors are expected and not logged as unhandled")
}
