package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// OnlineLister reports the users with a live connection on this instance.
type OnlineLister interface {
	OnlineUsers() []string
}

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	IsHealthy() bool
}

// PresenceHandler serves presence and health endpoints.
type PresenceHandler struct {
	online OnlineLister
	checks map[string]HealthChecker
}

// NewPresenceHandler creates a presence handler. checks names the
// dependencies reported by /healthz.
func NewPresenceHandler(online OnlineLister, checks map[string]HealthChecker) *PresenceHandler {
	return &PresenceHandler{online: online, checks: checks}
}

// GetPresence returns the current online users as JSON.
func (h *PresenceHandler) GetPresence(c echo.Context) error {
	users := h.online.OnlineUsers()
	if users == nil {
		users = []string{}
	}
	return c.JSON(http.StatusOK, PresenceResponse{OnlineUsers: users, Count: len(users)})
}

// HealthCheck returns 200 when every registered dependency is healthy and
// 503 otherwise.
func (h *PresenceHandler) HealthCheck(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for name, check := range h.checks {
		if check == nil || check.IsHealthy() {
			resp.Checks[name] = "ok"
			continue
		}
		resp.Checks[name] = "unavailable"
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, resp)
}
