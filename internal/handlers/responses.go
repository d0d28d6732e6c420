package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/huddle/internal/domain"
)

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PresenceResponse lists the users online on this instance.
type PresenceResponse struct {
	OnlineUsers []string `json:"onlineUsers"`
	Count       int      `json:"count"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func errorJSON(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{Code: code, Message: message})
}

// respondError maps domain errors to HTTP responses. Anything unrecognised
// is logged and reported as a 500 without leaking details.
func respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, "not_found", "chat not found")
	case errors.Is(err, domain.ErrForbidden):
		return errorJSON(c, http.StatusForbidden, "forbidden", "not a participant of this chat")
	case errors.Is(err, domain.ErrInvalidChat):
		return errorJSON(c, http.StatusBadRequest, "invalid_chat", err.Error())
	default:
		slog.Error("Request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		return errorJSON(c, http.StatusInternalServerError, "internal", "internal server error")
	}
}
