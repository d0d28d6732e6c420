package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/middleware"
)

// DefaultPageSize is the number of messages per history page.
const DefaultPageSize = 20

// ChatHandler serves the chat and message history REST API. Every route
// requires an identity set by middleware.Identity.
type ChatHandler struct {
	store    domain.Store
	pageSize int
}

// NewChatHandler creates a chat handler. A non-positive pageSize uses DefaultPageSize.
func NewChatHandler(store domain.Store, pageSize int) *ChatHandler {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &ChatHandler{store: store, pageSize: pageSize}
}

// List handles GET /api/chats.
func (h *ChatHandler) List(c echo.Context) error {
	summaries, err := h.store.ListChatSummaries(c.Request().Context(), middleware.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	if summaries == nil {
		summaries = []domain.ChatSummary{}
	}
	return c.JSON(http.StatusOK, summaries)
}

// Create handles POST /api/chats. A one-to-one chat between two users who
// already share one returns the existing chat with 200.
func (h *ChatHandler) Create(c echo.Context) error {
	userID := middleware.UserID(c)

	var req CreateChatRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "bad_request", "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "validation", err.Error())
	}

	members := lo.Uniq(append(lo.Compact(req.ParticipantIDs), userID))
	ctx := c.Request().Context()

	if !req.IsGroup {
		if len(members) != 2 {
			return errorJSON(c, http.StatusBadRequest, "validation", "one-to-one chats must have exactly two participants")
		}
		other, _ := lo.Find(members, func(id string) bool { return id != userID })
		existing, err := h.store.FindDirectChat(ctx, userID, other)
		switch {
		case err == nil:
			return c.JSON(http.StatusOK, existing)
		case !errors.Is(err, domain.ErrNotFound):
			return respondError(c, err)
		}
	}

	created, err := h.store.CreateChat(ctx, req.toDomain(userID))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// Get handles GET /api/chats/:chatId.
func (h *ChatHandler) Get(c echo.Context) error {
	found, err := h.authorizedChat(c, c.Param("chatId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, found)
}

// Delete handles DELETE /api/chats/:chatId.
func (h *ChatHandler) Delete(c echo.Context) error {
	chatID := c.Param("chatId")
	if _, err := h.authorizedChat(c, chatID); err != nil {
		return respondError(c, err)
	}
	if err := h.store.DeleteChat(c.Request().Context(), chatID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Messages handles GET /api/chats/:chatId/messages?cursor=. Pages run from
// newest to oldest; messages inside a page are oldest first.
func (h *ChatHandler) Messages(c echo.Context) error {
	var q MessagesQuery
	if err := c.Bind(&q); err != nil {
		return errorJSON(c, http.StatusBadRequest, "bad_request", "invalid query")
	}
	if err := c.Validate(&q); err != nil {
		return errorJSON(c, http.StatusBadRequest, "validation", err.Error())
	}
	if _, err := h.authorizedChat(c, q.ChatID); err != nil {
		return respondError(c, err)
	}

	page, err := h.store.ListMessages(c.Request().Context(), q.ChatID, q.Cursor, h.pageSize)
	if err != nil {
		return respondError(c, err)
	}
	if page.Messages == nil {
		page.Messages = []domain.Message{}
	}
	return c.JSON(http.StatusOK, page)
}

// authorizedChat loads a chat and checks the caller participates in it.
func (h *ChatHandler) authorizedChat(c echo.Context, chatID string) (*domain.Chat, error) {
	found, err := h.store.GetChat(c.Request().Context(), chatID)
	if err != nil {
		return nil, err
	}
	if !found.HasParticipant(middleware.UserID(c)) {
		return nil, fmt.Errorf("chat %s: %w", chatID, domain.ErrForbidden)
	}
	return found, nil
}
