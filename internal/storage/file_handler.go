package storage

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/middleware"
)

// FileHandler serves uploaded blobs.
type FileHandler struct {
	blobs *BlobStore
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(blobs *BlobStore) *FileHandler {
	return &FileHandler{blobs: blobs}
}

// Serve streams the blob named by the wildcard path parameter.
func (h *FileHandler) Serve(c echo.Context) error {
	ctx := c.Request().Context()
	logger := middleware.FromContext(ctx)

	f, contentType, err := h.blobs.Open(ctx, c.Param("*"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "File not found")
		}
		logger.Error("Failed to open blob", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to read file")
	}
	defer f.Close()

	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	return c.Stream(http.StatusOK, contentType, f)
}
