package server

import (
	"github.com/labstack/echo/v4"

	"github.com/nfrund/huddle/internal/handlers"
	"github.com/nfrund/huddle/internal/middleware"
)

// registerRoutes sets up all the application routes.
func (s *Server) registerRoutes(deps Deps) {
	chats := handlers.NewChatHandler(deps.Store, deps.Config.MessagePageSize)
	presence := handlers.NewPresenceHandler(deps.Hub.Registry(), deps.Health)
	rateLimiter := middleware.RateLimiter(deps.Config.ChatCreateRateLimit)

	s.E.GET("/ws", deps.Bridge.Handler())

	api := s.E.Group("/api", middleware.Identity())
	api.GET("/chats", chats.List)
	api.POST("/chats", chats.Create, rateLimiter)
	api.GET("/chats/:chatId", chats.Get)
	api.DELETE("/chats/:chatId", chats.Delete)
	api.GET("/chats/:chatId/messages", chats.Messages)
	api.GET("/presence", presence.GetPresence)

	if deps.Files != nil {
		s.E.GET(deps.Config.UploadBaseURL+"/*", deps.Files.Serve)
	}
	if deps.Metrics != nil {
		s.E.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))
	}
	s.E.GET("/healthz", presence.HealthCheck)
}
