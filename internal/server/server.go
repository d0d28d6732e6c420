package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/nfrund/huddle/internal/config"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/handlers"
	"github.com/nfrund/huddle/internal/hub"
	"github.com/nfrund/huddle/internal/metrics"
	"github.com/nfrund/huddle/internal/middleware"
	"github.com/nfrund/huddle/internal/storage"
	"github.com/nfrund/huddle/internal/websocket"
)

// Deps are the services the HTTP server routes to.
type Deps struct {
	Config  *config.Config
	Store   domain.Store
	Hub     *hub.Hub
	Bridge  *websocket.Bridge
	Files   *storage.FileHandler
	Metrics *metrics.Metrics
	// Health names the dependencies reported by /healthz.
	Health map[string]handlers.HealthChecker
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	E      *echo.Echo
	cfg    *config.Config
	bridge *websocket.Bridge
}

// New builds the echo instance with middleware and routes.
func New(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()

	setupErrorHandling(e)
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger)
	e.Use(echomw.Recover())
	if deps.Metrics != nil {
		e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
			Namespace:  "huddle",
			Registerer: deps.Metrics.Registry(),
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/ws" || c.Path() == "/metrics"
			},
		}))
	}

	store := sessions.NewCookieStore([]byte(deps.Config.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
	}
	e.Use(session.Middleware(store))

	s := &Server{E: e, cfg: deps.Config, bridge: deps.Bridge}
	s.registerRoutes(deps)
	return s
}

// setupErrorHandling logs unhandled errors with a stack trace and keeps
// echo's default responses.
func setupErrorHandling(e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if _, ok := err.(*echo.HTTPError); !ok {
			slog.Error("Internal Server Error (Unhandled)",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"error", err,
				"stack_trace", string(debug.Stack()),
			)
			err = echo.NewHTTPError(http.StatusInternalServerError)
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
}
