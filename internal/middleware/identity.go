package middleware

import (
	"net/http"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

const (
	// UserContextKey holds the caller's user id on the echo context.
	UserContextKey = "userID"

	// SessionName is the cookie session issued by the auth service.
	SessionName = "huddle-session"
	// SessionUserKey is the session value holding the user id.
	SessionUserKey = "user_id"
	// HeaderUserID is set by a trusted auth proxy in front of the service.
	HeaderUserID = "X-User-ID"
)

// Identity resolves the caller from the session cookie, falling back to the
// X-User-ID header. Requests with neither are rejected with 401.
// session.Middleware must run before it.
func Identity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := userFromSession(c)
			if userID == "" {
				userID = c.Request().Header.Get(HeaderUserID)
			}
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
			}

			c.Set(UserContextKey, userID)
			ctx := c.Request().Context()
			logger := FromContext(ctx).With("user_id", userID)
			c.SetRequest(c.Request().WithContext(WithLogger(ctx, logger)))
			logger.Debug("Resolved caller identity")
			return next(c)
		}
	}
}

func userFromSession(c echo.Context) string {
	sess, err := session.Get(SessionName, c)
	if err != nil {
		return ""
	}
	userID, _ := sess.Values[SessionUserKey].(string)
	return userID
}

// UserID returns the caller id set by Identity.
func UserID(c echo.Context) string {
	userID, _ := c.Get(UserContextKey).(string)
	return userID
}
