package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdentityServer(store sessions.Store) *echo.Echo {
	e := echo.New()
	e.Use(session.Middleware(store))
	e.GET("/me", func(c echo.Context) error {
		return c.String(http.StatusOK, UserID(c))
	}, Identity())

	// login stands in for the external auth service issuing a session.
	e.POST("/login", func(c echo.Context) error {
		sess, err := session.Get(SessionName, c)
		if err != nil {
			return err
		}
		sess.Values[SessionUserKey] = c.QueryParam("user")
		if err := sess.Save(c.Request(), c.Response()); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	})
	return e
}

func TestIdentity(t *testing.T) {
	store := sessions.NewCookieStore([]byte("test-secret"))
	e := newIdentityServer(store)

	t.Run("rejects anonymous requests", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("accepts proxy header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(HeaderUserID, "u-header")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u-header", rec.Body.String())
	})

	t.Run("prefers session cookie", func(t *testing.T) {
		loginRec := httptest.NewRecorder()
		e.ServeHTTP(loginRec, httptest.NewRequest(http.MethodPost, "/login?user=u-session", nil))
		require.Equal(t, http.StatusNoContent, loginRec.Code)
		cookies := loginRec.Result().Cookies()
		require.NotEmpty(t, cookies)

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(HeaderUserID, "u-header")
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u-session", rec.Body.String())
	})
}
