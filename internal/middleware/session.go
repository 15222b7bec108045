package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-manager/internal/access"
)

// Verifier turns a raw bearer token into a session.
type Verifier func(raw string) (*access.Session, error)

// Session resolves the optional caller identity.  A missing Authorization
// header leaves the session nil; a token that does not verify is rejected
// with 401.  A token issued by another organization is rejected with 403.
func Session(verify Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if auth == "" {
				return next(c)
			}
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			s, err := verify(strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			if s.Tenant != TenantKey(c) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "token belongs to another organization"})
			}
			c.Set(ctxSession, s)
			return next(c)
		}
	}
}

// SessionFrom returns the caller's session or nil.
func SessionFrom(c echo.Context) *access.Session {
	s, _ := c.Get(ctxSession).(*access.Session)
	return s
}

// userID identifies the caller for rate limiting and caching.
func userID(c echo.Context) string {
	if s := SessionFrom(c); s != nil {
		return strconv.FormatUint(s.UserID, 10)
	}
	return "guest"
}
