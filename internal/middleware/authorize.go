package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-manager/internal/access"
)

// Authorize consults the route table with the resolved session and maps a
// refusal onto 401 or 403.
func Authorize(table *access.Table) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			switch table.Authorize(r.Method, r.URL.Path, SessionFrom(c)) {
			case access.Allowed:
				return next(c)
			case access.Unauthenticated:
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			default:
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
		}
	}
}
