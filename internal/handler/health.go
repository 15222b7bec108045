package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-manager/internal/database"
)

// Health reports liveness plus how many tenant connections are open.
func Health(reg *database.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"status":  "ok",
			"tenants": len(reg.Tenants()),
		})
	}
}
