package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/clinic-manager/internal/access"
	"github.com/iliyamo/clinic-manager/internal/database"
	"github.com/iliyamo/clinic-manager/internal/middleware"
	"github.com/iliyamo/clinic-manager/internal/repository"
	"github.com/iliyamo/clinic-manager/internal/service"
)

// Deps is what every tenant handler needs.
type Deps struct {
	Models  *repository.Factory
	Timeout time.Duration
	Logger  *zap.Logger
}

func (d Deps) ctx(c echo.Context) (context.Context, context.CancelFunc) {
	t := d.Timeout
	if t <= 0 {
		t = 5 * time.Second
	}
	return context.WithTimeout(c.Request().Context(), t)
}

// tenantConn returns the connection the Tenant middleware bound.
func tenantConn(c echo.Context) (*database.Conn, error) {
	conn := middleware.TenantConn(c)
	if conn == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "organization not found")
	}
	return conn, nil
}

// actor is the caller's session.  Routes behind Authorize always have one.
func actor(c echo.Context) (access.Session, error) {
	s := middleware.SessionFrom(c)
	if s == nil {
		return access.Session{}, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return *s, nil
}

func parseID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// listQuery reads limit/offset and the allowed equality filters.
func listQuery(c echo.Context, filters ...string) (repository.Query, error) {
	q := repository.Query{Limit: 50}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			return q, echo.NewHTTPError(http.StatusBadRequest, "limit must be 1..500")
		}
		q.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
		}
		q.Offset = n
	}
	for _, f := range filters {
		v := strings.TrimSpace(c.QueryParam(f))
		if v == "" {
			continue
		}
		// booleans are stored as TINYINT
		if b, err := strconv.ParseBool(v); err == nil && strings.HasPrefix(f, "is_") {
			q.Filters = append(q.Filters, repository.Where(f, b))
			continue
		}
		q.Filters = append(q.Filters, repository.Where(f, v))
	}
	return q, nil
}

// fail turns an error from the layers below into a JSON response.
func (d Deps) fail(c echo.Context, err error) error {
	var he *echo.HTTPError
	var ce *database.ConnectionError
	switch {
	case errors.As(err, &he):
		return c.JSON(he.Code, echo.Map{"error": he.Message})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrUnknownColumn):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown filter"})
	case errors.Is(err, service.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.As(err, &ce):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "organization temporarily unavailable"})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": "timeout"})
	}
	d.Logger.Error("request failed",
		zap.String("tenant", middleware.TenantKey(c)),
		zap.String("path", c.Path()),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
