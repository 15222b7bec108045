package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/clinic-manager/internal/database"
	"github.com/iliyamo/clinic-manager/internal/model"
	"github.com/iliyamo/clinic-manager/internal/tenant"
)

// Context keys set by the tenant chain.
const (
	ctxTenantKey  = "tenant_key"
	ctxTenantConn = "tenant_conn"
	ctxOrg        = "organization"
	ctxSession    = "session"
)

// OrganizationLookup resolves an active organization by key.
type OrganizationLookup interface {
	Lookup(ctx context.Context, key string) (model.Organization, error)
}

// ConnectionSource hands out the connection for a tenant key.
type ConnectionSource interface {
	Get(ctx context.Context, key string) (*database.Conn, error)
}

// Tenant resolves the tenant from the Host header, confirms it is an active
// organization and binds its connection to the request.  Requests without a
// tenant, or for an unknown one, get 404; an unreachable tenant database
// gets 503.
func Tenant(res *tenant.Resolver, orgs OrganizationLookup, conns ConnectionSource, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key, ok := res.Resolve(c.Request().Host)
			if !ok {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "organization not found"})
			}
			ctx := c.Request().Context()
			org, err := orgs.Lookup(ctx, key)
			if errors.Is(err, tenant.ErrUnknownOrganization) {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "organization not found"})
			}
			if err != nil {
				logger.Error("organization lookup failed", zap.String("tenant", key), zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
			}
			conn, err := conns.Get(ctx, key)
			if err != nil {
				var ce *database.ConnectionError
				if errors.As(err, &ce) || errors.Is(err, database.ErrClosed) {
					logger.Warn("tenant database unavailable", zap.String("tenant", key), zap.Error(err))
					return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "organization temporarily unavailable"})
				}
				logger.Error("tenant connection failed", zap.String("tenant", key), zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
			}
			c.Set(ctxTenantKey, key)
			c.Set(ctxTenantConn, conn)
			c.Set(ctxOrg, org)
			return next(c)
		}
	}
}

// RootDomain admits only requests whose host names no tenant, such as
// clinic signup on the bare domain.  Anything else gets 404.
func RootDomain(res *tenant.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := res.Resolve(c.Request().Host); ok {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
			}
			return next(c)
		}
	}
}

// TenantConn returns the connection bound by Tenant, or nil outside the chain.
func TenantConn(c echo.Context) *database.Conn {
	conn, _ := c.Get(ctxTenantConn).(*database.Conn)
	return conn
}

// TenantKey returns the resolved tenant key, or "" outside the chain.
func TenantKey(c echo.Context) string {
	k, _ := c.Get(ctxTenantKey).(string)
	return k
}

// Organization returns the organization bound by Tenant.
func Organization(c echo.Context) (model.Organization, bool) {
	o, ok := c.Get(ctxOrg).(model.Organization)
	return o, ok
}
