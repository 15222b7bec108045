// Package router wires handlers and the tenant middleware chain onto Echo.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-manager/internal/database"
	"github.com/iliyamo/clinic-manager/internal/handler"
	"github.com/iliyamo/clinic-manager/internal/model"
)

// Chain holds the per-request stages in the order they run:
// Tenant -> Session -> RateLimit -> Authorize -> Cache.  RootDomain guards
// the routes that exist only outside any tenant.
type Chain struct {
	RootDomain echo.MiddlewareFunc
	Tenant     echo.MiddlewareFunc
	Session   echo.MiddlewareFunc
	RateLimit echo.MiddlewareFunc
	Authorize echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

// Handlers are the endpoint implementations.
type Handlers struct {
	Auth          *handler.AuthHandler
	Users         *handler.UserHandler
	Organizations *handler.OrganizationHandler
	Appointments  *handler.AppointmentHandler
	Patients      *handler.Resource[model.Patient]
	Doctors       *handler.Resource[model.Doctor]
	Drugs         *handler.Resource[model.Drug]
	Services      *handler.Resource[model.Service]
	Slots         *handler.Resource[model.Slot]
}

// RegisterRoutes registers routes that need neither a tenant nor a session.
func RegisterRoutes(e *echo.Echo, reg *database.Registry, mw Chain, h Handlers) {
	e.GET("/healthz", handler.Health(reg))
	e.POST("/api/v1/organizations", h.Organizations.Signup, mw.RootDomain, mw.RateLimit)
}

// RegisterTenant registers the tenant API.  Auth endpoints resolve the
// tenant and an optional session but skip the gate; everything else passes
// the full chain.  Of the auth routes only register changes cached data
// (it adds a patient), so only it runs Cache, which then just invalidates.
func RegisterTenant(e *echo.Echo, mw Chain, h Handlers) {
	auth := e.Group("/api/v1/auth", mw.Tenant, mw.Session, mw.RateLimit)
	auth.POST("/register", h.Auth.Register, mw.Cache)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/logout", h.Auth.Logout)
	auth.POST("/otp/request", h.Auth.RequestOTP)
	auth.POST("/otp/verify", h.Auth.VerifyOTP)

	g := e.Group("/api/v1", mw.Tenant, mw.Session, mw.RateLimit, mw.Authorize, mw.Cache)
	g.GET("/me", h.Auth.Me)
	g.GET("/organization", h.Organizations.Current)
	g.DELETE("/organization", h.Organizations.Delete)

	g.GET("/users", h.Users.List)
	g.POST("/users", h.Users.Create)
	g.GET("/users/:id", h.Users.Get)
	g.PUT("/users/:id", h.Users.Update)
	g.DELETE("/users/:id", h.Users.Delete)

	g.GET("/appointments", h.Appointments.List)
	g.POST("/appointments", h.Appointments.Create)
	g.GET("/appointments/:id", h.Appointments.Get)
	g.PUT("/appointments/:id", h.Appointments.Update)
	g.DELETE("/appointments/:id", h.Appointments.Delete)
	g.PATCH("/appointments/:id/status", h.Appointments.ChangeStatus)
	g.POST("/appointments/:id/reschedule", h.Appointments.Reschedule)

	crud(g, "/patients", h.Patients)
	crud(g, "/doctors", h.Doctors)
	crud(g, "/drugs", h.Drugs)
	crud(g, "/services", h.Services)
	crud(g, "/slots", h.Slots)
}

func crud[T any](g *echo.Group, path string, r *handler.Resource[T]) {
	g.GET(path, r.List)
	g.POST(path, r.Create)
	g.GET(path+"/:id", r.Get)
	g.PUT(path+"/:id", r.Update)
	g.DELETE(path+"/:id", r.Delete)
}
