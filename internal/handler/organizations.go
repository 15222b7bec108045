package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-manager/internal/middleware"
	"github.com/iliyamo/clinic-manager/internal/service"
)

// OrganizationHandler covers clinic signup on the root domain and the
// current clinic's own record on its subdomain.
type OrganizationHandler struct {
	Deps
	Svc *service.OrganizationService
}

func NewOrganizationHandler(d Deps, svc *service.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{Deps: d, Svc: svc}
}

// Signup handles POST /api/v1/organizations.  Provisioning a database takes
// longer than a normal request, so it gets a wider budget.
func (h *OrganizationHandler) Signup(c echo.Context) error {
	var req service.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	d := h.Deps
	d.Timeout = 6 * h.Timeout
	ctx, cancel := d.ctx(c)
	defer cancel()
	org, err := h.Svc.Signup(ctx, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, org)
}

// Current returns the organization behind the request host.
func (h *OrganizationHandler) Current(c echo.Context) error {
	org, ok := middleware.Organization(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "organization not found"})
	}
	return c.JSON(http.StatusOK, org)
}

// Delete removes the current organization and its database.
func (h *OrganizationHandler) Delete(c echo.Context) error {
	key := middleware.TenantKey(c)
	if key == "" {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "organization not found"})
	}
	d := h.Deps
	d.Timeout = 6 * h.Timeout
	ctx, cancel := d.ctx(c)
	defer cancel()
	if err := h.Svc.Delete(ctx, key); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
