package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-manager/internal/model"
	"github.com/iliyamo/clinic-manager/internal/repository"
	"github.com/iliyamo/clinic-manager/internal/service"
)

// AppointmentHandler exposes booking and the status workflow.
type AppointmentHandler struct {
	Deps
	Svc *service.AppointmentService
}

func NewAppointmentHandler(d Deps, svc *service.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{Deps: d, Svc: svc}
}

func (h *AppointmentHandler) List(c echo.Context) error {
	s, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	conn, err := tenantConn(c)
	if err != nil {
		return h.fail(c, err)
	}
	q, err := listQuery(c, "status", "doctor_id", "patient_id", "service_id")
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	items, err := h.Svc.List(ctx, conn, s, q)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "limit": q.Limit, "offset": q.Offset})
}

func (h *AppointmentHandler) Get(c echo.Context) error {
	s, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	conn, err := tenantConn(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := parseID(c)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	a, err := h.Svc.Get(ctx, conn, s, id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *AppointmentHandler) Create(c echo.Context) error {
	s, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	conn, err := tenantConn(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req service.BookRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	a, err := h.Svc.Book(ctx, conn, s, req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

type notesReq struct {
	Reason *string `json:"reason"`
	Notes  *string `json:"notes"`
}

// Update edits reason and notes only; status and slot have their own
// endpoints.
func (h *AppointmentHandler) Update(c echo.Context) error {
	s, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	conn, err := tenantConn(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := parseID(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req notesReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	appts := h.Models.Appointments(conn)
	a, err := appts.FindByID(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	if req.Reason != nil {
		a.Reason = strings.TrimSpace(*req.Reason)
	}
	if req.Notes != nil {
		a.Notes = *req.Notes
	}
	if err := appts.Update(ctx, s.UserID, &a); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// Delete removes the appointment and frees its slot if it still held one.
func (h *AppointmentHandler) Delete(c echo.Context) error {
	s, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	conn, err := tenantConn(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := parseID(c)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	appts := h.Models.Appointments(conn)
	a, err := appts.FindByID(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	if err := appts.Delete(ctx, id); err != nil {
		return h.fail(c, err)
	}
	if a.Status != model.StatusCancelled {
		err := repository.ReleaseSlot(ctx, h.Models.Slots(conn), s.UserID, a.SlotID)
		if err != nil && !errors.Is(err, repository.ErrConflict) && !errors.Is(err, repository.ErrNotFound) {
			return h.fail(c, err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

type statusReq struct {
	Status string `json:"status"`
}

// ChangeStatus handles PATCH /appointments/:id/status.
func (h *AppointmentHandler) ChangeStatus(c echo.Context) error {
	s, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	conn, err := tenantConn(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := parseID(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req statusReq
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status required"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	a, err := h.Svc.ChangeStatus(ctx, conn, s, id, strings.ToLower(strings.TrimSpace(req.Status)))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

type rescheduleReq struct {
	SlotID uint64 `json:"slot_id"`
}

// Reschedule handles POST /appointments/:id/reschedule.
func (h *AppointmentHandler) Reschedule(c echo.Context) error {
	s, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	conn, err := tenantConn(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := parseID(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req rescheduleReq
	if err := c.Bind(&req); err != nil || req.SlotID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "slot_id required"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	a, err := h.Svc.Reschedule(ctx, conn, s, id, req.SlotID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}
