package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-manager/internal/database"
	"github.com/iliyamo/clinic-manager/internal/model"
	"github.com/iliyamo/clinic-manager/internal/repository"
	"github.com/iliyamo/clinic-manager/internal/service"
)

// Resource serves plain CRUD for one entity kind.  Which model it touches is
// decided by bind from the request's tenant connection.
type Resource[T any] struct {
	Deps
	bind     func(*repository.Factory, *database.Conn) *repository.Model[T]
	filters  []string
	validate func(v, prev *T) error // prev is nil on create
}

func (r *Resource[T]) model(c echo.Context) (*repository.Model[T], error) {
	conn, err := tenantConn(c)
	if err != nil {
		return nil, err
	}
	return r.bind(r.Models, conn), nil
}

func (r *Resource[T]) List(c echo.Context) error {
	m, err := r.model(c)
	if err != nil {
		return r.fail(c, err)
	}
	q, err := listQuery(c, r.filters...)
	if err != nil {
		return r.fail(c, err)
	}
	ctx, cancel := r.ctx(c)
	defer cancel()
	items, err := m.Find(ctx, q)
	if err != nil {
		return r.fail(c, err)
	}
	total, err := m.Count(ctx, q.Filters...)
	if err != nil {
		return r.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "total": total, "limit": q.Limit, "offset": q.Offset})
}

func (r *Resource[T]) Get(c echo.Context) error {
	m, err := r.model(c)
	if err != nil {
		return r.fail(c, err)
	}
	id, err := parseID(c)
	if err != nil {
		return r.fail(c, err)
	}
	ctx, cancel := r.ctx(c)
	defer cancel()
	v, err := m.FindByID(ctx, id)
	if err != nil {
		return r.fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (r *Resource[T]) Create(c echo.Context) error {
	s, err := actor(c)
	if err != nil {
		return r.fail(c, err)
	}
	m, err := r.model(c)
	if err != nil {
		return r.fail(c, err)
	}
	var v T
	if err := c.Bind(&v); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if r.validate != nil {
		if err := r.validate(&v, nil); err != nil {
			return r.fail(c, err)
		}
	}
	ctx, cancel := r.ctx(c)
	defer cancel()
	if err := m.Create(ctx, s.UserID, &v); err != nil {
		return r.fail(c, err)
	}
	return c.JSON(http.StatusCreated, v)
}

// Update replaces every writable field of the row with the request body.
func (r *Resource[T]) Update(c echo.Context) error {
	s, err := actor(c)
	if err != nil {
		return r.fail(c, err)
	}
	m, err := r.model(c)
	if err != nil {
		return r.fail(c, err)
	}
	id, err := parseID(c)
	if err != nil {
		return r.fail(c, err)
	}
	ctx, cancel := r.ctx(c)
	defer cancel()
	v, err := m.FindByID(ctx, id)
	if err != nil {
		return r.fail(c, err)
	}
	prev := v
	if err := c.Bind(&v); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if r.validate != nil {
		if err := r.validate(&v, &prev); err != nil {
			return r.fail(c, err)
		}
	}
	if err := m.UpdateByID(ctx, s.UserID, id, &v); err != nil {
		return r.fail(c, err)
	}
	stored, err := m.FindByID(ctx, id)
	if err != nil {
		return r.fail(c, err)
	}
	return c.JSON(http.StatusOK, stored)
}

func (r *Resource[T]) Delete(c echo.Context) error {
	m, err := r.model(c)
	if err != nil {
		return r.fail(c, err)
	}
	id, err := parseID(c)
	if err != nil {
		return r.fail(c, err)
	}
	ctx, cancel := r.ctx(c)
	defer cancel()
	if err := m.Delete(ctx, id); err != nil {
		return r.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return wrapInvalid(field + " is required")
	}
	return nil
}

func wrapInvalid(msg string) error { return &invalidErr{msg} }

type invalidErr struct{ msg string }

func (e *invalidErr) Error() string { return e.msg }
func (e *invalidErr) Unwrap() error { return service.ErrInvalidInput }

func NewPatients(d Deps) *Resource[model.Patient] {
	return &Resource[model.Patient]{
		Deps:    d,
		bind:    (*repository.Factory).Patients,
		filters: []string{"user_id", "email", "last_name"},
		validate: func(p, _ *model.Patient) error {
			if err := required("first_name", p.FirstName); err != nil {
				return err
			}
			return required("last_name", p.LastName)
		},
	}
}

func NewDoctors(d Deps) *Resource[model.Doctor] {
	return &Resource[model.Doctor]{
		Deps:    d,
		bind:    (*repository.Factory).Doctors,
		filters: []string{"user_id", "specialty", "is_active"},
		validate: func(doc, _ *model.Doctor) error {
			if err := required("first_name", doc.FirstName); err != nil {
				return err
			}
			return required("last_name", doc.LastName)
		},
	}
}

func NewDrugs(d Deps) *Resource[model.Drug] {
	return &Resource[model.Drug]{
		Deps:    d,
		bind:    (*repository.Factory).Drugs,
		filters: []string{"name", "form", "manufacturer"},
		validate: func(dr, _ *model.Drug) error {
			if dr.Stock < 0 || dr.PriceCents < 0 {
				return wrapInvalid("stock and price_cents must not be negative")
			}
			return required("name", dr.Name)
		},
	}
}

func NewServices(d Deps) *Resource[model.Service] {
	return &Resource[model.Service]{
		Deps:    d,
		bind:    (*repository.Factory).Services,
		filters: []string{"is_active"},
		validate: func(s, _ *model.Service) error {
			if s.DurationMin <= 0 {
				return wrapInvalid("duration_min must be positive")
			}
			return required("name", s.Name)
		},
	}
}

// NewSlots never lets a client set is_booked; only bookings move it.
func NewSlots(d Deps) *Resource[model.Slot] {
	return &Resource[model.Slot]{
		Deps:    d,
		bind:    (*repository.Factory).Slots,
		filters: []string{"doctor_id", "is_booked"},
		validate: func(s, prev *model.Slot) error {
			s.IsBooked = prev != nil && prev.IsBooked
			if s.DoctorID == 0 {
				return wrapInvalid("doctor_id is required")
			}
			if !s.EndsAt.After(s.StartsAt) {
				return wrapInvalid("ends_at must be after starts_at")
			}
			return nil
		},
	}
}
