package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/clinic-manager/internal/model"
	"github.com/iliyamo/clinic-manager/internal/repository"
	"github.com/iliyamo/clinic-manager/internal/utils"
)

// UserHandler manages staff and patient accounts of a clinic.
type UserHandler struct {
	Deps
	BcryptCost int
}

func NewUserHandler(d Deps, bcryptCost int) *UserHandler {
	return &UserHandler{Deps: d, BcryptCost: bcryptCost}
}

type userReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	IsActive *bool  `json:"is_active"`
}

func (h *UserHandler) List(c echo.Context) error {
	conn, err := tenantConn(c)
	if err != nil {
		return h.fail(c, err)
	}
	q, err := listQuery(c, "role", "email", "is_active")
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	users, err := h.Models.Users(conn).Find(ctx, q)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": users})
}

func (h *UserHandler) Get(c echo.Context) error {
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
	u, err := h.Models.Users(conn).FindByID(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *UserHandler) Create(c echo.Context) error {
	s, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	conn, err := tenantConn(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req userReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = utils.NormalizeEmail(req.Email)
	if req.Email == "" || len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and an 8+ character password are required"})
	}
	if !model.ValidRole(req.Role) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be admin, doctor, staff or patient"})
	}
	hash, err := utils.HashPassword(req.Password, h.BcryptCost)
	if err != nil {
		return h.fail(c, err)
	}
	u := model.User{Email: req.Email, PasswordHash: hash, Name: strings.TrimSpace(req.Name), Role: req.Role, IsActive: true}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.Models.Users(conn).Create(ctx, s.UserID, &u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, u)
}

// Update changes name, role, activity and optionally the password.  Admins
// cannot demote or deactivate themselves.
func (h *UserHandler) Update(c echo.Context) error {
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
	var req userReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	users := h.Models.Users(conn)
	u, err := users.FindByID(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	if req.Name != "" {
		u.Name = strings.TrimSpace(req.Name)
	}
	if req.Role != "" {
		if !model.ValidRole(req.Role) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role"})
		}
		u.Role = req.Role
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if id == s.UserID && (u.Role != model.RoleAdmin || !u.IsActive) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "cannot demote or deactivate yourself"})
	}
	if req.Password != "" {
		if len(req.Password) < 8 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
		}
		if u.PasswordHash, err = utils.HashPassword(req.Password, h.BcryptCost); err != nil {
			return h.fail(c, err)
		}
	}
	if err := users.Update(ctx, s.UserID, &u); err != nil {
		return h.fail(c, err)
	}
	if !u.IsActive || req.Password != "" {
		if err := repository.NewTokenRepo(conn).RevokeAllForUser(ctx, u.ID); err != nil {
			return h.fail(c, err)
		}
	}
	return c.JSON(http.StatusOK, u)
}

func (h *UserHandler) Delete(c echo.Context) error {
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
	if id == s.UserID {
		return c.JSON(http.StatusConflict, echo.Map{"error": "cannot delete yourself"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.Models.Users(conn).Delete(ctx, id); err != nil {
		return h.fail(c, err)
	}
	if err := repository.NewTokenRepo(conn).RevokeAllForUser(ctx, id); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
