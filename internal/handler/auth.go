package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/clinic-manager/internal/config"
	"github.com/iliyamo/clinic-manager/internal/middleware"
	"github.com/iliyamo/clinic-manager/internal/model"
	"github.com/iliyamo/clinic-manager/internal/repository"
	"github.com/iliyamo/clinic-manager/internal/service"
	"github.com/iliyamo/clinic-manager/internal/utils"
)

// AuthHandler issues and revokes tokens for the tenant behind the request.
type AuthHandler struct {
	Deps
	Cfg config.Config
	OTP *service.OTPService // nil when Redis is unavailable
}

func NewAuthHandler(d Deps, cfg config.Config, otp *service.OTPService) *AuthHandler {
	return &AuthHandler{Deps: d, Cfg: cfg, OTP: otp}
}

// ----- DTOs -----

type registerReq struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type otpReq struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// issue mints an access/refresh pair for u and stores the refresh hash in
// the tenant database.
func (h *AuthHandler) issue(c echo.Context, status int, u model.User) error {
	conn, err := tenantConn(c)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	acc, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, conn.Tenant(), h.Cfg.AccessTTLMin)
	if err != nil {
		return h.fail(c, err)
	}
	ref, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return h.fail(c, err)
	}
	if err := repository.NewTokenRepo(conn).StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(ref.Raw), ref.Exp); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(status, authResp{
		User:    userPart{ID: u.ID, Email: u.Email, Role: u.Role},
		Access:  tokenPart{Token: acc.Token, Expires: acc.Exp},
		Refresh: tokenPart{Token: ref.Raw, Expires: ref.Exp},
	})
}

// Register creates a patient account together with its patient record.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = utils.NormalizeEmail(req.Email)
	if req.Email == "" || len(req.Password) < 8 || strings.TrimSpace(req.FirstName) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email, first_name and an 8+ character password are required"})
	}
	conn, err := tenantConn(c)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return h.fail(c, err)
	}
	u := model.User{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(req.FirstName + " " + req.LastName),
		Role:         model.RolePatient,
		IsActive:     true,
	}
	if err := h.Models.Users(conn).Create(ctx, 0, &u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return h.fail(c, err)
	}
	p := model.Patient{
		UserID:    u.ID,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     req.Email,
		Phone:     strings.TrimSpace(req.Phone),
	}
	if err := h.Models.Patients(conn).Create(ctx, u.ID, &p); err != nil {
		// drop the account again so the address can retry
		if derr := h.Models.Users(conn).Delete(context.WithoutCancel(ctx), u.ID); derr != nil {
			h.Logger.Error("remove user after failed registration", zap.String("tenant", conn.Tenant()),
				zap.Uint64("user_id", u.ID), zap.Error(derr))
		}
		return h.fail(c, err)
	}
	return h.issue(c, http.StatusCreated, u)
}

// Login verifies email and password.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = utils.NormalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	conn, err := tenantConn(c)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	u, err := h.Models.Users(conn).FindOne(ctx, repository.Where("email", req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return h.fail(c, err)
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	return h.issue(c, http.StatusOK, u)
}

// Refresh rotates a refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	conn, err := tenantConn(c)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	tokens := repository.NewTokenRepo(conn)
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))
	userID, err := tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return h.fail(c, err)
	}
	if err := tokens.RevokeByHash(ctx, hash); err != nil {
		// lost a race with another rotation of the same token
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return h.fail(c, err)
	}
	u, err := h.Models.Users(conn).FindByID(ctx, userID)
	if err != nil || !u.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	return h.issue(c, http.StatusOK, u)
}

// Logout revokes one refresh token when given, otherwise every refresh
// token of the calling user.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)
	conn, err := tenantConn(c)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	tokens := repository.NewTokenRepo(conn)

	if raw != "" {
		hash := utils.HashRefreshRaw(raw)
		if _, err := tokens.ValidateRefresh(ctx, hash); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		if err := tokens.RevokeByHash(ctx, hash); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
			}
			return h.fail(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	if s := middleware.SessionFrom(c); s != nil {
		if err := tokens.RevokeAllForUser(ctx, s.UserID); err != nil {
			return h.fail(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "provide Authorization header or refresh_token"})
}

// RequestOTP emails a one-time login code.
func (h *AuthHandler) RequestOTP(c echo.Context) error {
	if h.OTP == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "one-time codes are unavailable"})
	}
	var req otpReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	conn, err := tenantConn(c)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.OTP.Request(ctx, conn, req.Email); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"status": "sent"})
}

// VerifyOTP trades a code for a token pair.
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	if h.OTP == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "one-time codes are unavailable"})
	}
	var req otpReq
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and code required"})
	}
	conn, err := tenantConn(c)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	u, err := h.OTP.Verify(ctx, conn, req.Email, strings.TrimSpace(req.Code))
	if err != nil {
		if errors.Is(err, service.ErrOTPInvalid) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
		}
		return h.fail(c, err)
	}
	return h.issue(c, http.StatusOK, u)
}

// Me returns the caller's account.
func (h *AuthHandler) Me(c echo.Context) error {
	s, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	conn, err := tenantConn(c)
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	u, err := h.Models.Users(conn).FindByID(ctx, s.UserID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": u, "tenant": conn.Tenant()})
}
