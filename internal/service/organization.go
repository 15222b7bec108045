package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/clinic-manager/internal/database"
	"github.com/iliyamo/clinic-manager/internal/model"
	"github.com/iliyamo/clinic-manager/internal/repository"
	"github.com/iliyamo/clinic-manager/internal/tenant"
	"github.com/iliyamo/clinic-manager/internal/utils"
)

// OrganizationStore is the system-level directory.
type OrganizationStore interface {
	Create(ctx context.Context, o *model.Organization) error
	GetByKey(ctx context.Context, key string) (model.Organization, error)
	List(ctx context.Context) ([]model.Organization, error)
	SetStatus(ctx context.Context, key, status string) error
	Delete(ctx context.Context, key string) error
}

// SignupRequest registers a clinic and its first administrator.
type SignupRequest struct {
	Key           string `json:"key"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	AdminName     string `json:"admin_name"`
	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"admin_password"`
}

// OrganizationService provisions and removes tenants.
type OrganizationService struct {
	orgs       OrganizationStore
	registry   *database.Registry
	models     *repository.Factory
	resolver   *tenant.Resolver
	invalidate func(key string)
	bcryptCost int
	logger     *zap.Logger
}

func NewOrganizationService(orgs OrganizationStore, registry *database.Registry, models *repository.Factory,
	resolver *tenant.Resolver, invalidate func(key string), bcryptCost int, logger *zap.Logger) *OrganizationService {
	if invalidate == nil {
		invalidate = func(string) {}
	}
	return &OrganizationService{
		orgs:       orgs,
		registry:   registry,
		models:     models,
		resolver:   resolver,
		invalidate: invalidate,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// Signup records the organization, creates and migrates its database and
// seeds the admin account.  A failure after the directory row is written
// undoes what was done so the key can be retried.
func (s *OrganizationService) Signup(ctx context.Context, req SignupRequest) (model.Organization, error) {
	key := strings.ToLower(strings.TrimSpace(req.Key))
	if !tenant.ValidKey(key) || (s.resolver != nil && s.resolver.Excluded(key)) {
		return model.Organization{}, fmt.Errorf("key %q: %w", req.Key, ErrInvalidInput)
	}
	adminEmail := utils.NormalizeEmail(req.AdminEmail)
	if strings.TrimSpace(req.Name) == "" || adminEmail == "" || len(req.AdminPassword) < 8 {
		return model.Organization{}, fmt.Errorf("name, admin_email and an 8+ character admin_password are required: %w", ErrInvalidInput)
	}
	hash, err := utils.HashPassword(req.AdminPassword, s.bcryptCost)
	if err != nil {
		return model.Organization{}, err
	}

	org := model.Organization{Key: key, Name: strings.TrimSpace(req.Name), Email: utils.NormalizeEmail(req.Email), Status: model.OrgActive}
	if org.Email == "" {
		org.Email = adminEmail
	}
	if err := s.orgs.Create(ctx, &org); err != nil {
		return model.Organization{}, err
	}

	if err := s.provision(ctx, key, model.User{
		Email:        adminEmail,
		PasswordHash: hash,
		Name:         strings.TrimSpace(req.AdminName),
		Role:         model.RoleAdmin,
		IsActive:     true,
	}); err != nil {
		s.logger.Error("tenant provisioning failed, rolling back", zap.String("tenant", key), zap.Error(err))
		s.teardown(context.WithoutCancel(ctx), key)
		return model.Organization{}, err
	}
	s.logger.Info("organization created", zap.String("tenant", key), zap.Uint64("org_id", org.ID))
	return org, nil
}

func (s *OrganizationService) provision(ctx context.Context, key string, admin model.User) error {
	ns := database.Namespace(s.registry.Prefix(), key)
	if err := database.Provision(ctx, s.registry.Default().DB(), ns); err != nil {
		return err
	}
	conn, err := s.registry.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := database.Migrate(ctx, conn.DB()); err != nil {
		return err
	}
	return s.models.Users(conn).Create(ctx, 0, &admin)
}

// Delete suspends the organization, closes its connection, drops its
// database and finally removes the directory row.
func (s *OrganizationService) Delete(ctx context.Context, key string) error {
	if _, err := s.orgs.GetByKey(ctx, key); err != nil {
		return err
	}
	if err := s.orgs.SetStatus(ctx, key, model.OrgSuspended); err != nil {
		return err
	}
	s.invalidate(key)
	if err := s.dropTenant(ctx, key); err != nil {
		return err
	}
	if err := s.orgs.Delete(ctx, key); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	s.invalidate(key)
	s.logger.Info("organization deleted", zap.String("tenant", key))
	return nil
}

// List returns the directory.
func (s *OrganizationService) List(ctx context.Context) ([]model.Organization, error) {
	return s.orgs.List(ctx)
}

// Migrate re-applies the tenant tables to every organization's database.
func (s *OrganizationService) Migrate(ctx context.Context) error {
	orgs, err := s.orgs.List(ctx)
	if err != nil {
		return err
	}
	for _, o := range orgs {
		conn, err := s.registry.Get(ctx, o.Key)
		if err != nil {
			return err
		}
		if err := database.Migrate(ctx, conn.DB()); err != nil {
			return fmt.Errorf("tenant %s: %w", o.Key, err)
		}
		s.logger.Info("tenant migrated", zap.String("tenant", o.Key))
	}
	return nil
}

func (s *OrganizationService) dropTenant(ctx context.Context, key string) error {
	conn, err := s.registry.Close(key)
	s.models.Release(conn)
	if err != nil {
		s.logger.Warn("closing tenant connection", zap.String("tenant", key), zap.Error(err))
	}
	return database.Drop(ctx, s.registry.Default().DB(), database.Namespace(s.registry.Prefix(), key))
}

func (s *OrganizationService) teardown(ctx context.Context, key string) {
	if err := s.dropTenant(ctx, key); err != nil {
		s.logger.Error("rollback: drop tenant database", zap.String("tenant", key), zap.Error(err))
	}
	if err := s.orgs.Delete(ctx, key); err != nil {
		s.logger.Error("rollback: delete organization", zap.String("tenant", key), zap.Error(err))
	}
	s.invalidate(key)
}
