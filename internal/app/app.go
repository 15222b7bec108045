// Package app assembles the pieces shared by the HTTP server and the
// operator CLI: the system database, the tenant registry and the
// organization directory.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/clinic-manager/internal/config"
	"github.com/iliyamo/clinic-manager/internal/database"
	"github.com/iliyamo/clinic-manager/internal/repository"
	"github.com/iliyamo/clinic-manager/internal/service"
	"github.com/iliyamo/clinic-manager/internal/tenant"
)

type Core struct {
	Registry      *database.Registry
	Models        *repository.Factory
	Organizations *repository.OrganizationRepo
	Directory     *tenant.Directory
	Resolver      *tenant.Resolver
	OrgService    *service.OrganizationService
}

// Open connects to the system database, brings its schema up to date and
// builds the tenant registry on top of it.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Core, error) {
	settings := database.Settings{
		User:         cfg.DBUser,
		Pass:         cfg.DBPass,
		Host:         cfg.DBHost,
		Port:         cfg.DBPort,
		MaxOpenConns: cfg.Tenancy.MaxOpenConns,
	}
	sysDB, err := database.Open(ctx, settings, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("system database: %w", err)
	}
	if err := database.MigrateSystem(ctx, sysDB); err != nil {
		_ = sysDB.Close()
		return nil, fmt.Errorf("system schema: %w", err)
	}

	reg := database.NewRegistry(
		database.NewConn("", cfg.DBName, sysDB),
		cfg.Tenancy.DBPrefix,
		database.MySQLOpener(settings),
		cfg.Tenancy.ConnectTimeout,
		logger,
	)
	orgs := repository.NewOrganizationRepo(reg.Default())
	dir, err := tenant.NewDirectory(orgs, 0, cfg.Tenancy.DirectoryTTL)
	if err != nil {
		_ = reg.CloseAll()
		return nil, err
	}
	models := repository.NewFactory()
	resolver := tenant.NewResolver(cfg.Tenancy.BaseDomainLabels, cfg.Tenancy.ExcludedLabels)

	return &Core{
		Registry:      reg,
		Models:        models,
		Organizations: orgs,
		Directory:     dir,
		Resolver:      resolver,
		OrgService:    service.NewOrganizationService(orgs, reg, models, resolver, dir.Invalidate, cfg.BcryptCost, logger),
	}, nil
}

// Close releases every tenant connection and the system database.
func (c *Core) Close() error {
	c.Directory.Close()
	return c.Registry.CloseAll()
}
