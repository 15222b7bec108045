package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/clinic-manager/internal/database"
	"github.com/iliyamo/clinic-manager/internal/model"
	"github.com/iliyamo/clinic-manager/internal/repository"
	"github.com/iliyamo/clinic-manager/internal/tenant"
)

type memOrgs struct {
	orgs   map[string]model.Organization
	nextID uint64
}

func newMemOrgs() *memOrgs { return &memOrgs{orgs: map[string]model.Organization{}} }

func (m *memOrgs) Create(_ context.Context, o *model.Organization) error {
	if _, ok := m.orgs[o.Key]; ok {
		return fmt.Errorf("organization %q: %w", o.Key, repository.ErrConflict)
	}
	m.nextID++
	o.ID = m.nextID
	m.orgs[o.Key] = *o
	return nil
}

func (m *memOrgs) GetByKey(_ context.Context, key string) (model.Organization, error) {
	o, ok := m.orgs[key]
	if !ok {
		return o, repository.ErrNotFound
	}
	return o, nil
}

func (m *memOrgs) List(context.Context) ([]model.Organization, error) {
	out := make([]model.Organization, 0, len(m.orgs))
	for _, o := range m.orgs {
		out = append(out, o)
	}
	return out, nil
}

func (m *memOrgs) SetStatus(_ context.Context, key, status string) error {
	o, ok := m.orgs[key]
	if !ok {
		return repository.ErrNotFound
	}
	o.Status = status
	m.orgs[key] = o
	return nil
}

func (m *memOrgs) Delete(_ context.Context, key string) error {
	if _, ok := m.orgs[key]; !ok {
		return repository.ErrNotFound
	}
	delete(m.orgs, key)
	return nil
}

type orgFixture struct {
	svc         *OrganizationService
	orgs        *memOrgs
	registry    *database.Registry
	factory     *repository.Factory
	system      sqlmock.Sqlmock
	tenant      sqlmock.Sqlmock
	invalidated []string
}

func newOrgFixture(t *testing.T) *orgFixture {
	t.Helper()
	def, sysMock := systemConn(t)
	tdb, tmock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = tdb.Close() })

	f := &orgFixture{orgs: newMemOrgs(), factory: repository.NewFactory(), system: sysMock, tenant: tmock}
	f.registry = database.NewRegistry(def, "clinic_", func(_ context.Context, ns string) (*sql.DB, error) {
		return tdb, nil
	}, time.Second, nopLogger)
	f.svc = NewOrganizationService(f.orgs, f.registry, f.factory, tenant.NewResolver(2, []string{"www", "api"}),
		func(key string) { f.invalidated = append(f.invalidated, key) }, bcrypt.MinCost, nopLogger)
	return f
}

func validSignup(key string) SignupRequest {
	return SignupRequest{Key: key, Name: "Acme Clinic", AdminEmail: "Boss@Acme.test", AdminPassword: "correct-horse"}
}

func TestSignup_ProvisionsTenant(t *testing.T) {
	f := newOrgFixture(t)
	f.system.ExpectExec(regexp.QuoteMeta("CREATE DATABASE IF NOT EXISTS `clinic_acme`")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for range database.TenantDDL {
		f.tenant.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	f.tenant.ExpectExec("INSERT INTO users").
		WithArgs("boss@acme.test", sqlmock.AnyArg(), "", model.RoleAdmin, true,
			uint64(0), uint64(0), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	org, err := f.svc.Signup(context.Background(), validSignup("Acme"))
	require.NoError(t, err)
	assert.Equal(t, "acme", org.Key)
	assert.Equal(t, "boss@acme.test", org.Email)
	assert.Equal(t, []string{"acme"}, f.registry.Tenants())
	assert.NoError(t, f.system.ExpectationsWereMet())
	assert.NoError(t, f.tenant.ExpectationsWereMet())
}

func TestSignup_RejectsBadInput(t *testing.T) {
	f := newOrgFixture(t)
	for _, key := range []string{"www", "api", "bad_key", "-x", ""} {
		_, err := f.svc.Signup(context.Background(), validSignup(key))
		assert.ErrorIs(t, err, ErrInvalidInput, key)
	}
	req := validSignup("acme")
	req.AdminPassword = "short"
	_, err := f.svc.Signup(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, f.orgs.orgs)
}

func TestSignup_DuplicateKey(t *testing.T) {
	f := newOrgFixture(t)
	f.orgs.orgs["acme"] = model.Organization{ID: 1, Key: "acme"}

	_, err := f.svc.Signup(context.Background(), validSignup("acme"))
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestSignup_RollsBackOnProvisionFailure(t *testing.T) {
	f := newOrgFixture(t)
	f.system.ExpectExec("CREATE DATABASE").WillReturnError(errors.New("access denied"))
	f.system.ExpectExec(regexp.QuoteMeta("DROP DATABASE IF EXISTS `clinic_acme`")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := f.svc.Signup(context.Background(), validSignup("acme"))
	assert.ErrorContains(t, err, "access denied")
	assert.Empty(t, f.orgs.orgs, "directory row removed")
	assert.Contains(t, f.invalidated, "acme")
	assert.NoError(t, f.system.ExpectationsWereMet())
}

func TestDelete_DropsTenant(t *testing.T) {
	f := newOrgFixture(t)
	f.orgs.orgs["acme"] = model.Organization{ID: 1, Key: "acme", Status: model.OrgActive}
	conn, err := f.registry.Get(context.Background(), "acme")
	require.NoError(t, err)
	f.factory.Users(conn)
	require.Equal(t, 1, f.factory.Len())

	f.tenant.ExpectClose()
	f.system.ExpectExec(regexp.QuoteMeta("DROP DATABASE IF EXISTS `clinic_acme`")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, f.svc.Delete(context.Background(), "acme"))
	assert.Empty(t, f.orgs.orgs)
	assert.Empty(t, f.registry.Tenants())
	assert.Zero(t, f.factory.Len())
	assert.Contains(t, f.invalidated, "acme")
	assert.NoError(t, f.system.ExpectationsWereMet())
	assert.NoError(t, f.tenant.ExpectationsWereMet())
}

func TestDelete_Unknown(t *testing.T) {
	f := newOrgFixture(t)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), "ghost"), repository.ErrNotFound)
}
