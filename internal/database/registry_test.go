package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closingDB returns a handle whose only expected call is Close.  Tests that
// care whether the registry closed it check mock.ExpectationsWereMet.
func closingDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()
	return db, mock
}

func mockDB(t *testing.T) *sql.DB {
	t.Helper()
	db, _ := closingDB(t)
	return db
}

func newTestRegistry(t *testing.T, open Opener) *Registry {
	t.Helper()
	return NewRegistry(NewConn("", "clinic_system", mockDB(t)), "clinic_", open, time.Second, nil)
}

func TestRegistryGet_DefaultConnection(t *testing.T) {
	var calls atomic.Int32
	r := newTestRegistry(t, func(context.Context, string) (*sql.DB, error) {
		calls.Add(1)
		return nil, errors.New("should not open")
	})

	c, err := r.Get(context.Background(), "")
	require.NoError(t, err)
	assert.Same(t, r.Default(), c)
	assert.True(t, c.IsDefault())
	assert.Zero(t, calls.Load())
}

func TestRegistryGet_CachesPerTenant(t *testing.T) {
	var namespaces []string
	r := newTestRegistry(t, func(_ context.Context, ns string) (*sql.DB, error) {
		namespaces = append(namespaces, ns)
		return mockDB(t), nil
	})
	ctx := context.Background()

	first, err := r.Get(ctx, "clinic")
	require.NoError(t, err)
	second, err := r.Get(ctx, "clinic")
	require.NoError(t, err)
	other, err := r.Get(ctx, "north-side")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
	assert.NotEqual(t, first.ID(), other.ID())
	assert.Equal(t, "clinic", first.Tenant())
	assert.Equal(t, "clinic_clinic", first.Namespace())
	assert.Equal(t, []string{"clinic_clinic", "clinic_north_side"}, namespaces)
	assert.Equal(t, []string{"clinic", "north-side"}, r.Tenants())
}

func TestRegistryGet_ConcurrentFirstAccessOpensOnce(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	r := newTestRegistry(t, func(context.Context, string) (*sql.DB, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return mockDB(t), nil
	})

	const callers = 8
	results := make([]*Conn, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Get(context.Background(), "clinic")
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
}

func TestRegistryGet_FailureIsNotCached(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("access denied")
	r := newTestRegistry(t, func(context.Context, string) (*sql.DB, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return mockDB(t), nil
	})
	ctx := context.Background()

	c, err := r.Get(ctx, "clinic")
	require.Error(t, err)
	assert.Nil(t, c)
	var ce *ConnectionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "clinic", ce.Tenant)
	assert.Equal(t, "clinic_clinic", ce.Namespace)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, r.Tenants())

	c, err = r.Get(ctx, "clinic")
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRegistryGet_CallerCancellationDoesNotFailSharedOpen(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	r := newTestRegistry(t, func(ctx context.Context, _ string) (*sql.DB, error) {
		close(started)
		select {
		case <-release:
			return mockDB(t), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Get(ctx, "clinic")
		done <- err
	}()
	<-started
	cancel()
	err := <-done
	var ce *ConnectionError
	require.True(t, errors.As(err, &ce))
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	c, err := r.Get(context.Background(), "clinic")
	require.NoError(t, err)
	assert.Equal(t, "clinic", c.Tenant())
}

func TestRegistryClose_ForgetsTenant(t *testing.T) {
	var mocks []sqlmock.Sqlmock
	r := newTestRegistry(t, func(context.Context, string) (*sql.DB, error) {
		db, mock := closingDB(t)
		mocks = append(mocks, mock)
		return db, nil
	})
	ctx := context.Background()

	first, err := r.Get(ctx, "clinic")
	require.NoError(t, err)

	closed, err := r.Close("clinic")
	require.NoError(t, err)
	assert.Same(t, first, closed)
	require.Len(t, mocks, 1)
	assert.NoError(t, mocks[0].ExpectationsWereMet())
	assert.Empty(t, r.Tenants())

	again, err := r.Get(ctx, "clinic")
	require.NoError(t, err)
	assert.NotSame(t, first, again)

	none, err := r.Close("unknown")
	assert.NoError(t, err)
	assert.Nil(t, none)
}

func TestRegistryClose_DiscardsOpenInFlight(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	var raced sqlmock.Sqlmock
	r := newTestRegistry(t, func(context.Context, string) (*sql.DB, error) {
		db, mock := closingDB(t)
		if calls.Add(1) == 1 {
			raced = mock
			close(started)
			<-release
		}
		return db, nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := r.Get(context.Background(), "clinic")
		done <- err
	}()
	<-started

	closed, err := r.Close("clinic")
	require.NoError(t, err)
	assert.Nil(t, closed)
	close(release)

	err = <-done
	var ce *ConnectionError
	require.True(t, errors.As(err, &ce))
	assert.ErrorIs(t, err, ErrTenantClosed)
	assert.Empty(t, r.Tenants())
	assert.NoError(t, raced.ExpectationsWereMet(), "discarded handle must be closed")

	c, err := r.Get(context.Background(), "clinic")
	require.NoError(t, err)
	assert.Equal(t, "clinic", c.Tenant())
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{"clinic"}, r.Tenants())
}

func TestRegistryCloseAll_RejectsLaterGets(t *testing.T) {
	sysDB, sysMock := closingDB(t)
	tenantDB, tenantMock := closingDB(t)
	r := NewRegistry(NewConn("", "clinic_system", sysDB), "clinic_",
		func(context.Context, string) (*sql.DB, error) { return tenantDB, nil }, time.Second, nil)
	_, err := r.Get(context.Background(), "clinic")
	require.NoError(t, err)

	require.NoError(t, r.CloseAll())
	assert.NoError(t, sysMock.ExpectationsWereMet())
	assert.NoError(t, tenantMock.ExpectationsWereMet())

	_, err = r.Get(context.Background(), "clinic")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNamespace(t *testing.T) {
	assert.Equal(t, "clinic_acme", Namespace("clinic_", "acme"))
	assert.Equal(t, "clinic_north_side", Namespace("clinic_", "North-Side"))
	assert.Equal(t, "t_a_b", Namespace("t_", "a`b"))
}

func TestProvisionAndDrop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE DATABASE IF NOT EXISTS `clinic_acme`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DROP DATABASE IF EXISTS `clinic_acme`").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Provision(context.Background(), db, "clinic_acme"))
	require.NoError(t, Drop(context.Background(), db, "clinic_acme"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_StopsOnFirstError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS refresh_tokens").WillReturnError(errors.New("disk full"))

	err = Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh_tokens")
	assert.NoError(t, mock.ExpectationsWereMet())
}
