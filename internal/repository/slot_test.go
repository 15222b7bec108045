package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const claimSQL = "UPDATE slots SET is_booked=?, updated_by=?, updated_at=? WHERE id=? AND is_booked=?"

func TestClaimSlot(t *testing.T) {
	_, mock, conn := setupTenant(t, "acme")
	m := NewFactory().Slots(conn)
	m.now = func() time.Time { return fixedNow }

	mock.ExpectExec(regexp.QuoteMeta(claimSQL)).
		WithArgs(true, uint64(3), fixedNow, uint64(9), false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, ClaimSlot(context.Background(), m, 3, 9))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimSlot_AlreadyBookedIsConflict(t *testing.T) {
	_, mock, conn := setupTenant(t, "acme")
	m := NewFactory().Slots(conn)

	mock.ExpectExec(regexp.QuoteMeta(claimSQL)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM slots WHERE id=\\?").
		WithArgs(uint64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "doctor_id", "starts_at", "ends_at", "is_booked",
			"created_by", "updated_by", "created_at", "updated_at"}).
			AddRow(9, 2, fixedNow, fixedNow.Add(30*time.Minute), true, 1, 1, fixedNow, fixedNow))

	err := ClaimSlot(context.Background(), m, 3, 9)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseSlot_MissingIsNotFound(t *testing.T) {
	_, mock, conn := setupTenant(t, "acme")
	m := NewFactory().Slots(conn)

	mock.ExpectExec(regexp.QuoteMeta(claimSQL)).
		WithArgs(false, uint64(3), sqlmock.AnyArg(), uint64(404), true).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM slots").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := ReleaseSlot(context.Background(), m, 3, 404)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
