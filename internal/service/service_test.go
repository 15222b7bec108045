package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/clinic-manager/internal/database"
	"github.com/iliyamo/clinic-manager/internal/notify"
)

var when = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

var (
	apptCols    = []string{"id", "patient_id", "doctor_id", "slot_id", "service_id", "status", "reason", "notes", "starts_at", "ends_at", "created_by", "updated_by", "created_at", "updated_at"}
	patientCols = []string{"id", "user_id", "first_name", "last_name", "email", "phone", "gender", "birth_date", "notes", "created_by", "updated_by", "created_at", "updated_at"}
	doctorCols  = []string{"id", "user_id", "first_name", "last_name", "email", "phone", "specialty", "is_active", "created_by", "updated_by", "created_at", "updated_at"}
	slotCols    = []string{"id", "doctor_id", "starts_at", "ends_at", "is_booked", "created_by", "updated_by", "created_at", "updated_at"}
	userCols    = []string{"id", "email", "password_hash", "name", "role", "is_active", "created_by", "updated_by", "created_at", "updated_at"}
)

func tenantConn(t *testing.T, key string) (*database.Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return database.NewConn(key, "clinic_"+key, db), mock
}

func apptRow(id, patientID, doctorID, slotID uint64, status string) *sqlmock.Rows {
	return sqlmock.NewRows(apptCols).
		AddRow(id, patientID, doctorID, slotID, 0, status, "", "", when, when.Add(30*time.Minute), 1, 1, when, when)
}

func patientRow(id, userID uint64, email string) *sqlmock.Rows {
	return sqlmock.NewRows(patientCols).
		AddRow(id, userID, "Ada", "Lovelace", email, "", "", nil, "", 1, 1, when, when)
}

func doctorRow(id, userID uint64) *sqlmock.Rows {
	return sqlmock.NewRows(doctorCols).
		AddRow(id, userID, "Gregory", "House", "", "", "diagnostics", true, 1, 1, when, when)
}

func slotRow(id, doctorID uint64, booked bool) *sqlmock.Rows {
	return sqlmock.NewRows(slotCols).
		AddRow(id, doctorID, when, when.Add(30*time.Minute), booked, 1, 1, when, when)
}

func userRow(id uint64, email, role string, active bool) *sqlmock.Rows {
	return sqlmock.NewRows(userCols).
		AddRow(id, email, "x", "Test", role, active, 0, 0, when, when)
}

type mailbox struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (m *mailbox) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mailbox) last() notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return notify.Message{}
	}
	return m.sent[len(m.sent)-1]
}

var nopLogger = zap.NewNop()

// systemConn is the registry's default connection in organization tests.
func systemConn(t *testing.T) (*database.Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return database.NewConn("", "clinic_system", db), mock
}

