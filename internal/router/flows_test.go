package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/clinic-manager/internal/model"
	"github.com/iliyamo/clinic-manager/internal/repository"
	"github.com/iliyamo/clinic-manager/internal/utils"
)

const (
	acmeHost  = "acme.example.com"
	revokeSQL = "UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=?"
	genKey    = cachePrefix + ":gen:acme"
)

var stamp = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func userRows(id uint64, email, hash, role string, active bool) *sqlmock.Rows {
	return sqlmock.NewRows(repository.UserSchema.SelectColumns()).
		AddRow(id, email, hash, "Someone", role, active, 1, 1, stamp, stamp)
}

func appointmentRows(id, slotID uint64, status string) *sqlmock.Rows {
	return sqlmock.NewRows(repository.AppointmentSchema.SelectColumns()).
		AddRow(id, 4, 2, slotID, 1, status, "checkup", "", stamp, stamp.Add(30*time.Minute), 1, 1, stamp, stamp)
}

func liveToken(mock sqlmock.Sqlmock, hash string, userID uint64) {
	mock.ExpectQuery("SELECT user_id, expires_at, revoked_at FROM refresh_tokens").
		WithArgs(hash).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}).
			AddRow(userID, time.Now().Add(time.Hour), nil))
}

type authBody struct {
	User struct {
		ID   uint64 `json:"id"`
		Role string `json:"role"`
	} `json:"user"`
	Refresh struct {
		Token string `json:"token"`
	} `json:"refresh"`
}

func TestAuth_RegisterIssuesTokensAndInvalidatesCache(t *testing.T) {
	srv := newServer(t)
	srv.mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(9, 1))
	srv.mock.ExpectExec("INSERT INTO patients").WillReturnResult(sqlmock.NewResult(4, 1))
	srv.mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(uint64(9), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := do(srv.e, http.MethodPost, acmeHost, "/api/v1/auth/register", "",
		`{"email":"Ada@Example.com","password":"longenough","first_name":"Ada","last_name":"Lovelace"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body authBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 9, body.User.ID)
	assert.Equal(t, model.RolePatient, body.User.Role)
	assert.NotEmpty(t, body.Refresh.Token)

	gen, err := srv.mr.Get(genKey)
	require.NoError(t, err)
	assert.Equal(t, "1", gen)
	assert.NoError(t, srv.mock.ExpectationsWereMet())
}

func TestAuth_RegisterRemovesUserWhenPatientInsertFails(t *testing.T) {
	srv := newServer(t)
	srv.mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(9, 1))
	srv.mock.ExpectExec("INSERT INTO patients").WillReturnError(errors.New("lock wait timeout exceeded"))
	srv.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id=?")).
		WithArgs(uint64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := do(srv.e, http.MethodPost, acmeHost, "/api/v1/auth/register", "",
		`{"email":"ada@example.com","password":"longenough","first_name":"Ada"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
	assert.False(t, srv.mr.Exists(genKey))
	assert.NoError(t, srv.mock.ExpectationsWereMet())
}

func TestAuth_LoginLeavesCacheAlone(t *testing.T) {
	srv := newServer(t)
	hash, err := utils.HashPassword("longenough", 4)
	require.NoError(t, err)
	srv.mock.ExpectQuery("SELECT .* FROM users WHERE").
		WithArgs("ada@example.com", 1, 0).
		WillReturnRows(userRows(3, "ada@example.com", hash, model.RolePatient, true))
	srv.mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	rec := do(srv.e, http.MethodPost, acmeHost, "/api/v1/auth/login", "",
		`{"email":"ada@example.com","password":"longenough"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, srv.mr.Exists(genKey))
	assert.NoError(t, srv.mock.ExpectationsWereMet())
}

func TestAuth_LoginWrongPassword(t *testing.T) {
	srv := newServer(t)
	hash, err := utils.HashPassword("longenough", 4)
	require.NoError(t, err)
	srv.mock.ExpectQuery("SELECT .* FROM users WHERE").
		WillReturnRows(userRows(3, "ada@example.com", hash, model.RolePatient, true))

	rec := do(srv.e, http.MethodPost, acmeHost, "/api/v1/auth/login", "",
		`{"email":"ada@example.com","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NoError(t, srv.mock.ExpectationsWereMet())
}

func TestAuth_RefreshRotatesOnce(t *testing.T) {
	srv := newServer(t)
	hash := utils.HashRefreshRaw("r1")

	liveToken(srv.mock, hash, 1)
	srv.mock.ExpectExec(regexp.QuoteMeta(revokeSQL)).WithArgs(hash).WillReturnResult(sqlmock.NewResult(0, 1))
	srv.mock.ExpectQuery("SELECT .* FROM users WHERE id=\\?").
		WithArgs(uint64(1)).
		WillReturnRows(userRows(1, "admin@acme.test", "", model.RoleAdmin, true))
	srv.mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(uint64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))

	rec := do(srv.e, http.MethodPost, acmeHost, "/api/v1/auth/refresh", "", `{"refresh_token":"r1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body authBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEqual(t, "r1", body.Refresh.Token)

	// the second caller read the row before the first revoke landed
	liveToken(srv.mock, hash, 1)
	srv.mock.ExpectExec(regexp.QuoteMeta(revokeSQL)).WithArgs(hash).WillReturnResult(sqlmock.NewResult(0, 0))

	rec = do(srv.e, http.MethodPost, acmeHost, "/api/v1/auth/refresh", "", `{"refresh_token":"r1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
	assert.NoError(t, srv.mock.ExpectationsWereMet())
}

func TestAuth_LogoutReusedToken(t *testing.T) {
	srv := newServer(t)
	hash := utils.HashRefreshRaw("r1")
	liveToken(srv.mock, hash, 3)
	srv.mock.ExpectExec(regexp.QuoteMeta(revokeSQL)).WithArgs(hash).WillReturnResult(sqlmock.NewResult(0, 0))

	rec := do(srv.e, http.MethodPost, acmeHost, "/api/v1/auth/logout", "", `{"refresh_token":"r1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NoError(t, srv.mock.ExpectationsWereMet())
}

func TestAuth_LogoutRevokesToken(t *testing.T) {
	srv := newServer(t)
	hash := utils.HashRefreshRaw("r1")
	liveToken(srv.mock, hash, 3)
	srv.mock.ExpectExec(regexp.QuoteMeta(revokeSQL)).WithArgs(hash).WillReturnResult(sqlmock.NewResult(0, 1))

	rec := do(srv.e, http.MethodPost, acmeHost, "/api/v1/auth/logout", "", `{"refresh_token":"r1"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, srv.mock.ExpectationsWereMet())
}

func TestUsers_AdminCannotDemoteSelf(t *testing.T) {
	srv := newServer(t)
	srv.mock.ExpectQuery("SELECT .* FROM users WHERE id=\\?").
		WithArgs(uint64(1)).
		WillReturnRows(userRows(1, "admin@acme.test", "x", model.RoleAdmin, true))

	rec := do(srv.e, http.MethodPut, acmeHost, "/api/v1/users/1", "admin", `{"role":"staff"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.NoError(t, srv.mock.ExpectationsWereMet())
}

func TestUsers_DeactivateRevokesTokens(t *testing.T) {
	srv := newServer(t)
	srv.mock.ExpectQuery("SELECT .* FROM users WHERE id=\\?").
		WithArgs(uint64(2)).
		WillReturnRows(userRows(2, "doc@acme.test", "x", model.RoleDoctor, true))
	srv.mock.ExpectExec("UPDATE users SET").WillReturnResult(sqlmock.NewResult(0, 1))
	srv.mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE user_id=?")).
		WithArgs(uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	rec := do(srv.e, http.MethodPut, acmeHost, "/api/v1/users/2", "admin", `{"is_active":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var u model.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.False(t, u.IsActive)
	assert.NoError(t, srv.mock.ExpectationsWereMet())
}

func TestAppointments_UpdateNotes(t *testing.T) {
	srv := newServer(t)
	srv.mock.ExpectQuery("SELECT .* FROM appointments WHERE id=\\?").
		WithArgs(uint64(5)).
		WillReturnRows(appointmentRows(5, 3, model.StatusConfirmed))
	srv.mock.ExpectExec("UPDATE appointments SET").WillReturnResult(sqlmock.NewResult(0, 1))

	rec := do(srv.e, http.MethodPut, acmeHost, "/api/v1/appointments/5", "admin", `{"notes":"bring x-rays"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var a model.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, "bring x-rays", a.Notes)
	assert.Equal(t, model.StatusConfirmed, a.Status)
	assert.NoError(t, srv.mock.ExpectationsWereMet())
}

func TestAppointments_DeleteReleasesSlot(t *testing.T) {
	srv := newServer(t)
	srv.mock.ExpectQuery("SELECT .* FROM appointments WHERE id=\\?").
		WithArgs(uint64(5)).
		WillReturnRows(appointmentRows(5, 3, model.StatusConfirmed))
	srv.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM appointments WHERE id=?")).
		WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	srv.mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET is_booked=?")).
		WithArgs(false, uint64(1), sqlmock.AnyArg(), uint64(3), true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := do(srv.e, http.MethodDelete, acmeHost, "/api/v1/appointments/5", "admin", "")
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	gen, err := srv.mr.Get(genKey)
	require.NoError(t, err)
	assert.Equal(t, "1", gen)
	assert.NoError(t, srv.mock.ExpectationsWereMet())
}

func TestAppointments_DeleteCancelledKeepsSlot(t *testing.T) {
	srv := newServer(t)
	srv.mock.ExpectQuery("SELECT .* FROM appointments WHERE id=\\?").
		WillReturnRows(appointmentRows(5, 3, model.StatusCancelled))
	srv.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM appointments WHERE id=?")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := do(srv.e, http.MethodDelete, acmeHost, "/api/v1/appointments/5", "admin", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, srv.mock.ExpectationsWereMet())
}

func TestAppointments_DeleteNeedsAdmin(t *testing.T) {
	srv := newServer(t)
	rec := do(srv.e, http.MethodDelete, acmeHost, "/api/v1/appointments/5", "doctor", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, srv.mock.ExpectationsWereMet())
}
