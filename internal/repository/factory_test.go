package repository

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/clinic-manager/internal/database"
	"github.com/iliyamo/clinic-manager/internal/model"
)

func TestBind_SamePairReturnsSameHandle(t *testing.T) {
	_, _, conn := setupTenant(t, "acme")
	f := NewFactory()

	a := Bind(f, conn, PatientSchema)
	b := f.Patients(conn)

	assert.Same(t, a, b)
	assert.Same(t, conn, a.Conn())
	assert.Equal(t, 1, f.Len())
}

func TestBind_DifferentKindOrConnIsDistinct(t *testing.T) {
	_, _, acme := setupTenant(t, "acme")
	_, _, globex := setupTenant(t, "globex")
	f := NewFactory()

	patients := f.Patients(acme)
	doctors := f.Doctors(acme)
	otherPatients := f.Patients(globex)

	assert.Equal(t, KindPatient, patients.Kind())
	assert.Equal(t, KindDoctor, doctors.Kind())
	assert.NotSame(t, patients, otherPatients)
	assert.Equal(t, 3, f.Len())
}

func TestBind_RejectsDefaultConnection(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	def := database.NewConn("", "clinic_system", db)

	assert.Panics(t, func() { NewFactory().Users(def) })
}

func TestFactoryRelease(t *testing.T) {
	_, _, acme := setupTenant(t, "acme")
	_, _, globex := setupTenant(t, "globex")
	f := NewFactory()

	before := f.Slots(acme)
	f.Slots(globex)
	f.Release(acme)

	assert.Equal(t, 1, f.Len())
	assert.NotSame(t, before, f.Slots(acme))
}

func TestSchemaColumnsMatchFields(t *testing.T) {
	assert.Len(t, UserSchema.fields(new(model.User)), len(UserSchema.Columns))
	assert.Len(t, PatientSchema.fields(new(model.Patient)), len(PatientSchema.Columns))
	assert.Len(t, DoctorSchema.fields(new(model.Doctor)), len(DoctorSchema.Columns))
	assert.Len(t, AppointmentSchema.fields(new(model.Appointment)), len(AppointmentSchema.Columns))
	assert.Len(t, DrugSchema.fields(new(model.Drug)), len(DrugSchema.Columns))
	assert.Len(t, ServiceSchema.fields(new(model.Service)), len(ServiceSchema.Columns))
	assert.Len(t, SlotSchema.fields(new(model.Slot)), len(SlotSchema.Columns))
}
