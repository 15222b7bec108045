package repository

import (
	"sync"

	"github.com/iliyamo/clinic-manager/internal/database"
	"github.com/iliyamo/clinic-manager/internal/model"
)

type bindKey struct {
	conn uint64
	kind Kind
}

// Factory caches bound models per (connection, kind).
type Factory struct {
	mu     sync.Mutex
	models map[bindKey]any
}

func NewFactory() *Factory {
	return &Factory{models: make(map[bindKey]any)}
}

// Bind returns the model for schema s on conn, creating it on first use.
// The same (conn, schema) pair always yields the same *Model.  Every schema
// is tenant-scoped, so binding one to the default connection panics.
func Bind[T any](f *Factory, conn *database.Conn, s *Schema[T]) *Model[T] {
	if conn == nil || conn.IsDefault() {
		panic("repository: " + s.Kind.String() + " model needs a tenant connection")
	}
	k := bindKey{conn: conn.ID(), kind: s.Kind}
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.models[k]; ok {
		return m.(*Model[T])
	}
	m := newModel(conn, s)
	f.models[k] = m
	return m
}

// Release drops every model bound to conn.  Called once conn is closed.
func (f *Factory) Release(conn *database.Conn) {
	if conn == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.models {
		if k.conn == conn.ID() {
			delete(f.models, k)
		}
	}
}

// Len reports how many models are cached.
func (f *Factory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.models)
}

func (f *Factory) Users(c *database.Conn) *Model[model.User]       { return Bind(f, c, UserSchema) }
func (f *Factory) Patients(c *database.Conn) *Model[model.Patient] { return Bind(f, c, PatientSchema) }
func (f *Factory) Doctors(c *database.Conn) *Model[model.Doctor]   { return Bind(f, c, DoctorSchema) }
func (f *Factory) Drugs(c *database.Conn) *Model[model.Drug]       { return Bind(f, c, DrugSchema) }
func (f *Factory) Services(c *database.Conn) *Model[model.Service] { return Bind(f, c, ServiceSchema) }
func (f *Factory) Slots(c *database.Conn) *Model[model.Slot]       { return Bind(f, c, SlotSchema) }

func (f *Factory) Appointments(c *database.Conn) *Model[model.Appointment] {
	return Bind(f, c, AppointmentSchema)
}
