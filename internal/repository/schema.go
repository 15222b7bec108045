package repository

import (
	"github.com/iliyamo/clinic-manager/internal/model"
)

// Kind names a tenant entity type.
type Kind int

const (
	KindUser Kind = iota + 1
	KindPatient
	KindDoctor
	KindAppointment
	KindDrug
	KindService
	KindSlot
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindPatient:
		return "patient"
	case KindDoctor:
		return "doctor"
	case KindAppointment:
		return "appointment"
	case KindDrug:
		return "drug"
	case KindService:
		return "service"
	case KindSlot:
		return "slot"
	}
	return "unknown"
}

// Schema ties a Kind to its table and to the Go type T stored in it.
// Columns lists the writable columns in the order fields returns pointers
// to them; id and the audit columns are handled by Model.
type Schema[T any] struct {
	Kind    Kind
	Table   string
	Columns []string
	fields  func(*T) []any
	id      func(*T) *uint64
	audit   func(*T) *model.Audit
}

var auditColumnNames = []string{"created_by", "updated_by", "created_at", "updated_at"}

// SelectColumns returns the column list of a full row: id, Columns, audit.
func (s *Schema[T]) SelectColumns() []string {
	cols := make([]string, 0, len(s.Columns)+5)
	cols = append(cols, "id")
	cols = append(cols, s.Columns...)
	return append(cols, auditColumnNames...)
}

func (s *Schema[T]) hasColumn(name string) bool {
	if name == "id" {
		return true
	}
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	for _, c := range auditColumnNames {
		if c == name {
			return true
		}
	}
	return false
}

var UserSchema = &Schema[model.User]{
	Kind:    KindUser,
	Table:   "users",
	Columns: []string{"email", "password_hash", "name", "role", "is_active"},
	fields: func(u *model.User) []any {
		return []any{&u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.IsActive}
	},
	id:    func(u *model.User) *uint64 { return &u.ID },
	audit: func(u *model.User) *model.Audit { return &u.Audit },
}

var PatientSchema = &Schema[model.Patient]{
	Kind:    KindPatient,
	Table:   "patients",
	Columns: []string{"user_id", "first_name", "last_name", "email", "phone", "gender", "birth_date", "notes"},
	fields: func(p *model.Patient) []any {
		return []any{&p.UserID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.Gender, &p.BirthDate, &p.Notes}
	},
	id:    func(p *model.Patient) *uint64 { return &p.ID },
	audit: func(p *model.Patient) *model.Audit { return &p.Audit },
}

var DoctorSchema = &Schema[model.Doctor]{
	Kind:    KindDoctor,
	Table:   "doctors",
	Columns: []string{"user_id", "first_name", "last_name", "email", "phone", "specialty", "is_active"},
	fields: func(d *model.Doctor) []any {
		return []any{&d.UserID, &d.FirstName, &d.LastName, &d.Email, &d.Phone, &d.Specialty, &d.IsActive}
	},
	id:    func(d *model.Doctor) *uint64 { return &d.ID },
	audit: func(d *model.Doctor) *model.Audit { return &d.Audit },
}

var AppointmentSchema = &Schema[model.Appointment]{
	Kind:  KindAppointment,
	Table: "appointments",
	Columns: []string{"patient_id", "doctor_id", "slot_id", "service_id", "status", "reason", "notes",
		"starts_at", "ends_at"},
	fields: func(a *model.Appointment) []any {
		return []any{&a.PatientID, &a.DoctorID, &a.SlotID, &a.ServiceID, &a.Status, &a.Reason, &a.Notes,
			&a.StartsAt, &a.EndsAt}
	},
	id:    func(a *model.Appointment) *uint64 { return &a.ID },
	audit: func(a *model.Appointment) *model.Audit { return &a.Audit },
}

var DrugSchema = &Schema[model.Drug]{
	Kind:    KindDrug,
	Table:   "drugs",
	Columns: []string{"name", "form", "strength", "manufacturer", "stock", "price_cents"},
	fields: func(d *model.Drug) []any {
		return []any{&d.Name, &d.Form, &d.Strength, &d.Manufacturer, &d.Stock, &d.PriceCents}
	},
	id:    func(d *model.Drug) *uint64 { return &d.ID },
	audit: func(d *model.Drug) *model.Audit { return &d.Audit },
}

var ServiceSchema = &Schema[model.Service]{
	Kind:    KindService,
	Table:   "services",
	Columns: []string{"name", "description", "duration_min", "price_cents", "is_active"},
	fields: func(s *model.Service) []any {
		return []any{&s.Name, &s.Description, &s.DurationMin, &s.PriceCents, &s.IsActive}
	},
	id:    func(s *model.Service) *uint64 { return &s.ID },
	audit: func(s *model.Service) *model.Audit { return &s.Audit },
}

var SlotSchema = &Schema[model.Slot]{
	Kind:    KindSlot,
	Table:   "slots",
	Columns: []string{"doctor_id", "starts_at", "ends_at", "is_booked"},
	fields: func(s *model.Slot) []any {
		return []any{&s.DoctorID, &s.StartsAt, &s.EndsAt, &s.IsBooked}
	},
	id:    func(s *model.Slot) *uint64 { return &s.ID },
	audit: func(s *model.Slot) *model.Audit { return &s.Audit },
}
