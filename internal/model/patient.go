package model

import "time"

// Patient is a person treated by the clinic.  UserID links the record to a
// patient login when one exists (0 otherwise).
type Patient struct {
	ID        uint64     `json:"id"`
	UserID    uint64     `json:"user_id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	Gender    string     `json:"gender"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Notes     string     `json:"notes"`
	Audit
}

// Doctor is a practitioner who owns slots and sees appointments.
type Doctor struct {
	ID        uint64 `json:"id"`
	UserID    uint64 `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Specialty string `json:"specialty"`
	IsActive  bool   `json:"is_active"`
	Audit
}
