package model

import "time"

// Appointment statuses.
const (
	StatusPending     = "pending"
	StatusConfirmed   = "confirmed"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
	StatusNoShow      = "no_show"
	StatusRescheduled = "rescheduled"
)

// Appointment books a patient into one doctor slot.  StartsAt and EndsAt
// are copied from the slot at booking time.
type Appointment struct {
	ID        uint64    `json:"id"`
	PatientID uint64    `json:"patient_id"`
	DoctorID  uint64    `json:"doctor_id"`
	SlotID    uint64    `json:"slot_id"`
	ServiceID uint64    `json:"service_id"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason"`
	Notes     string    `json:"notes"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Audit
}

// Slot is a bookable time window of one doctor.
type Slot struct {
	ID       uint64    `json:"id"`
	DoctorID uint64    `json:"doctor_id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	IsBooked bool      `json:"is_booked"`
	Audit
}
