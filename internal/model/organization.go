package model

import "time"

// Organization statuses.
const (
	OrgActive    = "active"
	OrgSuspended = "suspended"
)

// Organization is a row of the system-level directory.  Key is the
// subdomain label that selects the clinic's database.
type Organization struct {
	ID        uint64    `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
