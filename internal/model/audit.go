package model

import "time"

// Audit carries who created and last changed a record and when.  The
// repository fills it from the acting user passed into each write; nothing
// reads the current session on its own.
type Audit struct {
	CreatedBy uint64    `json:"created_by"`
	UpdatedBy uint64    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
