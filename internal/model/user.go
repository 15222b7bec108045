package model

import "time"

// Roles a tenant user can hold.
const (
	RoleAdmin   = "admin"
	RoleDoctor  = "doctor"
	RoleStaff   = "staff"
	RolePatient = "patient"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleStaff, RolePatient:
		return true
	}
	return false
}

// User is an account inside one clinic's database.  PasswordHash never
// leaves the server.
type User struct {
	ID           uint64 `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	IsActive     bool   `json:"is_active"`
	Audit
}

// RefreshToken models an entry in the tenant's `refresh_tokens` table.  Only
// the SHA-256 hash of the token is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
