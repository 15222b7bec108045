package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorize_UsersScenario(t *testing.T) {
	table := NewTable(Rule{"/api/v1/users", map[string][]string{"GET": {"admin"}}})

	assert.Equal(t, Forbidden, table.Authorize("GET", "/api/v1/users", &Session{UserID: 1, Role: "doctor"}))
	assert.Equal(t, Allowed, table.Authorize("GET", "/api/v1/users", &Session{UserID: 2, Role: "admin"}))
	assert.Equal(t, Unauthenticated, table.Authorize("GET", "/api/v1/users", nil))
}

func TestAuthorize_NoPolicyIsForbidden(t *testing.T) {
	table := NewTable(Rule{"/api/v1/users", map[string][]string{"GET": {"admin"}}})
	admin := &Session{Role: "admin"}

	for _, s := range []*Session{nil, admin} {
		assert.Equal(t, Forbidden, table.Authorize("GET", "/api/v1/secrets", s))
		assert.Equal(t, Forbidden, table.Authorize("DELETE", "/api/v1/users", s), "unlisted method")
		assert.Equal(t, Forbidden, table.Authorize("GET", "/api/v1/users/7", s), "longer path")
		assert.Equal(t, Forbidden, table.Authorize("GET", "/api/v1", s), "shorter path")
	}
}

func TestAuthorize_EmptyRoleListIsForbidden(t *testing.T) {
	table := NewTable(Rule{"/x", map[string][]string{"GET": {}}})
	assert.Equal(t, Forbidden, table.Authorize("GET", "/x", nil))
}

func TestAuthorize_PathParametersAndWildcard(t *testing.T) {
	table := NewTable(
		Rule{"/api/v1/appointments/:id/status", map[string][]string{"PATCH": {"doctor"}}},
		Rule{"/files/*", map[string][]string{"GET": {"staff"}}},
	)
	doctor := &Session{Role: "doctor"}
	staff := &Session{Role: "staff"}

	assert.Equal(t, Allowed, table.Authorize("patch", "/api/v1/appointments/42/status", doctor))
	assert.Equal(t, Allowed, table.Authorize("PATCH", "/api/v1/appointments/42/status/", doctor))
	assert.Equal(t, Forbidden, table.Authorize("PATCH", "/api/v1/appointments//status", doctor))
	assert.Equal(t, Allowed, table.Authorize("GET", "/files/a/b/c.pdf", staff))
	assert.Equal(t, Allowed, table.Authorize("GET", "/files", staff))
}

func TestAuthorize_FirstMatchWins(t *testing.T) {
	table := NewTable(
		Rule{"/api/v1/doctors/me", map[string][]string{"GET": {"doctor"}}},
		Rule{"/api/v1/doctors/:id", map[string][]string{"GET": {"admin", "doctor", "patient"}}},
	)
	patient := &Session{Role: "patient"}

	assert.Equal(t, Forbidden, table.Authorize("GET", "/api/v1/doctors/me", patient))
	assert.Equal(t, Allowed, table.Authorize("GET", "/api/v1/doctors/3", patient))
}

func TestDefaultTable(t *testing.T) {
	cases := []struct {
		method, path, role string
		want               Decision
	}{
		{"GET", "/api/v1/users", "admin", Allowed},
		{"GET", "/api/v1/users", "doctor", Forbidden},
		{"GET", "/api/v1/patients/3", "doctor", Allowed},
		{"GET", "/api/v1/patients/3", "patient", Forbidden},
		{"PATCH", "/api/v1/appointments/9/status", "patient", Allowed},
		{"POST", "/api/v1/appointments/9/reschedule", "doctor", Forbidden},
		{"DELETE", "/api/v1/appointments/9", "staff", Forbidden},
		{"POST", "/api/v1/slots", "doctor", Allowed},
		{"DELETE", "/api/v1/organization", "admin", Allowed},
		{"DELETE", "/api/v1/organization", "staff", Forbidden},
		{"GET", "/api/v1/unknown", "admin", Forbidden},
	}
	for _, tc := range cases {
		got := DefaultTable.Authorize(tc.method, tc.path, &Session{UserID: 1, Role: tc.role})
		assert.Equal(t, tc.want, got, "%s %s as %s", tc.method, tc.path, tc.role)
	}
	assert.Equal(t, Unauthenticated, DefaultTable.Authorize("GET", "/api/v1/me", nil))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "allowed", Allowed.String())
	assert.Equal(t, "unauthenticated", Unauthenticated.String())
	assert.Equal(t, "forbidden", Forbidden.String())
}
