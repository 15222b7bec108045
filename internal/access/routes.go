package access

import "github.com/iliyamo/clinic-manager/internal/model"

var (
	everyone = []string{model.RoleAdmin, model.RoleDoctor, model.RoleStaff, model.RolePatient}
	clinical = []string{model.RoleAdmin, model.RoleDoctor, model.RoleStaff}
	office   = []string{model.RoleAdmin, model.RoleStaff}
	admin    = []string{model.RoleAdmin}
)

// DefaultTable is the route policy of the tenant API.  Login, refresh and
// OTP routes sit outside the gate.
var DefaultTable = NewTable(
	Rule{"/api/v1/me", map[string][]string{"GET": everyone}},
	Rule{"/api/v1/organization", map[string][]string{"GET": everyone, "DELETE": admin}},

	Rule{"/api/v1/users", map[string][]string{"GET": admin, "POST": admin}},
	Rule{"/api/v1/users/:id", map[string][]string{"GET": admin, "PUT": admin, "DELETE": admin}},

	Rule{"/api/v1/patients", map[string][]string{"GET": clinical, "POST": office}},
	Rule{"/api/v1/patients/:id", map[string][]string{"GET": clinical, "PUT": office, "DELETE": admin}},

	Rule{"/api/v1/doctors", map[string][]string{"GET": everyone, "POST": admin}},
	Rule{"/api/v1/doctors/:id", map[string][]string{"GET": everyone, "PUT": admin, "DELETE": admin}},

	Rule{"/api/v1/appointments", map[string][]string{
		"GET":  everyone,
		"POST": []string{model.RoleAdmin, model.RoleStaff, model.RolePatient},
	}},
	Rule{"/api/v1/appointments/:id/status", map[string][]string{"PATCH": everyone}},
	Rule{"/api/v1/appointments/:id/reschedule", map[string][]string{
		"POST": []string{model.RoleAdmin, model.RoleStaff, model.RolePatient},
	}},
	Rule{"/api/v1/appointments/:id", map[string][]string{"GET": everyone, "PUT": office, "DELETE": admin}},

	Rule{"/api/v1/drugs", map[string][]string{"GET": clinical, "POST": office}},
	Rule{"/api/v1/drugs/:id", map[string][]string{"GET": clinical, "PUT": office, "DELETE": office}},

	Rule{"/api/v1/services", map[string][]string{"GET": everyone, "POST": admin}},
	Rule{"/api/v1/services/:id", map[string][]string{"GET": everyone, "PUT": admin, "DELETE": admin}},

	Rule{"/api/v1/slots", map[string][]string{"GET": everyone, "POST": clinical}},
	Rule{"/api/v1/slots/:id", map[string][]string{"GET": everyone, "PUT": clinical, "DELETE": clinical}},
)
