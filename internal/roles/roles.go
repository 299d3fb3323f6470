// Package roles is the static role registry for the dashboard.  It maps every
// account role to the dashboard route segment it may open (or to no route at
// all for roles that are served only by the mobile app) and to the set of
// named permissions the role carries.  The data is immutable and the lookup
// functions are pure, so they are safe to call from any goroutine.
package roles

import (
	"fmt"
	"strings"
)

// Role is a closed enumeration of account roles.  The zero value is not a
// valid role; values only come from the constants below or from ParseRole.
type Role uint8

const (
	RoleSuperAdmin Role = iota + 1
	RoleAdmin
	RoleHospitalAdmin
	RolePharmacyAdmin
	RoleLabAdmin
	RoleInsuranceAdmin
	RoleDoctor
	RolePharmacist
	RoleLabTechnician
	RolePatient
	RoleInsuranceAgent

	roleEnd // sentinel, keep last
)

// roleCount is the number of valid roles.
const roleCount = int(roleEnd) - 1

// entry is one row of the registry.
type entry struct {
	name         string
	route        string // empty means mobile app only
	profile      bool
	organization bool
	permissions  []Permission
}

// registry is indexed by Role.  Declaring it with an explicit length tied to
// roleEnd makes the compiler reject a table that is longer than the enum, and
// TestRegistryIsComplete rejects any role left without a name.
var registry = [roleEnd]entry{
	RoleSuperAdmin: {
		name:  "SUPER_ADMIN",
		route: "admin",
		permissions: []Permission{
			PermFullSystemAccess, PermManageAdmins, PermSystemMaintenance, PermAuditLogs,
		},
	},
	RoleAdmin: {
		name:  "ADMIN",
		route: "admin",
		permissions: []Permission{
			PermManageUsers, PermViewSystemAnalytics, PermManageOrganizations, PermSystemConfiguration,
		},
	},
	RoleHospitalAdmin: {
		name:         "HOSPITAL_ADMIN",
		route:        "hospital",
		organization: true,
		permissions: []Permission{
			PermManageHospital, PermManageHospitalStaff, PermViewHospitalAnalytics, PermManageDepartments,
		},
	},
	RolePharmacyAdmin: {
		name:         "PHARMACY_ADMIN",
		route:        "pharmacy",
		organization: true,
		permissions: []Permission{
			PermManagePharmacy, PermManagePharmacyStaff, PermViewPharmacyAnalytics, PermManageInventoryAdmin,
		},
	},
	RoleLabAdmin: {
		name:         "LAB_ADMIN",
		route:        "lab",
		organization: true,
		permissions: []Permission{
			PermManageLaboratory, PermManageLabStaff, PermViewLabAnalytics, PermManageLabEquipment,
		},
	},
	RoleInsuranceAdmin: {
		name:         "INSURANCE_ADMIN",
		route:        "insurer",
		organization: true,
		permissions: []Permission{
			PermManageInsuranceCompany, PermViewClaims, PermManagePolicies, PermViewInsuranceAnalytics,
		},
	},
	RoleDoctor: {
		name:    "DOCTOR",
		route:   "doctor",
		profile: true,
		permissions: []Permission{
			PermViewPatients, PermCreatePrescriptions, PermViewAppointments, PermManageAppointments,
			PermViewLabResults, PermCreateMedicalRecords, PermChatWithPatients,
		},
	},
	RolePharmacist: {
		name:    "PHARMACIST",
		route:   "pharmacist",
		profile: true,
		permissions: []Permission{
			PermViewPrescriptions, PermDispenseMedications, PermManageInventory, PermViewPharmacyOrders,
		},
	},
	RoleLabTechnician: {
		name:    "LAB_TECHNICIAN",
		route:   "mlt",
		profile: true,
		permissions: []Permission{
			PermViewLabTests, PermCreateLabResults, PermManageLabSamples, PermViewLabQueue,
		},
	},
	RolePatient: {
		name:    "PATIENT",
		profile: true,
		permissions: []Permission{
			PermViewAppointments, PermBookAppointments, PermViewPrescriptions, PermViewLabResults,
			PermViewMedicalRecords, PermChatWithDoctor,
		},
	},
	RoleInsuranceAgent: {
		name:         "INSURANCE_AGENT",
		organization: true,
		permissions: []Permission{
			PermProcessClaims, PermViewPolicies, PermCustomerSupport,
		},
	},
}

// aliases lists legacy wire names that still parse to a role.
var aliases = map[string]Role{
	"MLT": RoleLabTechnician,
}

// All returns every valid role in declaration order.
func All() []Role {
	out := make([]Role, 0, roleCount)
	for r := RoleSuperAdmin; r < roleEnd; r++ {
		out = append(out, r)
	}
	return out
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool { return r >= RoleSuperAdmin && r < roleEnd }

// String returns the canonical wire name of the role.
func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
	return registry[r].name
}

// ParseRole converts a wire name (case-insensitive) into a Role.
func ParseRole(s string) (Role, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for r := RoleSuperAdmin; r < roleEnd; r++ {
		if registry[r].name == name {
			return r, nil
		}
	}
	if r, ok := aliases[name]; ok {
		return r, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// MarshalText encodes the role by name so JSON and JWT claims carry strings.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
	return []byte(registry[r].name), nil
}

// UnmarshalText decodes a role name.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// mustValid panics on a role outside the enumeration.  Receiving one means a
// caller built a Role from a raw integer, which is a programming error.
func mustValid(r Role) entry {
	if !r.Valid() {
		panic(fmt.Sprintf("roles: invalid role %d", uint8(r)))
	}
	return registry[r]
}

// DashboardRoute returns the dashboard route segment for r.  ok is false for
// mobile-only roles.
func DashboardRoute(r Role) (route string, ok bool) {
	e := mustValid(r)
	return e.route, e.route != ""
}

// DashboardEligible reports whether r may use the web dashboard at all.
func DashboardEligible(r Role) bool {
	_, ok := DashboardRoute(r)
	return ok
}

// RequiresProfile reports whether r needs a role-specific profile record
// before dashboard access is granted.
func RequiresProfile(r Role) bool { return mustValid(r).profile }

// RequiresOrganization reports whether r must be affiliated with an
// organization.
func RequiresOrganization(r Role) bool { return mustValid(r).organization }

// RolesForRoute returns the roles that may open the given route segment.
func RolesForRoute(segment string) []Role {
	var out []Role
	for r := RoleSuperAdmin; r < roleEnd; r++ {
		if registry[r].route != "" && registry[r].route == segment {
			out = append(out, r)
		}
	}
	return out
}

// CanAccessRoute reports whether r may open segment.
func CanAccessRoute(r Role, segment string) bool {
	route, ok := DashboardRoute(r)
	return ok && route == segment
}

// Routes lists every dashboard route segment once, in registry order.
func Routes() []string {
	seen := make(map[string]bool)
	var out []string
	for r := RoleSuperAdmin; r < roleEnd; r++ {
		route := registry[r].route
		if route == "" || seen[route] {
			continue
		}
		seen[route] = true
		out = append(out, route)
	}
	return out
}

// DisplayName is the plural audience used in user-facing notices, e.g.
// "Patients must use the mobile app".
func DisplayName(r Role) string {
	switch r {
	case RolePatient:
		return "Patients"
	case RoleInsuranceAgent:
		return "Insurance Agents"
	}
	name := strings.ToLower(strings.ReplaceAll(mustValid(r).name, "_", " "))
	words := strings.Fields(name)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ") + "s"
}
