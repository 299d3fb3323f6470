package model

import (
	"time"

	"github.com/iliyamo/nurox-dashboard/internal/roles"
)

// Account represents a row of the `users` table together with the optional
// profile and organization rows joined onto it.  Repositories return it to the
// credential validator; handlers never serialize it directly because it
// carries the password hash.
//
// At most one of HospitalID, PharmacyID, LaboratoryID and InsuranceID is set.
type Account struct {
	ID            string     // users.id (UUID)
	Email         string     // users.email (binary collation)
	PasswordHash  string     // users.password_hash (bcrypt)
	FirstName     string     // users.first_name
	LastName      string     // users.last_name
	Phone         string     // users.phone
	Role          roles.Role // users.role
	IsActive      bool       // users.is_active
	EmailVerified bool       // users.email_verified
	HospitalID    *string    // users.hospital_id
	PharmacyID    *string    // users.pharmacy_id
	LaboratoryID  *string    // users.laboratory_id
	InsuranceID   *string    // users.insurance_id
	CreatedAt     time.Time  // users.created_at
	UpdatedAt     time.Time  // users.updated_at

	Profile      *Profile      // profiles row, nil when absent
	Organization *Organization // joined organization, nil when absent
}

// ProfileKind identifies which role a profile record belongs to.
type ProfileKind string

const (
	ProfileDoctor        ProfileKind = "DOCTOR"
	ProfilePharmacist    ProfileKind = "PHARMACIST"
	ProfileLabTechnician ProfileKind = "LAB_TECHNICIAN"
	ProfilePatient       ProfileKind = "PATIENT"
)

// Profile mirrors the `profiles` table.
type Profile struct {
	ID             string      `json:"id"`
	Kind           ProfileKind `json:"kind"`
	LicenseNumber  string      `json:"licenseNumber,omitempty"`
	Specialization string      `json:"specialization,omitempty"`
}

// OrganizationKind names the table an affiliation points into.
type OrganizationKind string

const (
	OrgHospital   OrganizationKind = "HOSPITAL"
	OrgPharmacy   OrganizationKind = "PHARMACY"
	OrgLaboratory OrganizationKind = "LABORATORY"
	OrgInsurance  OrganizationKind = "INSURANCE_COMPANY"
)

// Organization is the hospital, pharmacy, laboratory or insurance company an
// account is affiliated with.
type Organization struct {
	ID     string           `json:"id"`
	Kind   OrganizationKind `json:"kind"`
	Name   string           `json:"name"`
	Status string           `json:"status"`
}

// ProfileKindFor returns the profile kind a role must hold, if any.
func ProfileKindFor(r roles.Role) (ProfileKind, bool) {
	switch r {
	case roles.RoleDoctor:
		return ProfileDoctor, true
	case roles.RolePharmacist:
		return ProfilePharmacist, true
	case roles.RoleLabTechnician:
		return ProfileLabTechnician, true
	case roles.RolePatient:
		return ProfilePatient, true
	}
	return "", false
}

// HasProfileFor reports whether the account carries the profile record its
// role requires.
func (a Account) HasProfileFor() bool {
	kind, ok := ProfileKindFor(a.Role)
	if !ok {
		return true
	}
	return a.Profile != nil && a.Profile.Kind == kind
}

// HasOrganizationFor reports whether the affiliation matching the account's
// role is set.
func (a Account) HasOrganizationFor() bool {
	set := func(p *string) bool { return p != nil && *p != "" }
	switch a.Role {
	case roles.RoleHospitalAdmin:
		return set(a.HospitalID)
	case roles.RolePharmacyAdmin:
		return set(a.PharmacyID)
	case roles.RoleLabAdmin:
		return set(a.LaboratoryID)
	case roles.RoleInsuranceAdmin, roles.RoleInsuranceAgent:
		return set(a.InsuranceID)
	}
	return true
}
