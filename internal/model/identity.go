package model

import (
	"strings"
	"time"

	"github.com/iliyamo/nurox-dashboard/internal/roles"
)

// Identity is the snapshot of a logged-in account handed to clients.  It is
// returned by the login and me endpoints and persisted by the client session
// store, so its JSON shape is part of the external interface.
type Identity struct {
	ID            string             `json:"id"`
	Email         string             `json:"email"`
	FirstName     string             `json:"firstName"`
	LastName      string             `json:"lastName"`
	Name          string             `json:"name"`
	Role          roles.Role         `json:"role"`
	Phone         string             `json:"phone,omitempty"`
	IsActive      bool               `json:"isActive"`
	EmailVerified bool               `json:"emailVerified"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
	HospitalID    *string            `json:"hospitalId,omitempty"`
	PharmacyID    *string            `json:"pharmacyId,omitempty"`
	LaboratoryID  *string            `json:"laboratoryId,omitempty"`
	InsuranceID   *string            `json:"insuranceId,omitempty"`
	Profile       *Profile           `json:"profile,omitempty"`
	Organization  *Organization      `json:"organization,omitempty"`
	DefaultRoute  *string            `json:"defaultRoute"`
	Permissions   []roles.Permission `json:"permissions"`
}

// NewIdentity builds the snapshot for an account.  DefaultRoute is nil for
// mobile-only roles.
func NewIdentity(a Account) Identity {
	id := Identity{
		ID:            a.ID,
		Email:         a.Email,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Name:          strings.TrimSpace(a.FirstName + " " + a.LastName),
		Role:          a.Role,
		Phone:         a.Phone,
		IsActive:      a.IsActive,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt.UTC(),
		UpdatedAt:     a.UpdatedAt.UTC(),
		HospitalID:    a.HospitalID,
		PharmacyID:    a.PharmacyID,
		LaboratoryID:  a.LaboratoryID,
		InsuranceID:   a.InsuranceID,
		Profile:       a.Profile,
		Organization:  a.Organization,
		Permissions:   roles.Permissions(a.Role),
	}
	if route, ok := roles.DashboardRoute(a.Role); ok {
		id.DefaultRoute = &route
	}
	return id
}

// Valid reports whether the snapshot carries the fields a session needs.
// Clients use it to reject corrupted persisted state.
func (i Identity) Valid() bool {
	return i.ID != "" && i.Email != "" && i.Role.Valid()
}
