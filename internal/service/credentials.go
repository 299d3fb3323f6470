// Package service holds the login use case and the audit event publisher.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/nurox-dashboard/internal/model"
	"github.com/iliyamo/nurox-dashboard/internal/repository"
	"github.com/iliyamo/nurox-dashboard/internal/roles"
	"github.com/iliyamo/nurox-dashboard/internal/utils"
)

// FailureKind classifies a rejected login.
type FailureKind string

const (
	InvalidCredentials  FailureKind = "invalid_credentials"
	AccountDisabled     FailureKind = "account_disabled"
	MobileOnlyRole      FailureKind = "mobile_only_role"
	ProfileIncomplete   FailureKind = "profile_incomplete"
	OrganizationMissing FailureKind = "organization_missing"
)

// LoginError is a user facing login rejection.  The user may retry.
type LoginError struct {
	Kind    FailureKind
	Message string
	// Role is set once the password has been verified.
	Role roles.Role
}

func (e *LoginError) Error() string { return string(e.Kind) + ": " + e.Message }

// Is lets errors.Is match on the kind alone.
func (e *LoginError) Is(target error) bool {
	t, ok := target.(*LoginError)
	return ok && t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is.
var (
	ErrInvalidCredentials  = &LoginError{Kind: InvalidCredentials}
	ErrAccountDisabled     = &LoginError{Kind: AccountDisabled}
	ErrMobileOnlyRole      = &LoginError{Kind: MobileOnlyRole}
	ErrProfileIncomplete   = &LoginError{Kind: ProfileIncomplete}
	ErrOrganizationMissing = &LoginError{Kind: OrganizationMissing}
)

const (
	msgInvalidCredentials  = "Invalid email or password"
	msgAccountDisabled     = "Account is disabled"
	msgProfileIncomplete   = "Profile setup required. Please complete your profile."
	msgOrganizationMissing = "Organization affiliation required. Please contact your administrator."
)

// AccountFinder looks accounts up by email.
type AccountFinder interface {
	GetByEmail(ctx context.Context, email string) (model.Account, error)
}

// Validator checks credentials and dashboard eligibility.  It holds no
// mutable state.
type Validator struct {
	Accounts AccountFinder
}

func NewValidator(accounts AccountFinder) *Validator { return &Validator{Accounts: accounts} }

// Validate runs the login checks in order and stops at the first failure.
// Rejections are *LoginError; any other error is an infrastructure failure.
func (v *Validator) Validate(ctx context.Context, email, password string) (model.Identity, error) {
	a, err := v.Accounts.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repository.ErrNotFound) {
		utils.BurnPassword(password)
		return model.Identity{}, &LoginError{Kind: InvalidCredentials, Message: msgInvalidCredentials}
	}
	if err != nil {
		return model.Identity{}, fmt.Errorf("lookup account: %w", err)
	}
	if !a.IsActive {
		return model.Identity{}, &LoginError{Kind: AccountDisabled, Message: msgAccountDisabled}
	}
	if !utils.VerifyPassword(a.PasswordHash, password) {
		return model.Identity{}, &LoginError{Kind: InvalidCredentials, Message: msgInvalidCredentials}
	}
	if !roles.DashboardEligible(a.Role) {
		return model.Identity{}, &LoginError{
			Kind:    MobileOnlyRole,
			Message: fmt.Sprintf("Dashboard access denied. %s must use the Nurox Mobile App.", roles.DisplayName(a.Role)),
			Role:    a.Role,
		}
	}
	if roles.RequiresProfile(a.Role) && !a.HasProfileFor() {
		return model.Identity{}, &LoginError{Kind: ProfileIncomplete, Message: msgProfileIncomplete, Role: a.Role}
	}
	if roles.RequiresOrganization(a.Role) && !a.HasOrganizationFor() {
		return model.Identity{}, &LoginError{Kind: OrganizationMissing, Message: msgOrganizationMissing, Role: a.Role}
	}
	return model.NewIdentity(a), nil
}
