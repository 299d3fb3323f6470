// Package seed loads demo organizations and accounts into the database.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/iliyamo/nurox-dashboard/internal/model"
	"github.com/iliyamo/nurox-dashboard/internal/repository"
	"github.com/iliyamo/nurox-dashboard/internal/roles"
	"github.com/iliyamo/nurox-dashboard/internal/utils"
)

//go:embed demo.yaml
var demo []byte

// namespace derives stable ids so seeding twice yields the same rows.
var namespace = uuid.MustParse("6f1c2a4e-9d0b-4f57-8a43-2b7e0c5d9e11")

type Fixture struct {
	Password      string        `yaml:"password"`
	Organizations []Org         `yaml:"organizations"`
	Accounts      []AccountSpec `yaml:"accounts"`
}

type Org struct {
	Key    string                 `yaml:"key"`
	Kind   model.OrganizationKind `yaml:"kind"`
	Name   string                 `yaml:"name"`
	Status string                 `yaml:"status"`
}

type AccountSpec struct {
	Email        string       `yaml:"email"`
	Role         string       `yaml:"role"`
	FirstName    string       `yaml:"first_name"`
	LastName     string       `yaml:"last_name"`
	Phone        string       `yaml:"phone"`
	Organization string       `yaml:"organization"`
	Inactive     bool         `yaml:"inactive"`
	Profile      *ProfileSpec `yaml:"profile"`
}

type ProfileSpec struct {
	LicenseNumber  string `yaml:"license_number"`
	Specialization string `yaml:"specialization"`
}

// Parse decodes and validates a fixture.
func Parse(b []byte) (Fixture, error) {
	var fx Fixture
	if err := yaml.Unmarshal(b, &fx); err != nil {
		return Fixture{}, fmt.Errorf("seed: %w", err)
	}
	if fx.Password == "" {
		return Fixture{}, errors.New("seed: password is required")
	}
	orgs := make(map[string]bool, len(fx.Organizations))
	for _, o := range fx.Organizations {
		switch o.Kind {
		case model.OrgHospital, model.OrgPharmacy, model.OrgLaboratory, model.OrgInsurance:
		default:
			return Fixture{}, fmt.Errorf("seed: organization %q: unknown kind %q", o.Key, o.Kind)
		}
		orgs[o.Key] = true
	}
	var errs []error
	for _, a := range fx.Accounts {
		if _, err := roles.ParseRole(a.Role); err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", a.Email, err))
		}
		if a.Organization != "" && !orgs[a.Organization] {
			errs = append(errs, fmt.Errorf("account %s: unknown organization %q", a.Email, a.Organization))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Fixture{}, fmt.Errorf("seed: %w", err)
	}
	return fx, nil
}

// Demo returns the built-in demo fixture.
func Demo() (Fixture, error) { return Parse(demo) }

// Store is the write side of the account repository.
// *repository.AccountRepo satisfies it.
type Store interface {
	UpsertOrganization(ctx context.Context, o model.Organization) error
	Create(ctx context.Context, a model.Account) error
	UpsertProfile(ctx context.Context, userID string, p model.Profile) error
}

// Result counts what Apply did.
type Result struct {
	Organizations int
	Created       int
	Skipped       int
}

// Apply writes the fixture.  Accounts whose email already exists are left
// untouched.  cost is the bcrypt cost; 0 means the default.
func Apply(ctx context.Context, st Store, fx Fixture, cost int, log zerolog.Logger) (Result, error) {
	var res Result
	orgs := make(map[string]model.Organization, len(fx.Organizations))
	for _, o := range fx.Organizations {
		org := model.Organization{
			ID:     OrgID(o.Key),
			Kind:   o.Kind,
			Name:   o.Name,
			Status: o.Status,
		}
		if err := st.UpsertOrganization(ctx, org); err != nil {
			return res, fmt.Errorf("seed organization %s: %w", o.Key, err)
		}
		orgs[o.Key] = org
		res.Organizations++
	}

	hash, err := utils.HashPassword(fx.Password, cost)
	if err != nil {
		return res, err
	}

	for _, entry := range fx.Accounts {
		a, err := buildAccount(entry, hash, orgs)
		if err != nil {
			return res, err
		}
		err = st.Create(ctx, a)
		if errors.Is(err, repository.ErrEmailExists) {
			log.Debug().Str("email", a.Email).Msg("seed account exists")
			res.Skipped++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("seed account %s: %w", a.Email, err)
		}
		if kind, ok := model.ProfileKindFor(a.Role); ok && entry.Profile != nil {
			p := model.Profile{
				ID:             uuid.NewSHA1(namespace, []byte("profile:"+a.Email)).String(),
				Kind:           kind,
				LicenseNumber:  entry.Profile.LicenseNumber,
				Specialization: entry.Profile.Specialization,
			}
			if err := st.UpsertProfile(ctx, a.ID, p); err != nil {
				return res, fmt.Errorf("seed profile %s: %w", a.Email, err)
			}
		}
		log.Info().Str("email", a.Email).Str("role", a.Role.String()).Msg("seeded account")
		res.Created++
	}
	return res, nil
}

// AccountID is the id seeded for email.
func AccountID(email string) string {
	return uuid.NewSHA1(namespace, []byte("user:"+strings.TrimSpace(email))).String()
}

// OrgID is the id seeded for an organization key.
func OrgID(key string) string {
	return uuid.NewSHA1(namespace, []byte("org:"+key)).String()
}

func buildAccount(entry AccountSpec, hash string, orgs map[string]model.Organization) (model.Account, error) {
	r, err := roles.ParseRole(entry.Role)
	if err != nil {
		return model.Account{}, err
	}
	a := model.Account{
		ID:            AccountID(entry.Email),
		Email:         strings.TrimSpace(entry.Email),
		PasswordHash:  hash,
		FirstName:     entry.FirstName,
		LastName:      entry.LastName,
		Phone:         entry.Phone,
		Role:          r,
		IsActive:      !entry.Inactive,
		EmailVerified: true,
	}
	if entry.Organization == "" {
		return a, nil
	}
	org, ok := orgs[entry.Organization]
	if !ok {
		return model.Account{}, fmt.Errorf("account %s: unknown organization %q", entry.Email, entry.Organization)
	}
	id := org.ID
	switch org.Kind {
	case model.OrgHospital:
		a.HospitalID = &id
	case model.OrgPharmacy:
		a.PharmacyID = &id
	case model.OrgLaboratory:
		a.LaboratoryID = &id
	case model.OrgInsurance:
		a.InsuranceID = &id
	}
	return a, nil
}
