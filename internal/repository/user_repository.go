package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/nurox-dashboard/internal/model"
	"github.com/iliyamo/nurox-dashboard/internal/roles"
)

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// accountSelect joins the profile and whichever organization the account is
// affiliated with.  Only one of the organization joins can match.
const accountSelect = `SELECT
	u.id, u.email, u.password_hash, u.first_name, u.last_name, u.phone, u.role,
	u.is_active, u.email_verified,
	u.hospital_id, u.pharmacy_id, u.laboratory_id, u.insurance_id,
	u.created_at, u.updated_at,
	p.id, p.kind, p.license_number, p.specialization,
	COALESCE(h.name, ph.name, l.name, ic.name),
	COALESCE(h.status, ph.status, l.status, ic.status)
FROM users u
LEFT JOIN profiles p ON p.user_id = u.id
LEFT JOIN hospitals h ON h.id = u.hospital_id
LEFT JOIN pharmacies ph ON ph.id = u.pharmacy_id
LEFT JOIN laboratories l ON l.id = u.laboratory_id
LEFT JOIN insurance_companies ic ON ic.id = u.insurance_id
`

// AccountRepo reads and writes the users table and its associations.
type AccountRepo struct{ DB *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{DB: db} }

// GetByEmail fetches an account by exact email.  The column uses a binary
// collation so the match is case-sensitive; only surrounding whitespace is
// ignored by the caller.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx, accountSelect+"WHERE u.email = ? LIMIT 1", email))
}

// GetByID fetches an account by id.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (model.Account, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx, accountSelect+"WHERE u.id = ? LIMIT 1", id))
}

func (r *AccountRepo) scanOne(row *sql.Row) (model.Account, error) {
	var (
		a                                          model.Account
		role                                       string
		hospitalID, pharmacyID, labID, insID       sql.NullString
		profileID, profileKind, license, specialty sql.NullString
		orgName, orgStatus                         sql.NullString
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName, &a.Phone, &role,
		&a.IsActive, &a.EmailVerified,
		&hospitalID, &pharmacyID, &labID, &insID,
		&a.CreatedAt, &a.UpdatedAt,
		&profileID, &profileKind, &license, &specialty,
		&orgName, &orgStatus,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	if err != nil {
		return model.Account{}, err
	}

	a.Role, err = roles.ParseRole(role)
	if err != nil {
		return model.Account{}, fmt.Errorf("%w: account %s: %v", ErrInvalidRole, a.ID, err)
	}
	a.HospitalID = nullable(hospitalID)
	a.PharmacyID = nullable(pharmacyID)
	a.LaboratoryID = nullable(labID)
	a.InsuranceID = nullable(insID)

	if profileID.Valid {
		a.Profile = &model.Profile{
			ID:             profileID.String,
			Kind:           model.ProfileKind(profileKind.String),
			LicenseNumber:  license.String,
			Specialization: specialty.String,
		}
	}
	if id, kind, ok := affiliation(a); ok && orgName.Valid {
		a.Organization = &model.Organization{ID: id, Kind: kind, Name: orgName.String, Status: orgStatus.String}
	}
	return a, nil
}

func affiliation(a model.Account) (string, model.OrganizationKind, bool) {
	switch {
	case a.HospitalID != nil:
		return *a.HospitalID, model.OrgHospital, true
	case a.PharmacyID != nil:
		return *a.PharmacyID, model.OrgPharmacy, true
	case a.LaboratoryID != nil:
		return *a.LaboratoryID, model.OrgLaboratory, true
	case a.InsuranceID != nil:
		return *a.InsuranceID, model.OrgInsurance, true
	}
	return "", "", false
}

func nullable(s sql.NullString) *string {
	if !s.Valid || s.String == "" {
		return nil
	}
	v := s.String
	return &v
}

func nullString(p *string) sql.NullString {
	if p == nil || *p == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// Create inserts an account.  PasswordHash must already be hashed.
func (r *AccountRepo) Create(ctx context.Context, a model.Account) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, first_name, last_name, phone, role,
			is_active, email_verified, hospital_id, pharmacy_id, laboratory_id, insurance_id)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Email, a.PasswordHash, a.FirstName, a.LastName, a.Phone, a.Role.String(),
		a.IsActive, a.EmailVerified,
		nullString(a.HospitalID), nullString(a.PharmacyID), nullString(a.LaboratoryID), nullString(a.InsuranceID))
	if isDuplicate(err) {
		return ErrEmailExists
	}
	return err
}

// UpsertProfile creates or replaces the profile row of a user.
func (r *AccountRepo) UpsertProfile(ctx context.Context, userID string, p model.Profile) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO profiles (id, user_id, kind, license_number, specialization)
		VALUES (?,?,?,?,?)
		ON DUPLICATE KEY UPDATE kind = VALUES(kind), license_number = VALUES(license_number),
			specialization = VALUES(specialization)`,
		p.ID, userID, string(p.Kind), p.LicenseNumber, p.Specialization)
	return err
}

// organizationTables maps an organization kind to its table.
var organizationTables = map[model.OrganizationKind]string{
	model.OrgHospital:   "hospitals",
	model.OrgPharmacy:   "pharmacies",
	model.OrgLaboratory: "laboratories",
	model.OrgInsurance:  "insurance_companies",
}

// UpsertOrganization creates or renames an organization row.
func (r *AccountRepo) UpsertOrganization(ctx context.Context, o model.Organization) error {
	table, ok := organizationTables[o.Kind]
	if !ok {
		return fmt.Errorf("unknown organization kind %q", o.Kind)
	}
	status := o.Status
	if status == "" {
		status = "ACTIVE"
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO "+table+" (id, name, status) VALUES (?,?,?) "+
			"ON DUPLICATE KEY UPDATE name = VALUES(name), status = VALUES(status)",
		o.ID, o.Name, status)
	return err
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
