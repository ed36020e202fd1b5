package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"certportal/internal/org/models"
	id "certportal/pkg/domain"
	"certportal/pkg/platform/sentinel"
)

// PostgresStore persists organizations in PostgreSQL via database/sql.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed organization store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema is applied by migrations; kept here for integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS organizations (
    id UUID PRIMARY KEY,
    legal_name TEXT NOT NULL,
    tax_id TEXT NOT NULL,
    contract_date DATE NOT NULL,
    status TEXT NOT NULL,
    assigned_analyst_id UUID,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS organizations_legal_name_idx ON organizations (LOWER(legal_name));
`

const uniqueViolation = "23505"

func (s *PostgresStore) CreateIfNameAvailable(ctx context.Context, org *models.Organization) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, legal_name, tax_id, contract_date, status, assigned_analyst_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		org.ID.String(), org.LegalName, org.TaxID, org.ContractDate, string(org.Status),
		nullableID(org.AssignedAnalystID), org.CreatedAt, org.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, orgID id.OrganizationID) (*models.Organization, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, legal_name, tax_id, contract_date, status, assigned_analyst_id, created_at, updated_at
		FROM organizations WHERE id = $1`, orgID.String())
	return scanOrganization(row)
}

func (s *PostgresStore) Update(ctx context.Context, org *models.Organization) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE organizations
		SET legal_name = $2, tax_id = $3, contract_date = $4, status = $5, assigned_analyst_id = $6, updated_at = $7
		WHERE id = $1`,
		org.ID.String(), org.LegalName, org.TaxID, org.ContractDate, string(org.Status),
		nullableID(org.AssignedAnalystID), org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, legal_name, tax_id, contract_date, status, assigned_analyst_id, created_at, updated_at
		FROM organizations ORDER BY LOWER(legal_name)`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organizations: %w", err)
	}
	return orgs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row rowScanner) (*models.Organization, error) {
	var (
		org          models.Organization
		orgID        string
		analystID    sql.NullString
		contractDate time.Time
	)
	err := row.Scan(&orgID, &org.LegalName, &org.TaxID, &contractDate, &org.Status, &analystID, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan organization: %w", err)
	}
	parsedOrgID, err := id.ParseOrganizationID(orgID)
	if err != nil {
		return nil, fmt.Errorf("parse organization id: %w", err)
	}
	org.ID = parsedOrgID
	org.ContractDate = contractDate
	if analystID.Valid {
		parsedAnalyst, err := id.ParsePrincipalID(analystID.String)
		if err != nil {
			return nil, fmt.Errorf("parse analyst id: %w", err)
		}
		org.AssignedAnalystID = parsedAnalyst
	}
	return &org, nil
}

func nullableID(pid id.PrincipalID) sql.NullString {
	if pid.IsNil() {
		return sql.NullString{}
	}
	return sql.NullString{String: pid.String(), Valid: true}
}
