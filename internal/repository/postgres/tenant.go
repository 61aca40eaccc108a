package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"agency-platform/internal/domain/tenant"
	apperrors "agency-platform/pkg/errors"
)

const agencyColumns = `id, owner_client_id, subdomain, name, status,
		       storage_mb, bandwidth_mb, created_at, updated_at`

type TenantRepository struct {
	db *DB
}

func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) FindBySubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error) {
	query := `SELECT ` + agencyColumns + ` FROM agencies WHERE subdomain = $1`
	return r.findOne(ctx, query, subdomain)
}

func (r *TenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	query := `SELECT ` + agencyColumns + ` FROM agencies WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *TenantRepository) FindActiveByOwner(ctx context.Context, ownerClientID uuid.UUID) ([]*tenant.Tenant, error) {
	query := `SELECT ` + agencyColumns + `
		FROM agencies
		WHERE owner_client_id = $1 AND status = 'active'
		ORDER BY created_at ASC`

	rows, err := r.db.SQL.QueryContext(ctx, query, ownerClientID)
	if err != nil {
		return nil, errFailedListAgencies(err)
	}
	defer rows.Close()

	var agencies []*tenant.Tenant
	for rows.Next() {
		t, err := scanAgency(rows)
		if err != nil {
			return nil, errFailedScanAgency(err)
		}
		agencies = append(agencies, t)
	}

	if err := rows.Err(); err != nil {
		return nil, errIterateAgencies(err)
	}

	return agencies, nil
}

func (r *TenantRepository) findOne(ctx context.Context, query string, arg any) (*tenant.Tenant, error) {
	t, err := scanAgency(r.db.SQL.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound(errAgencyNotFound)
		}
		return nil, errFailedGetAgency(err)
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgency(row rowScanner) (*tenant.Tenant, error) {
	t := &tenant.Tenant{}
	var status string
	err := row.Scan(
		&t.ID,
		&t.OwnerClientID,
		&t.Subdomain,
		&t.Name,
		&status,
		&t.Limits.StorageMB,
		&t.Limits.BandwidthMB,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = tenant.Status(status)
	return t, nil
}
