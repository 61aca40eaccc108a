package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"agency-platform/internal/domain/client"
	apperrors "agency-platform/pkg/errors"
)

type ClientRepository struct {
	db *DB
}

func NewClientRepository(db *DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) FindByID(ctx context.Context, id uuid.UUID) (*client.Client, error) {
	query := `
		SELECT id, email, status, storage_mb, bandwidth_mb, agency_count, created_at, updated_at
		FROM clients
		WHERE id = $1
	`

	c := &client.Client{}
	var status string
	err := r.db.SQL.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.Email,
		&status,
		&c.Limits.StorageMB,
		&c.Limits.BandwidthMB,
		&c.Limits.AgencyCount,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound(errClientNotFound)
		}
		return nil, errFailedGetClient(err)
	}
	c.Status = client.Status(status)

	return c, nil
}

// OwnsTenant reports whether clientID owns the agency, regardless of the
// agency's status.
func (r *ClientRepository) OwnsTenant(ctx context.Context, clientID, tenantID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM agencies WHERE id = $1 AND owner_client_id = $2)`

	var owns bool
	if err := r.db.SQL.QueryRowContext(ctx, query, tenantID, clientID).Scan(&owns); err != nil {
		return false, errFailedCheckOwnership(err)
	}
	return owns, nil
}
