package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"agency-platform/internal/domain/user"
	"agency-platform/internal/rbac"
	apperrors "agency-platform/pkg/errors"
)

const userColumns = `id, email, password_hash, role, agency_id,
		       array_to_string(permissions, ','), active, created_at, updated_at`

// PermissionCatalog rejects permission names the permission model does not
// define.
type PermissionCatalog interface {
	ValidatePermissions(perms []rbac.Permission) error
}

type UserRepository struct {
	db      *DB
	catalog PermissionCatalog
}

// NewUserRepository checks stored and inserted permissions against catalog.
// A nil catalog accepts any name.
func NewUserRepository(db *DB, catalog PermissionCatalog) *UserRepository {
	return &UserRepository{db: db, catalog: catalog}
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.findOne(ctx, query, id)
}

// FindByEmail matches case-insensitively; emails are stored lowercased.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.findOne(ctx, query, strings.ToLower(strings.TrimSpace(email)))
}

// Create inserts u and fills in its ID and timestamps. It reports false, and
// leaves u untouched, when the email is already registered.
func (r *UserRepository) Create(ctx context.Context, u *user.User) (bool, error) {
	perms := u.Permissions.Strings()
	if err := r.checkPermissions(perms); err != nil {
		return false, errInvalidPermissions(u.Email, err)
	}

	query := `INSERT INTO users (email, password_hash, role, agency_id, permissions, active)
		VALUES ($1, $2, $3, $4, string_to_array($5, ','), $6)
		ON CONFLICT (email) DO NOTHING
		RETURNING id, created_at, updated_at`

	agencyID := uuid.NullUUID{UUID: u.TenantID, Valid: u.TenantID != uuid.Nil}
	var created user.User
	err := r.db.SQL.QueryRowContext(ctx, query,
		strings.ToLower(strings.TrimSpace(u.Email)),
		u.PasswordHash,
		string(u.Role),
		agencyID,
		strings.Join(perms, permissionSeparator),
		u.Active,
	).Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errFailedCreateUser(err)
	}

	u.ID, u.CreatedAt, u.UpdatedAt = created.ID, created.CreatedAt, created.UpdatedAt
	return true, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.SQL.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return errFailedUpdateUserPassword(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errFailedUpdateUserPassword(err)
	}
	if affected == 0 {
		return apperrors.NotFound(errUserNotFound)
	}

	return nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg any) (*user.User, error) {
	var (
		u           user.User
		role        string
		agencyID    uuid.NullUUID
		permissions string
	)

	err := r.db.SQL.QueryRowContext(ctx, query, arg).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&role,
		&agencyID,
		&permissions,
		&u.Active,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound(errUserNotFound)
		}
		return nil, errFailedGetUser(err)
	}

	parsed, err := rbac.ParseRole(role)
	if err != nil {
		return nil, errInvalidStoredRole(u.ID, err)
	}
	u.Role = parsed
	if agencyID.Valid {
		u.TenantID = agencyID.UUID
	}
	names := splitPermissions(permissions)
	if err := r.checkPermissions(names); err != nil {
		return nil, errInvalidStoredPermissions(u.ID, err)
	}
	u.Permissions = rbac.PermissionSetFromStrings(names)

	return &u, nil
}

func (r *UserRepository) checkPermissions(names []string) error {
	if r.catalog == nil || len(names) == 0 {
		return nil
	}
	perms := make([]rbac.Permission, len(names))
	for i, n := range names {
		perms[i] = rbac.Permission(n)
	}
	return r.catalog.ValidatePermissions(perms)
}

func splitPermissions(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, permissionSeparator)
}
