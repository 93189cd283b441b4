package rbac

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/meditrust/hospital-core/internal/models"
	"github.com/meditrust/hospital-core/internal/monitoring"
)

// Repository reads and writes role assignments. Resolution queries are
// written as single joins so resolving one user never fans out into per-role
// lookups.
type Repository interface {
	ValidRoleNames(ctx context.Context, tenantID, userID string, now time.Time) ([]string, error)
	ValidPermissionNames(ctx context.Context, tenantID, userID string, now time.Time) ([]string, error)
	HasResourcePermission(ctx context.Context, tenantID, userID, resource, resourceID, action string) (bool, error)
	ResourceIDsFor(ctx context.Context, tenantID, userID, resource, action string) ([]string, error)
	FindRoleByName(ctx context.Context, tenantID, name string) (*models.Role, error)
	AssignRole(ctx context.Context, assignment *models.UserRole) error
	RevokeRole(ctx context.Context, tenantID, userID, roleID string) error
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

// validity is the shared predicate for an in-force role assignment.
const validity = `
	ur.active
	AND (ur.valid_from IS NULL OR ur.valid_from <= $3)
	AND (ur.valid_until IS NULL OR ur.valid_until > $3)`

func (r *postgresRepository) ValidRoleNames(ctx context.Context, tenantID, userID string, now time.Time) ([]string, error) {
	start := time.Now()
	var names []string
	q := `
		SELECT DISTINCT r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.tenant_id = $1 AND ur.user_id = $2 AND r.active AND ` + validity
	err := r.db.SelectContext(ctx, &names, q, tenantID, userID, now)
	monitoring.RecordDBOperation("select", "user_roles", time.Since(start), err == nil)
	return names, err
}

func (r *postgresRepository) ValidPermissionNames(ctx context.Context, tenantID, userID string, now time.Time) ([]string, error) {
	start := time.Now()
	var names []string
	q := `
		SELECT DISTINCT p.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		JOIN role_permissions rp ON rp.role_id = r.id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.tenant_id = $1 AND ur.user_id = $2 AND r.active AND ` + validity
	err := r.db.SelectContext(ctx, &names, q, tenantID, userID, now)
	monitoring.RecordDBOperation("select", "role_permissions", time.Since(start), err == nil)
	return names, err
}

func (r *postgresRepository) HasResourcePermission(ctx context.Context, tenantID, userID, resource, resourceID, action string) (bool, error) {
	start := time.Now()
	var exists bool
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM user_resource_permissions
			WHERE tenant_id = $1 AND user_id = $2
			  AND resource = $3 AND resource_id = $4 AND action = $5
		)`
	err := r.db.GetContext(ctx, &exists, q, tenantID, userID, resource, resourceID, action)
	monitoring.RecordDBOperation("select", "user_resource_permissions", time.Since(start), err == nil)
	return exists, err
}

func (r *postgresRepository) ResourceIDsFor(ctx context.Context, tenantID, userID, resource, action string) ([]string, error) {
	start := time.Now()
	var ids []string
	const q = `
		SELECT resource_id FROM user_resource_permissions
		WHERE tenant_id = $1 AND user_id = $2 AND resource = $3 AND action = $4
		ORDER BY created_at`
	err := r.db.SelectContext(ctx, &ids, q, tenantID, userID, resource, action)
	monitoring.RecordDBOperation("select", "user_resource_permissions", time.Since(start), err == nil)
	return ids, err
}

func (r *postgresRepository) FindRoleByName(ctx context.Context, tenantID, name string) (*models.Role, error) {
	start := time.Now()
	var role models.Role
	const q = `SELECT * FROM roles WHERE tenant_id = $1 AND name = $2 AND active`
	err := r.db.GetContext(ctx, &role, q, tenantID, name)
	monitoring.RecordDBOperation("select", "roles", time.Since(start), err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *postgresRepository) AssignRole(ctx context.Context, assignment *models.UserRole) error {
	start := time.Now()
	const q = `
		INSERT INTO user_roles (id, user_id, role_id, tenant_id, department,
			assigned_by, valid_from, valid_until, active, created_at)
		VALUES (:id, :user_id, :role_id, :tenant_id, :department,
			:assigned_by, :valid_from, :valid_until, :active, :created_at)
		ON CONFLICT (tenant_id, user_id, role_id) DO UPDATE
		SET active = true, valid_from = EXCLUDED.valid_from, valid_until = EXCLUDED.valid_until`
	_, err := r.db.NamedExecContext(ctx, q, assignment)
	monitoring.RecordDBOperation("insert", "user_roles", time.Since(start), err == nil)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrRoleNotFound
		}
		return err
	}
	return nil
}

func (r *postgresRepository) RevokeRole(ctx context.Context, tenantID, userID, roleID string) error {
	start := time.Now()
	const q = `
		UPDATE user_roles SET active = false
		WHERE tenant_id = $1 AND user_id = $2 AND role_id = $3`
	_, err := r.db.ExecContext(ctx, q, tenantID, userID, roleID)
	monitoring.RecordDBOperation("update", "user_roles", time.Since(start), err == nil)
	return err
}
