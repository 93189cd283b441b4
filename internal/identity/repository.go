package identity

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

// ErrDuplicateEmail is returned when a registration collides with an existing
// email inside the same tenant.
var ErrDuplicateEmail = errors.New("identity: email already registered")

// ErrUserNotFound is returned by finders when no row matches.
var ErrUserNotFound = errors.New("identity: user not found")

// Repository persists users. Every query is tenant-scoped; there are no
// cross-tenant finders.
type Repository interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, tenantID, email string) (*models.User, error)
	FindByID(ctx context.Context, tenantID, id string) (*models.User, error)
	RecordLoginSuccess(ctx context.Context, tenantID, id string, at time.Time) error
	RecordLoginFailure(ctx context.Context, tenantID, id string, attempts int, lockedUntil *time.Time) error
	SetActive(ctx context.Context, tenantID, id string, active bool) error
	UpdateProfile(ctx context.Context, user *models.User) error
}

type postgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository wraps the shared database handle.
func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, user *models.User) error {
	start := time.Now()
	const q = `
		INSERT INTO users (id, tenant_id, name, email, phone, password_hash,
			active, email_verified, failed_attempts, password_changed_at,
			created_at, updated_at)
		VALUES (:id, :tenant_id, :name, :email, :phone, :password_hash,
			:active, :email_verified, :failed_attempts, :password_changed_at,
			:created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, q, user)
	monitoring.RecordDBOperation("insert", "users", time.Since(start), err == nil)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *postgresRepository) FindByEmail(ctx context.Context, tenantID, email string) (*models.User, error) {
	start := time.Now()
	var user models.User
	const q = `SELECT * FROM users WHERE tenant_id = $1 AND email = $2`
	err := r.db.GetContext(ctx, &user, q, tenantID, email)
	monitoring.RecordDBOperation("select", "users", time.Since(start), err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *postgresRepository) FindByID(ctx context.Context, tenantID, id string) (*models.User, error) {
	start := time.Now()
	var user models.User
	const q = `SELECT * FROM users WHERE tenant_id = $1 AND id = $2`
	err := r.db.GetContext(ctx, &user, q, tenantID, id)
	monitoring.RecordDBOperation("select", "users", time.Since(start), err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// RecordLoginSuccess resets the lockout state and stamps last_login_at.
func (r *postgresRepository) RecordLoginSuccess(ctx context.Context, tenantID, id string, at time.Time) error {
	start := time.Now()
	const q = `
		UPDATE users
		SET failed_attempts = 0, locked_until = NULL, last_login_at = $3, updated_at = $3
		WHERE tenant_id = $1 AND id = $2`
	_, err := r.db.ExecContext(ctx, q, tenantID, id, at)
	monitoring.RecordDBOperation("update", "users", time.Since(start), err == nil)
	return err
}

// RecordLoginFailure stores the incremented counter and, when the threshold
// was crossed, the lockout expiry.
func (r *postgresRepository) RecordLoginFailure(ctx context.Context, tenantID, id string, attempts int, lockedUntil *time.Time) error {
	start := time.Now()
	const q = `
		UPDATE users
		SET failed_attempts = $3, locked_until = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`
	_, err := r.db.ExecContext(ctx, q, tenantID, id, attempts, lockedUntil)
	monitoring.RecordDBOperation("update", "users", time.Since(start), err == nil)
	return err
}

func (r *postgresRepository) SetActive(ctx context.Context, tenantID, id string, active bool) error {
	start := time.Now()
	const q = `UPDATE users SET active = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, q, tenantID, id, active)
	monitoring.RecordDBOperation("update", "users", time.Since(start), err == nil)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *postgresRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	start := time.Now()
	const q = `
		UPDATE users
		SET name = :name, phone = :phone, email_verified = :email_verified, updated_at = :updated_at
		WHERE tenant_id = :tenant_id AND id = :id`
	user.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, q, user)
	monitoring.RecordDBOperation("update", "users", time.Since(start), err == nil)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}
