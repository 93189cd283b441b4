package audit

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/meditrust/hospital-core/internal/models"
	"github.com/meditrust/hospital-core/internal/monitoring"
)

// Repository appends journal rows. The journal is append-only; there is no
// update or delete path.
type Repository interface {
	// Append writes the entry unless one with the same event id already
	// exists. Returns false when the entry was a duplicate.
	Append(ctx context.Context, entry *models.AuditEntry) (bool, error)
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]models.AuditEntry, error)
	ListByResource(ctx context.Context, tenantID, resourceType, resourceID string) ([]models.AuditEntry, error)
	ListByUser(ctx context.Context, tenantID, userID string, limit int) ([]models.AuditEntry, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

// Append relies on the unique index on event_id: replayed events hit
// ON CONFLICT DO NOTHING and the journal keeps exactly one row per event.
func (r *postgresRepository) Append(ctx context.Context, entry *models.AuditEntry) (bool, error) {
	start := time.Now()
	const q = `
		INSERT INTO audit_entries (id, tenant_id, user_id, user_email, action,
			resource_type, resource_id, description, old_value, new_value,
			ip_address, user_agent, event_id, timestamp)
		VALUES (:id, :tenant_id, :user_id, :user_email, :action,
			:resource_type, :resource_id, :description, :old_value, :new_value,
			:ip_address, :user_agent, :event_id, :timestamp)
		ON CONFLICT (event_id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, q, entry)
	monitoring.RecordDBOperation("insert", "audit_entries", time.Since(start), err == nil)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *postgresRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]models.AuditEntry, error) {
	start := time.Now()
	var entries []models.AuditEntry
	const q = `
		SELECT * FROM audit_entries
		WHERE tenant_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`
	err := r.db.SelectContext(ctx, &entries, q, tenantID, limit)
	monitoring.RecordDBOperation("select", "audit_entries", time.Since(start), err == nil)
	return entries, err
}

func (r *postgresRepository) ListByResource(ctx context.Context, tenantID, resourceType, resourceID string) ([]models.AuditEntry, error) {
	start := time.Now()
	var entries []models.AuditEntry
	const q = `
		SELECT * FROM audit_entries
		WHERE tenant_id = $1 AND resource_type = $2 AND resource_id = $3
		ORDER BY timestamp DESC`
	err := r.db.SelectContext(ctx, &entries, q, tenantID, resourceType, resourceID)
	monitoring.RecordDBOperation("select", "audit_entries", time.Since(start), err == nil)
	return entries, err
}

func (r *postgresRepository) ListByUser(ctx context.Context, tenantID, userID string, limit int) ([]models.AuditEntry, error) {
	start := time.Now()
	var entries []models.AuditEntry
	const q = `
		SELECT * FROM audit_entries
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY timestamp DESC
		LIMIT $3`
	err := r.db.SelectContext(ctx, &entries, q, tenantID, userID, limit)
	monitoring.RecordDBOperation("select", "audit_entries", time.Since(start), err == nil)
	return entries, err
}
