package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/meditrust/hospital-core/internal/models"
	"github.com/meditrust/hospital-core/internal/monitoring"
)

// ErrFactsNotFound is returned by finders when no snapshot row exists.
var ErrFactsNotFound = errors.New("snapshot: facts not found")

// Repository persists the locally-owned patient and doctor facts rows that
// the appointment service projects from upstream events.
type Repository interface {
	UpsertPatient(ctx context.Context, facts *models.PatientFacts) (bool, error)
	DeletePatient(ctx context.Context, tenantID, patientID string) error
	FindPatient(ctx context.Context, tenantID, patientID string) (*models.PatientFacts, error)
	UpsertDoctor(ctx context.Context, facts *models.DoctorFacts) (bool, error)
	FindDoctor(ctx context.Context, tenantID, doctorID string) (*models.DoctorFacts, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

// UpsertPatient writes the row unless a newer projection already landed.
// The updated_at guard makes replays and out-of-order deliveries no-ops.
func (r *postgresRepository) UpsertPatient(ctx context.Context, facts *models.PatientFacts) (bool, error) {
	start := time.Now()
	const q = `
		INSERT INTO patient_facts (id, tenant_id, name, email, phone, gender, disease, updated_at)
		VALUES (:id, :tenant_id, :name, :email, :phone, :gender, :disease, :updated_at)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone,
			gender = EXCLUDED.gender, disease = EXCLUDED.disease, updated_at = EXCLUDED.updated_at
		WHERE patient_facts.updated_at < EXCLUDED.updated_at`
	res, err := r.db.NamedExecContext(ctx, q, facts)
	monitoring.RecordDBOperation("upsert", "patient_facts", time.Since(start), err == nil)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *postgresRepository) DeletePatient(ctx context.Context, tenantID, patientID string) error {
	start := time.Now()
	const q = `DELETE FROM patient_facts WHERE tenant_id = $1 AND id = $2`
	_, err := r.db.ExecContext(ctx, q, tenantID, patientID)
	monitoring.RecordDBOperation("delete", "patient_facts", time.Since(start), err == nil)
	return err
}

func (r *postgresRepository) FindPatient(ctx context.Context, tenantID, patientID string) (*models.PatientFacts, error) {
	start := time.Now()
	var facts models.PatientFacts
	const q = `SELECT * FROM patient_facts WHERE tenant_id = $1 AND id = $2`
	err := r.db.GetContext(ctx, &facts, q, tenantID, patientID)
	monitoring.RecordDBOperation("select", "patient_facts", time.Since(start), err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, ErrFactsNotFound
	}
	if err != nil {
		return nil, err
	}
	return &facts, nil
}

func (r *postgresRepository) UpsertDoctor(ctx context.Context, facts *models.DoctorFacts) (bool, error) {
	start := time.Now()
	const q = `
		INSERT INTO doctor_facts (id, tenant_id, name, email, phone, gender, specialty, updated_at)
		VALUES (:id, :tenant_id, :name, :email, :phone, :gender, :specialty, :updated_at)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone,
			gender = EXCLUDED.gender, specialty = EXCLUDED.specialty, updated_at = EXCLUDED.updated_at
		WHERE doctor_facts.updated_at < EXCLUDED.updated_at`
	res, err := r.db.NamedExecContext(ctx, q, facts)
	monitoring.RecordDBOperation("upsert", "doctor_facts", time.Since(start), err == nil)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *postgresRepository) FindDoctor(ctx context.Context, tenantID, doctorID string) (*models.DoctorFacts, error) {
	start := time.Now()
	var facts models.DoctorFacts
	const q = `SELECT * FROM doctor_facts WHERE tenant_id = $1 AND id = $2`
	err := r.db.GetContext(ctx, &facts, q, tenantID, doctorID)
	monitoring.RecordDBOperation("select", "doctor_facts", time.Since(start), err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, ErrFactsNotFound
	}
	if err != nil {
		return nil, err
	}
	return &facts, nil
}
