package appointment

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

var (
	// ErrNotFound is returned when no appointment matches.
	ErrNotFound = errors.New("appointment: not found")
	// ErrSlotTaken is returned when the doctor already has a non-cancelled
	// appointment at the requested time.
	ErrSlotTaken = errors.New("appointment: slot already booked")
)

// Repository persists appointments. Writes that must observe the
// double-booking invariant run inside one transaction; the partial unique
// index on (doctor_id, appointment_date) WHERE status <> 'CANCELLED' is the
// backstop against races the in-transaction check cannot see.
type Repository interface {
	Create(ctx context.Context, appt *models.Appointment) error
	FindByID(ctx context.Context, tenantID, id string) (*models.Appointment, error)
	ListByPatient(ctx context.Context, tenantID, patientID string) ([]models.Appointment, error)
	ListByDoctor(ctx context.Context, tenantID, doctorID string) ([]models.Appointment, error)
	ListByStatus(ctx context.Context, tenantID string, status models.AppointmentStatus) ([]models.Appointment, error)
	ListUpcoming(ctx context.Context, tenantID string, from, until time.Time) ([]models.Appointment, error)
	Update(ctx context.Context, appt *models.Appointment) error
	Delete(ctx context.Context, tenantID, id string) error
	CountByStatus(ctx context.Context, tenantID string) ([]models.StatusCount, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Create inserts a new booking. The slot check and the insert share one
// transaction so two concurrent bookings cannot both pass the check.
func (r *postgresRepository) Create(ctx context.Context, appt *models.Appointment) error {
	start := time.Now()
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		taken, err := slotTaken(ctx, tx, appt.TenantID, appt.DoctorID, appt.AppointmentDate, "")
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}
		const q = `
			INSERT INTO appointments (id, tenant_id, patient_id, doctor_id,
				appointment_date, status, reason, notes, created_at, updated_at)
			VALUES (:id, :tenant_id, :patient_id, :doctor_id,
				:appointment_date, :status, :reason, :notes, :created_at, :updated_at)`
		_, err = tx.NamedExecContext(ctx, q, appt)
		return err
	})
	monitoring.RecordDBOperation("insert", "appointments", time.Since(start), err == nil)
	if isUniqueViolation(err) {
		return ErrSlotTaken
	}
	return err
}

// slotTaken locks matching rows so a concurrent transaction serializes
// behind this one.
func slotTaken(ctx context.Context, tx *sqlx.Tx, tenantID, doctorID string, date time.Time, excludeID string) (bool, error) {
	var ids []string
	const q = `
		SELECT id FROM appointments
		WHERE tenant_id = $1 AND doctor_id = $2 AND appointment_date = $3
		  AND status <> 'CANCELLED'
		FOR UPDATE`
	if err := tx.SelectContext(ctx, &ids, q, tenantID, doctorID, date); err != nil {
		return false, err
	}
	for _, id := range ids {
		if id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *postgresRepository) FindByID(ctx context.Context, tenantID, id string) (*models.Appointment, error) {
	start := time.Now()
	var appt models.Appointment
	const q = `SELECT * FROM appointments WHERE tenant_id = $1 AND id = $2`
	err := r.db.GetContext(ctx, &appt, q, tenantID, id)
	monitoring.RecordDBOperation("select", "appointments", time.Since(start), err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

func (r *postgresRepository) ListByPatient(ctx context.Context, tenantID, patientID string) ([]models.Appointment, error) {
	const q = `
		SELECT * FROM appointments
		WHERE tenant_id = $1 AND patient_id = $2
		ORDER BY appointment_date DESC`
	return r.list(ctx, q, tenantID, patientID)
}

func (r *postgresRepository) ListByDoctor(ctx context.Context, tenantID, doctorID string) ([]models.Appointment, error) {
	const q = `
		SELECT * FROM appointments
		WHERE tenant_id = $1 AND doctor_id = $2
		ORDER BY appointment_date DESC`
	return r.list(ctx, q, tenantID, doctorID)
}

func (r *postgresRepository) ListByStatus(ctx context.Context, tenantID string, status models.AppointmentStatus) ([]models.Appointment, error) {
	const q = `
		SELECT * FROM appointments
		WHERE tenant_id = $1 AND status = $2
		ORDER BY appointment_date`
	return r.list(ctx, q, tenantID, string(status))
}

func (r *postgresRepository) ListUpcoming(ctx context.Context, tenantID string, from, until time.Time) ([]models.Appointment, error) {
	const q = `
		SELECT * FROM appointments
		WHERE tenant_id = $1 AND appointment_date >= $2 AND appointment_date < $3
		  AND status IN ('PENDING', 'CONFIRMED')
		ORDER BY appointment_date`
	return r.list(ctx, q, tenantID, from, until)
}

func (r *postgresRepository) list(ctx context.Context, q string, args ...interface{}) ([]models.Appointment, error) {
	start := time.Now()
	var appts []models.Appointment
	err := r.db.SelectContext(ctx, &appts, q, args...)
	monitoring.RecordDBOperation("select", "appointments", time.Since(start), err == nil)
	return appts, err
}

// Update rewrites the mutable columns. Reschedules re-run the slot check
// inside the same transaction, excluding the row being moved.
func (r *postgresRepository) Update(ctx context.Context, appt *models.Appointment) error {
	start := time.Now()
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		if appt.Status != models.StatusCancelled {
			taken, err := slotTaken(ctx, tx, appt.TenantID, appt.DoctorID, appt.AppointmentDate, appt.ID)
			if err != nil {
				return err
			}
			if taken {
				return ErrSlotTaken
			}
		}
		const q = `
			UPDATE appointments
			SET appointment_date = :appointment_date, status = :status,
				reason = :reason, notes = :notes, updated_at = :updated_at
			WHERE tenant_id = :tenant_id AND id = :id`
		res, err := tx.NamedExecContext(ctx, q, appt)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	monitoring.RecordDBOperation("update", "appointments", time.Since(start), err == nil)
	if isUniqueViolation(err) {
		return ErrSlotTaken
	}
	return err
}

func (r *postgresRepository) Delete(ctx context.Context, tenantID, id string) error {
	start := time.Now()
	const q = `DELETE FROM appointments WHERE tenant_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, q, tenantID, id)
	monitoring.RecordDBOperation("delete", "appointments", time.Since(start), err == nil)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) CountByStatus(ctx context.Context, tenantID string) ([]models.StatusCount, error) {
	start := time.Now()
	var counts []models.StatusCount
	const q = `
		SELECT status, COUNT(*) AS count
		FROM appointments
		WHERE tenant_id = $1
		GROUP BY status
		ORDER BY status`
	err := r.db.SelectContext(ctx, &counts, q, tenantID)
	monitoring.RecordDBOperation("select", "appointments", time.Since(start), err == nil)
	return counts, err
}

func (r *postgresRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
