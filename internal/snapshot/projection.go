// Package snapshot maintains the appointment service's local projections of
// patient and doctor data owned by other services.
package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/meditrust/hospital-core/internal/events"
	"github.com/meditrust/hospital-core/pkg/cache"
	"github.com/meditrust/hospital-core/pkg/logger"
)

// Cache names invalidated when a projection changes. The appointment cache
// holds denormalized patient and doctor names, so it is cleared too.
const (
	PatientCacheName     = "patient-snapshots"
	DoctorCacheName      = "doctor-snapshots"
	AppointmentCacheName = "appointments"
)

// Projection consumes patient.* and doctor.* events into the facts tables.
type Projection struct {
	repo   Repository
	local  *cache.Local
	logger logger.Logger
}

func NewProjection(repo Repository, local *cache.Local, log logger.Logger) *Projection {
	return &Projection{repo: repo, local: local, logger: log}
}

// HandlePatientEvent is the handler bound to the patient.* queue.
func (p *Projection) HandlePatientEvent(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case *events.PatientCreated:
		return p.upsertPatient(ctx, e.Header(), e.PatientID, e.Name, e.Email, e.Phone, e.Gender, e.Disease, false)
	case *events.PatientUpdated:
		return p.upsertPatient(ctx, e.Header(), e.PatientID, e.Name, e.Email, e.Phone, e.Gender, e.Disease, true)
	case *events.PatientDeleted:
		return p.deletePatient(ctx, e.Header(), e.PatientID)
	default:
		p.logger.Debug("Ignoring event", "event_type", event.RoutingKey())
		return nil
	}
}

// HandleDoctorEvent is the handler bound to the doctor.* queue.
func (p *Projection) HandleDoctorEvent(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case *events.DoctorCreated:
		return p.upsertDoctor(ctx, e.Header(), e.DoctorID, e.Name, e.Email, e.Phone, e.Gender, e.Specialty)
	case *events.DoctorUpdated:
		return p.upsertDoctor(ctx, e.Header(), e.DoctorID, e.Name, e.Email, e.Phone, e.Gender, e.Specialty)
	default:
		p.logger.Debug("Ignoring event", "event_type", event.RoutingKey())
		return nil
	}
}

func (p *Projection) upsertPatient(ctx context.Context, h *events.Envelope, patientID, name, email, phone, gender, disease string, isUpdate bool) error {
	if patientID == "" {
		return fmt.Errorf("snapshot: %s without patientId", h.EventType)
	}

	if isUpdate {
		if _, err := p.repo.FindPatient(ctx, h.TenantID, patientID); errors.Is(err, ErrFactsNotFound) {
			// An update for an unseen patient usually means the created event
			// was lost; the upsert repairs the projection.
			p.logger.Warn("Update for unknown patient, creating snapshot",
				"patient_id", patientID, "tenant_id", h.TenantID)
		}
	}

	facts := newPatientFacts(h, patientID, name, email, phone, gender, disease)
	applied, err := p.repo.UpsertPatient(ctx, facts)
	if err != nil {
		return fmt.Errorf("snapshot: upsert patient %s: %w", patientID, err)
	}
	if !applied {
		p.logger.Debug("Stale patient event skipped",
			"patient_id", patientID, "occurred_at", h.OccurredAt)
		return nil
	}

	p.local.Evict(PatientCacheName, patientID)
	p.local.Clear(AppointmentCacheName)
	return nil
}

func (p *Projection) deletePatient(ctx context.Context, h *events.Envelope, patientID string) error {
	if patientID == "" {
		return fmt.Errorf("snapshot: %s without patientId", h.EventType)
	}
	if err := p.repo.DeletePatient(ctx, h.TenantID, patientID); err != nil {
		return fmt.Errorf("snapshot: delete patient %s: %w", patientID, err)
	}
	p.local.Evict(PatientCacheName, patientID)
	p.local.Clear(AppointmentCacheName)
	return nil
}

func (p *Projection) upsertDoctor(ctx context.Context, h *events.Envelope, doctorID, name, email, phone, gender, specialty string) error {
	if doctorID == "" {
		return fmt.Errorf("snapshot: %s without doctorId", h.EventType)
	}

	facts := newDoctorFacts(h, doctorID, name, email, phone, gender, specialty)
	applied, err := p.repo.UpsertDoctor(ctx, facts)
	if err != nil {
		return fmt.Errorf("snapshot: upsert doctor %s: %w", doctorID, err)
	}
	if !applied {
		p.logger.Debug("Stale doctor event skipped",
			"doctor_id", doctorID, "occurred_at", h.OccurredAt)
		return nil
	}

	p.local.Evict(DoctorCacheName, doctorID)
	p.local.Clear(AppointmentCacheName)
	return nil
}

// HandleCacheEvent applies cache.invalidate broadcasts to the local caches.
func (p *Projection) HandleCacheEvent(_ context.Context, event events.Event) error {
	inv, ok := event.(*events.CacheInvalidate)
	if !ok {
		return nil
	}
	p.local.Invalidate(inv.CacheNames, inv.EntityIDs, inv.InvalidateAll)
	p.logger.Info("Applied cache invalidation",
		"caches", inv.CacheNames, "all", inv.InvalidateAll)
	return nil
}
