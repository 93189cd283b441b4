// Package appointment implements booking with specialty matching, slot
// exclusivity and the appointment status state machine.
package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/meditrust/hospital-core/internal/apperr"
	"github.com/meditrust/hospital-core/internal/events"
	"github.com/meditrust/hospital-core/internal/models"
	"github.com/meditrust/hospital-core/internal/snapshot"
	"github.com/meditrust/hospital-core/pkg/cache"
	"github.com/meditrust/hospital-core/pkg/logger"
)

// Service coordinates bookings against the locally projected patient and
// doctor facts, so booking never calls another service synchronously.
type Service struct {
	repo      Repository
	facts     snapshot.Repository
	publisher events.Publisher
	local     *cache.Local
	logger    logger.Logger

	now func() time.Time
}

func NewService(repo Repository, facts snapshot.Repository, publisher events.Publisher, local *cache.Local, log logger.Logger) *Service {
	return &Service{
		repo:      repo,
		facts:     facts,
		publisher: publisher,
		local:     local,
		logger:    log,
		now:       time.Now,
	}
}

// Create books an appointment. The booking fails when the patient or doctor
// is unknown to the projection, the date is not in the future, the doctor's
// specialty cannot treat the patient's disease, or the slot is taken.
func (s *Service) Create(ctx context.Context, tenantID string, req models.CreateAppointmentRequest) (*models.AppointmentDTO, error) {
	if !req.AppointmentDate.After(s.now()) {
		return nil, apperr.Validation("Appointment date must be in the future").
			WithField("appointmentDate", "must be in the future", req.AppointmentDate)
	}

	patient, err := s.facts.FindPatient(ctx, tenantID, req.PatientID)
	if err != nil {
		if errors.Is(err, snapshot.ErrFactsNotFound) {
			return nil, apperr.NotFound("Patient", req.PatientID)
		}
		return nil, apperr.Unexpected("Failed to load patient", err)
	}
	doctor, err := s.facts.FindDoctor(ctx, tenantID, req.DoctorID)
	if err != nil {
		if errors.Is(err, snapshot.ErrFactsNotFound) {
			return nil, apperr.NotFound("Doctor", req.DoctorID)
		}
		return nil, apperr.Unexpected("Failed to load doctor", err)
	}

	if !SpecialtyMatches(patient.Disease, doctor.Specialty) {
		return nil, apperr.Validation("Doctor specialty does not match the patient's condition").
			WithField("doctorId", "requires specialty "+RequiredSpecialty(patient.Disease), doctor.Specialty)
	}

	now := s.now().UTC()
	appt := &models.Appointment{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		AppointmentDate: req.AppointmentDate.UTC(),
		Status:          models.StatusPending,
		Reason:          req.Reason,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, appt); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, apperr.Validation("Doctor already has an appointment at this time")
		}
		return nil, apperr.Unexpected("Failed to create appointment", err)
	}

	s.publishCreated(ctx, appt)
	s.local.Clear(snapshot.AppointmentCacheName)

	dto := s.toDTO(ctx, appt)
	return &dto, nil
}

// Get returns one appointment with denormalized names, served from the local
// read cache when possible.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*models.AppointmentDTO, error) {
	if v, ok := s.local.Get(snapshot.AppointmentCacheName, tenantID+"/"+id); ok {
		dto := v.(models.AppointmentDTO)
		return &dto, nil
	}

	appt, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("Appointment", id)
		}
		return nil, apperr.Unexpected("Failed to load appointment", err)
	}

	dto := s.toDTO(ctx, appt)
	s.local.Put(snapshot.AppointmentCacheName, tenantID+"/"+id, dto)
	return &dto, nil
}

func (s *Service) ListByPatient(ctx context.Context, tenantID, patientID string) ([]models.AppointmentDTO, error) {
	appts, err := s.repo.ListByPatient(ctx, tenantID, patientID)
	if err != nil {
		return nil, apperr.Unexpected("Failed to list appointments", err)
	}
	return s.toDTOs(ctx, appts), nil
}

func (s *Service) ListByDoctor(ctx context.Context, tenantID, doctorID string) ([]models.AppointmentDTO, error) {
	appts, err := s.repo.ListByDoctor(ctx, tenantID, doctorID)
	if err != nil {
		return nil, apperr.Unexpected("Failed to list appointments", err)
	}
	return s.toDTOs(ctx, appts), nil
}

func (s *Service) ListByStatus(ctx context.Context, tenantID string, status models.AppointmentStatus) ([]models.AppointmentDTO, error) {
	if !status.IsValid() {
		return nil, apperr.Validation("Unknown appointment status").
			WithField("status", "must be one of PENDING, CONFIRMED, CANCELLED, COMPLETED, NO_SHOW", status)
	}
	appts, err := s.repo.ListByStatus(ctx, tenantID, status)
	if err != nil {
		return nil, apperr.Unexpected("Failed to list appointments", err)
	}
	return s.toDTOs(ctx, appts), nil
}

// DefaultUpcomingHours bounds the upcoming list when the caller does not
// pick a window.
const DefaultUpcomingHours = 24

// ListUpcoming returns PENDING and CONFIRMED appointments starting within
// the next hoursAhead hours.
func (s *Service) ListUpcoming(ctx context.Context, tenantID string, hoursAhead int) ([]models.AppointmentDTO, error) {
	if hoursAhead <= 0 {
		hoursAhead = DefaultUpcomingHours
	}
	from := s.now().UTC()
	appts, err := s.repo.ListUpcoming(ctx, tenantID, from, from.Add(time.Duration(hoursAhead)*time.Hour))
	if err != nil {
		return nil, apperr.Unexpected("Failed to list appointments", err)
	}
	return s.toDTOs(ctx, appts), nil
}

func (s *Service) CountByStatus(ctx context.Context, tenantID string) ([]models.StatusCount, error) {
	counts, err := s.repo.CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, apperr.Unexpected("Failed to count appointments", err)
	}
	return counts, nil
}

// Update reschedules and/or transitions an appointment. Status changes must
// follow the state machine; reschedules re-run the future-date and slot
// checks.
func (s *Service) Update(ctx context.Context, tenantID, id string, req models.UpdateAppointmentRequest) (*models.AppointmentDTO, error) {
	appt, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("Appointment", id)
		}
		return nil, apperr.Unexpected("Failed to load appointment", err)
	}

	wasCancelled := appt.Status == models.StatusCancelled

	if req.Status != nil && *req.Status != appt.Status {
		if !req.Status.IsValid() {
			return nil, apperr.Validation("Unknown appointment status").
				WithField("status", "must be one of PENDING, CONFIRMED, CANCELLED, COMPLETED, NO_SHOW", *req.Status)
		}
		if !appt.Status.CanTransitionTo(*req.Status) {
			return nil, apperr.Conflict("Cannot transition appointment from " +
				string(appt.Status) + " to " + string(*req.Status))
		}
		appt.Status = *req.Status
	}
	if req.AppointmentDate != nil {
		if !req.AppointmentDate.After(s.now()) {
			return nil, apperr.Validation("Appointment date must be in the future").
				WithField("appointmentDate", "must be in the future", *req.AppointmentDate)
		}
		appt.AppointmentDate = req.AppointmentDate.UTC()
	}
	if req.Reason != nil {
		appt.Reason = req.Reason
	}
	if req.Notes != nil {
		appt.Notes = req.Notes
	}
	appt.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, appt); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, apperr.Validation("Doctor already has an appointment at this time")
		}
		return nil, apperr.Unexpected("Failed to update appointment", err)
	}

	if !wasCancelled && appt.Status == models.StatusCancelled {
		s.publishCancelled(ctx, appt, deref(req.Reason))
	}
	s.local.Evict(snapshot.AppointmentCacheName, tenantID+"/"+id)

	dto := s.toDTO(ctx, appt)
	return &dto, nil
}

// Cancel transitions the appointment to CANCELLED through the state machine.
func (s *Service) Cancel(ctx context.Context, tenantID, id, reason string) (*models.AppointmentDTO, error) {
	cancelled := models.StatusCancelled
	req := models.UpdateAppointmentRequest{Status: &cancelled}
	if reason != "" {
		req.Reason = &reason
	}
	return s.Update(ctx, tenantID, id, req)
}

// Delete removes the row entirely. Reserved for administrative cleanup;
// normal flows cancel instead.
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("Appointment", id)
		}
		return apperr.Unexpected("Failed to delete appointment", err)
	}
	s.local.Evict(snapshot.AppointmentCacheName, tenantID+"/"+id)
	return nil
}

func (s *Service) publishCreated(ctx context.Context, appt *models.Appointment) {
	evt := &events.AppointmentCreated{
		Envelope:        events.NewEnvelope(events.KeyAppointmentCreated, appt.TenantID),
		AppointmentID:   appt.ID,
		PatientID:       appt.PatientID,
		DoctorID:        appt.DoctorID,
		AppointmentDate: appt.AppointmentDate.Format(time.RFC3339),
		Status:          string(appt.Status),
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Error("Failed to publish appointment.created",
			"appointment_id", appt.ID, "error", err)
	}
}

func (s *Service) publishCancelled(ctx context.Context, appt *models.Appointment, reason string) {
	evt := &events.AppointmentCancelled{
		Envelope:      events.NewEnvelope(events.KeyAppointmentCancelled, appt.TenantID),
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		Reason:        reason,
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Error("Failed to publish appointment.cancelled",
			"appointment_id", appt.ID, "error", err)
	}
}

// toDTO denormalizes snapshot names into the read model. Missing facts leave
// the name fields blank instead of failing the read.
func (s *Service) toDTO(ctx context.Context, appt *models.Appointment) models.AppointmentDTO {
	dto := models.AppointmentDTO{
		ID:              appt.ID,
		PatientID:       appt.PatientID,
		DoctorID:        appt.DoctorID,
		AppointmentDate: appt.AppointmentDate,
		Status:          appt.Status,
		Reason:          appt.Reason,
		Notes:           appt.Notes,
		CreatedAt:       appt.CreatedAt,
		UpdatedAt:       appt.UpdatedAt,
	}
	if patient, err := s.facts.FindPatient(ctx, appt.TenantID, appt.PatientID); err == nil {
		dto.PatientName = patient.Name
	}
	if doctor, err := s.facts.FindDoctor(ctx, appt.TenantID, appt.DoctorID); err == nil {
		dto.DoctorName = doctor.Name
		dto.DoctorSpecialty = doctor.Specialty
	}
	return dto
}

func (s *Service) toDTOs(ctx context.Context, appts []models.Appointment) []models.AppointmentDTO {
	dtos := make([]models.AppointmentDTO, 0, len(appts))
	for i := range appts {
		dtos = append(dtos, s.toDTO(ctx, &appts[i]))
	}
	return dtos
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
