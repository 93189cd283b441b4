// Package audit appends every domain event to the append-only journal,
// exactly once per event id.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/meditrust/hospital-core/internal/events"
	"github.com/meditrust/hospital-core/internal/models"
	"github.com/meditrust/hospital-core/pkg/logger"
)

// Journal is the handler bound to the audit queue, which receives the full
// event stream.
type Journal struct {
	repo   Repository
	logger logger.Logger
}

func NewJournal(repo Repository, log logger.Logger) *Journal {
	return &Journal{repo: repo, logger: log}
}

// HandleEvent converts one domain event into a journal row. Replays are
// absorbed by the event id upsert, so the handler is safe under at-least-once
// delivery.
func (j *Journal) HandleEvent(ctx context.Context, event events.Event) error {
	entry := j.toEntry(event)

	inserted, err := j.repo.Append(ctx, entry)
	if err != nil {
		return fmt.Errorf("audit: append %s: %w", entry.EventID, err)
	}
	if !inserted {
		j.logger.Debug("Duplicate event absorbed",
			"event_id", entry.EventID, "event_type", entry.Action)
	}
	return nil
}

// toEntry derives the journal row. Action and resource type come from the
// routing key; well-known events additionally carry the resource id and a
// description.
func (j *Journal) toEntry(event events.Event) *models.AuditEntry {
	h := event.Header()
	action, resourceType := splitEventType(h.EventType)

	entry := &models.AuditEntry{
		ID:           uuid.NewString(),
		TenantID:     h.TenantID,
		Action:       action,
		ResourceType: resourceType,
		EventID:      h.EventID,
		Timestamp:    h.OccurredAt,
	}

	switch e := event.(type) {
	case *events.UserRegistered:
		entry.UserID = &e.UserID
		entry.UserEmail = &e.Email
		entry.ResourceID = &e.UserID
		entry.Description = strPtr("User registered: " + e.Email)
		entry.NewValue = jsonValue(map[string]interface{}{
			"userId": e.UserID, "name": e.Name, "email": e.Email,
		})
	case *events.UserUpdated:
		entry.UserID = &e.UserID
		entry.UserEmail = &e.Email
		entry.ResourceID = &e.UserID
		entry.NewValue = jsonValue(map[string]interface{}{
			"userId": e.UserID, "email": e.Email, "active": e.Active,
		})
	case *events.PatientCreated:
		entry.ResourceID = &e.PatientID
		entry.Description = strPtr("Patient created: " + e.Name)
		entry.NewValue = jsonValue(map[string]interface{}{
			"patientId": e.PatientID, "name": e.Name, "disease": e.Disease,
		})
	case *events.PatientUpdated:
		entry.ResourceID = &e.PatientID
		entry.NewValue = jsonValue(map[string]interface{}{
			"patientId": e.PatientID, "name": e.Name, "disease": e.Disease,
		})
	case *events.PatientDeleted:
		entry.ResourceID = &e.PatientID
		entry.OldValue = jsonValue(map[string]interface{}{
			"patientId": e.PatientID,
		})
	case *events.DoctorCreated:
		entry.ResourceID = &e.DoctorID
		entry.Description = strPtr("Doctor created: " + e.Name)
		entry.NewValue = jsonValue(map[string]interface{}{
			"doctorId": e.DoctorID, "name": e.Name, "specialty": e.Specialty,
		})
	case *events.DoctorUpdated:
		entry.ResourceID = &e.DoctorID
		entry.NewValue = jsonValue(map[string]interface{}{
			"doctorId": e.DoctorID, "name": e.Name, "specialty": e.Specialty,
		})
	case *events.AppointmentCreated:
		entry.ResourceID = &e.AppointmentID
		entry.Description = strPtr(fmt.Sprintf("Appointment booked for patient %s with doctor %s at %s",
			e.PatientID, e.DoctorID, e.AppointmentDate))
		entry.NewValue = jsonValue(map[string]interface{}{
			"appointmentId": e.AppointmentID, "patientId": e.PatientID,
			"doctorId": e.DoctorID, "appointmentDate": e.AppointmentDate,
			"status": e.Status,
		})
	case *events.AppointmentCancelled:
		entry.ResourceID = &e.AppointmentID
		if e.Reason != "" {
			entry.Description = strPtr("Cancelled: " + e.Reason)
		}
		entry.NewValue = jsonValue(map[string]interface{}{
			"appointmentId": e.AppointmentID, "status": "CANCELLED", "reason": e.Reason,
		})
	case *events.MedicalRecordCreated:
		entry.ResourceID = &e.RecordID
		entry.NewValue = jsonValue(map[string]interface{}{
			"recordId": e.RecordID, "patientId": e.PatientID, "doctorId": e.DoctorID,
		})
	case *events.PrescriptionCreated:
		entry.ResourceID = &e.PrescriptionID
		entry.NewValue = jsonValue(map[string]interface{}{
			"prescriptionId": e.PrescriptionID, "recordId": e.RecordID, "patientId": e.PatientID,
		})
	case *events.FacilityAdmitted:
		entry.ResourceID = &e.AdmissionID
		entry.Description = strPtr("Patient " + e.PatientID + " admitted to " + e.FacilityID)
		entry.NewValue = jsonValue(map[string]interface{}{
			"admissionId": e.AdmissionID, "patientId": e.PatientID,
			"facilityId": e.FacilityID, "bedNumber": e.BedNumber,
		})
	case *events.FacilityDischarged:
		entry.ResourceID = &e.AdmissionID
		entry.OldValue = jsonValue(map[string]interface{}{
			"admissionId": e.AdmissionID, "patientId": e.PatientID, "facilityId": e.FacilityID,
		})
	}

	return entry
}

// jsonValue renders a small identifier-level projection of the event payload
// for the old/new value columns. Contact details and clinical free text stay
// out of the journal.
func jsonValue(fields map[string]interface{}) *string {
	b, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

// splitEventType maps "appointment.created" to ("CREATED", "APPOINTMENT")
// and "medical.record.created" to ("CREATED", "MEDICAL_RECORD").
func splitEventType(eventType string) (action, resourceType string) {
	parts := strings.Split(eventType, ".")
	if len(parts) < 2 {
		return strings.ToUpper(eventType), "UNKNOWN"
	}
	action = strings.ToUpper(parts[len(parts)-1])
	resourceType = strings.ToUpper(strings.Join(parts[:len(parts)-1], "_"))
	return action, resourceType
}

func strPtr(s string) *string { return &s }
