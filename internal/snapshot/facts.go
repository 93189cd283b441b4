package snapshot

import (
	"github.com/meditrust/hospital-core/internal/events"
	"github.com/meditrust/hospital-core/internal/models"
)

// newPatientFacts builds a facts row stamped with the event's occurredAt so
// the repository's last-write-wins guard orders concurrent projections.
func newPatientFacts(h *events.Envelope, patientID, name, email, phone, gender, disease string) *models.PatientFacts {
	return &models.PatientFacts{
		ID:        patientID,
		TenantID:  h.TenantID,
		Name:      name,
		Email:     email,
		Phone:     phone,
		Gender:    gender,
		Disease:   disease,
		UpdatedAt: h.OccurredAt,
	}
}

func newDoctorFacts(h *events.Envelope, doctorID, name, email, phone, gender, specialty string) *models.DoctorFacts {
	return &models.DoctorFacts{
		ID:        doctorID,
		TenantID:  h.TenantID,
		Name:      name,
		Email:     email,
		Phone:     phone,
		Gender:    gender,
		Specialty: specialty,
		UpdatedAt: h.OccurredAt,
	}
}
