package models

import "time"

// AppointmentStatus is the appointment lifecycle state.
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCancelled AppointmentStatus = "CANCELLED"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusNoShow    AppointmentStatus = "NO_SHOW"
)

// IsValid reports whether s is a known status.
func (s AppointmentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// CanTransitionTo encodes the appointment state machine:
// PENDING -> CONFIRMED | CANCELLED; CONFIRMED -> COMPLETED | CANCELLED | NO_SHOW.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusCompleted || next == StatusCancelled || next == StatusNoShow
	}
	return false
}

// Appointment links a patient and a doctor at a point in time. Non-cancelled
// rows are unique per (doctor_id, appointment_date).
type Appointment struct {
	ID              string            `db:"id" json:"id"`
	TenantID        string            `db:"tenant_id" json:"tenantId"`
	PatientID       string            `db:"patient_id" json:"patientId"`
	DoctorID        string            `db:"doctor_id" json:"doctorId"`
	AppointmentDate time.Time         `db:"appointment_date" json:"appointmentDate"`
	Status          AppointmentStatus `db:"status" json:"status"`
	Reason          *string           `db:"reason" json:"reason,omitempty"`
	Notes           *string           `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updatedAt"`
}

// AppointmentDTO embeds denormalized snapshot fields for read responses.
type AppointmentDTO struct {
	ID              string            `json:"id"`
	PatientID       string            `json:"patientId"`
	PatientName     string            `json:"patientName,omitempty"`
	DoctorID        string            `json:"doctorId"`
	DoctorName      string            `json:"doctorName,omitempty"`
	DoctorSpecialty string            `json:"doctorSpecialty,omitempty"`
	AppointmentDate time.Time         `json:"appointmentDate"`
	Status          AppointmentStatus `json:"status"`
	Reason          *string           `json:"reason,omitempty"`
	Notes           *string           `json:"notes,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// CreateAppointmentRequest is the booking payload.
type CreateAppointmentRequest struct {
	PatientID       string    `json:"patientId" binding:"required"`
	DoctorID        string    `json:"doctorId" binding:"required"`
	AppointmentDate time.Time `json:"appointmentDate" binding:"required"`
	Reason          *string   `json:"reason"`
	Notes           *string   `json:"notes"`
}

// UpdateAppointmentRequest reschedules or transitions an appointment. Zero
// fields are left unchanged.
type UpdateAppointmentRequest struct {
	AppointmentDate *time.Time         `json:"appointmentDate"`
	Status          *AppointmentStatus `json:"status"`
	Reason          *string            `json:"reason"`
	Notes           *string            `json:"notes"`
}

// StatusCount is one row of the countByStatus aggregation.
type StatusCount struct {
	Status AppointmentStatus `db:"status" json:"status"`
	Count  int64             `db:"count" json:"count"`
}
