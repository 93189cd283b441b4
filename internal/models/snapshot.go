package models

import "time"

// PatientFacts is the denormalized patient projection maintained by the
// appointment service from patient.* events. Key is the origin patient id;
// updates are last-write-wins per key.
type PatientFacts struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenantId"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone,omitempty"`
	Gender    string    `db:"gender" json:"gender,omitempty"`
	Disease   string    `db:"disease" json:"disease"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// DoctorFacts is the denormalized doctor projection maintained from
// doctor.* events.
type DoctorFacts struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenantId"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone,omitempty"`
	Gender    string    `db:"gender" json:"gender,omitempty"`
	Specialty string    `db:"specialty" json:"specialty"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
