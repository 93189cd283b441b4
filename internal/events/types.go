package events

// Routing keys of the domain event families.
const (
	KeyUserRegistered       = "user.registered"
	KeyUserUpdated          = "user.updated"
	KeyPatientCreated       = "patient.created"
	KeyPatientUpdated       = "patient.updated"
	KeyPatientDeleted       = "patient.deleted"
	KeyDoctorCreated        = "doctor.created"
	KeyDoctorUpdated        = "doctor.updated"
	KeyAppointmentCreated   = "appointment.created"
	KeyAppointmentCancelled = "appointment.cancelled"
	KeyMedicalRecordCreated = "medical.record.created"
	KeyPrescriptionCreated  = "prescription.created"
	KeyFacilityAdmitted     = "facility.admitted"
	KeyFacilityDischarged   = "facility.discharged"
	KeyCacheInvalidate      = "cache.invalidate"
)

// UserRegistered is emitted by the auth service after a registration commits.
type UserRegistered struct {
	Envelope
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

func (e *UserRegistered) RoutingKey() string { return KeyUserRegistered }

// UserUpdated is emitted on any admin or profile mutation of a user.
type UserUpdated struct {
	Envelope
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Active bool   `json:"active"`
}

func (e *UserUpdated) RoutingKey() string { return KeyUserUpdated }

// PatientCreated / PatientUpdated / PatientDeleted mirror the patient
// service's write path; the appointment service projects them into its
// patient facts snapshot.
type PatientCreated struct {
	Envelope
	PatientID string `json:"patientId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Disease   string `json:"disease"`
}

func (e *PatientCreated) RoutingKey() string { return KeyPatientCreated }

type PatientUpdated struct {
	Envelope
	PatientID string `json:"patientId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Disease   string `json:"disease"`
}

func (e *PatientUpdated) RoutingKey() string { return KeyPatientUpdated }

type PatientDeleted struct {
	Envelope
	PatientID string `json:"patientId"`
}

func (e *PatientDeleted) RoutingKey() string { return KeyPatientDeleted }

type DoctorCreated struct {
	Envelope
	DoctorID  string `json:"doctorId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Specialty string `json:"specialty"`
}

func (e *DoctorCreated) RoutingKey() string { return KeyDoctorCreated }

type DoctorUpdated struct {
	Envelope
	DoctorID  string `json:"doctorId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Specialty string `json:"specialty"`
}

func (e *DoctorUpdated) RoutingKey() string { return KeyDoctorUpdated }

// AppointmentCreated is published after a booking commits.
type AppointmentCreated struct {
	Envelope
	AppointmentID   string `json:"appointmentId"`
	PatientID       string `json:"patientId"`
	DoctorID        string `json:"doctorId"`
	AppointmentDate string `json:"appointmentDate"`
	Status          string `json:"status"`
}

func (e *AppointmentCreated) RoutingKey() string { return KeyAppointmentCreated }

// AppointmentCancelled is published on explicit cancel or a CANCELLED status
// transition.
type AppointmentCancelled struct {
	Envelope
	AppointmentID string `json:"appointmentId"`
	PatientID     string `json:"patientId"`
	DoctorID      string `json:"doctorId"`
	Reason        string `json:"reason,omitempty"`
}

func (e *AppointmentCancelled) RoutingKey() string { return KeyAppointmentCancelled }

type MedicalRecordCreated struct {
	Envelope
	RecordID  string `json:"recordId"`
	PatientID string `json:"patientId"`
	DoctorID  string `json:"doctorId"`
	Diagnosis string `json:"diagnosis,omitempty"`
}

func (e *MedicalRecordCreated) RoutingKey() string { return KeyMedicalRecordCreated }

type PrescriptionCreated struct {
	Envelope
	PrescriptionID string `json:"prescriptionId"`
	RecordID       string `json:"recordId"`
	PatientID      string `json:"patientId"`
	Medication     string `json:"medication,omitempty"`
}

func (e *PrescriptionCreated) RoutingKey() string { return KeyPrescriptionCreated }

type FacilityAdmitted struct {
	Envelope
	AdmissionID string `json:"admissionId"`
	PatientID   string `json:"patientId"`
	FacilityID  string `json:"facilityId"`
	BedNumber   string `json:"bedNumber,omitempty"`
}

func (e *FacilityAdmitted) RoutingKey() string { return KeyFacilityAdmitted }

type FacilityDischarged struct {
	Envelope
	AdmissionID string `json:"admissionId"`
	PatientID   string `json:"patientId"`
	FacilityID  string `json:"facilityId"`
}

func (e *FacilityDischarged) RoutingKey() string { return KeyFacilityDischarged }

// CacheInvalidate is the broadcast invalidation event honored by any service
// holding the named caches.
type CacheInvalidate struct {
	Envelope
	CacheNames    []string `json:"cacheNames"`
	EntityIDs     []string `json:"entityIds,omitempty"`
	InvalidateAll bool     `json:"invalidateAll"`
}

func (e *CacheInvalidate) RoutingKey() string { return KeyCacheInvalidate }

// registry maps routing keys to event factories for decoding. There is no
// inheritance between events; the envelope is shared by embedding only.
var registry = map[string]func() Event{
	KeyUserRegistered:       func() Event { return &UserRegistered{} },
	KeyUserUpdated:          func() Event { return &UserUpdated{} },
	KeyPatientCreated:       func() Event { return &PatientCreated{} },
	KeyPatientUpdated:       func() Event { return &PatientUpdated{} },
	KeyPatientDeleted:       func() Event { return &PatientDeleted{} },
	KeyDoctorCreated:        func() Event { return &DoctorCreated{} },
	KeyDoctorUpdated:        func() Event { return &DoctorUpdated{} },
	KeyAppointmentCreated:   func() Event { return &AppointmentCreated{} },
	KeyAppointmentCancelled: func() Event { return &AppointmentCancelled{} },
	KeyMedicalRecordCreated: func() Event { return &MedicalRecordCreated{} },
	KeyPrescriptionCreated:  func() Event { return &PrescriptionCreated{} },
	KeyFacilityAdmitted:     func() Event { return &FacilityAdmitted{} },
	KeyFacilityDischarged:   func() Event { return &FacilityDischarged{} },
	KeyCacheInvalidate:      func() Event { return &CacheInvalidate{} },
}
