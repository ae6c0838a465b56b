package clinic

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "Scheduled"
	StatusCompleted AppointmentStatus = "Completed"
	StatusCancelled AppointmentStatus = "Cancelled"
	StatusNoShow    AppointmentStatus = "No-Show"
)

// Terminal reports whether no further lifecycle transition is permitted.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "Pending"
	InvoicePaid      InvoiceStatus = "Paid"
	InvoiceCancelled InvoiceStatus = "Cancelled"
)

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

type Patient struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Gender      Gender    `json:"gender"`
	Phone       *string   `json:"phone,omitempty"`
	Email       string    `json:"email"`
	Address     *string   `json:"address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Doctor struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
	LicenseNumber  string    `json:"license_number"`
	Email          string    `json:"email"`
	Phone          *string   `json:"phone,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Staff struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Department struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Location     *string    `json:"location,omitempty"`
	HeadDoctorID *uuid.UUID `json:"head_doctor_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type AppointmentType struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	BasePrice       float64   `json:"base_price"`
	Description     *string   `json:"description,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Duration is the appointment length as a time.Duration.
func (t AppointmentType) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

type Appointment struct {
	ID                uuid.UUID         `json:"id"`
	PatientID         uuid.UUID         `json:"patient_id"`
	DoctorID          uuid.UUID         `json:"doctor_id"`
	AppointmentTypeID uuid.UUID         `json:"appointment_type_id"`
	CreatedBy         uuid.UUID         `json:"created_by"`
	ScheduledDatetime time.Time         `json:"scheduled_datetime"`
	EndDatetime       time.Time         `json:"end_datetime"`
	Status            AppointmentStatus `json:"status"`
	Notes             *string           `json:"notes,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

type MedicalRecord struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Diagnosis     *string    `json:"diagnosis,omitempty"`
	Treatment     *string    `json:"treatment,omitempty"`
	Prescription  *string    `json:"prescription,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type Invoice struct {
	ID            uuid.UUID     `json:"id"`
	PatientID     uuid.UUID     `json:"patient_id"`
	AppointmentID *uuid.UUID    `json:"appointment_id,omitempty"`
	IssueDate     time.Time     `json:"issue_date"`
	DueDate       time.Time     `json:"due_date"`
	TotalAmount   float64       `json:"total_amount"`
	PaidAmount    float64       `json:"paid_amount"`
	Status        InvoiceStatus `json:"status"`
	Items         []InvoiceItem `json:"items"`
	CreatedAt     time.Time     `json:"created_at"`
}

type InvoiceItem struct {
	ID          uuid.UUID `json:"id"`
	InvoiceID   uuid.UUID `json:"invoice_id"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	Discount    float64   `json:"discount"`
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// AppointmentDetail joins an appointment with the display names the
// todays_appointments view exposes.
type AppointmentDetail struct {
	Appointment
	PatientName     string
	DoctorName      string
	AppointmentType string
}
