package api

import (
	"time"

	"github.com/google/uuid"
)

type CreatePatientRequest struct {
	Name        string  `json:"name"`
	DateOfBirth string  `json:"date_of_birth"` // YYYY-MM-DD
	Gender      string  `json:"gender"`
	Phone       *string `json:"phone,omitempty"`
	Email       string  `json:"email"`
	Address     *string `json:"address,omitempty"`
}

type UpdatePatientContactRequest struct {
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}

type CreateDoctorRequest struct {
	Name           string  `json:"name"`
	Specialization string  `json:"specialization"`
	LicenseNumber  string  `json:"license_number"`
	Email          string  `json:"email"`
	Phone          *string `json:"phone,omitempty"`
}

type CreateStaffRequest struct {
	Name  string  `json:"name"`
	Role  string  `json:"role"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

type CreateDepartmentRequest struct {
	Name         string  `json:"name"`
	Location     *string `json:"location,omitempty"`
	HeadDoctorID *string `json:"head_doctor_id,omitempty"`
}

type CreateAppointmentTypeRequest struct {
	Name            string  `json:"name"`
	DurationMinutes int     `json:"duration_minutes"`
	BasePrice       float64 `json:"base_price"`
	Description     *string `json:"description,omitempty"`
}

type GrantCapabilityRequest struct {
	AppointmentTypeID string `json:"appointment_type_id"`
}

type BookAppointmentRequest struct {
	PatientID         string    `json:"patient_id"`
	DoctorID          string    `json:"doctor_id"`
	AppointmentTypeID string    `json:"appointment_type_id"`
	Start             time.Time `json:"start"`
	CreatedBy         string    `json:"created_by"`
	Notes             *string   `json:"notes,omitempty"`
}

type TransitionRequest struct {
	Status string `json:"status"`
}

type AppointmentResponse struct {
	ID                uuid.UUID `json:"id"`
	PatientID         uuid.UUID `json:"patient_id"`
	DoctorID          uuid.UUID `json:"doctor_id"`
	AppointmentTypeID uuid.UUID `json:"appointment_type_id"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	Status            string    `json:"status"`
	Notes             *string   `json:"notes,omitempty"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	PatientName     string `json:"patient_name"`
	DoctorName      string `json:"doctor_name"`
	AppointmentType string `json:"appointment_type"`
}

type CreateMedicalRecordRequest struct {
	PatientID     string  `json:"patient_id"`
	DoctorID      string  `json:"doctor_id"`
	AppointmentID *string `json:"appointment_id,omitempty"`
	Diagnosis     *string `json:"diagnosis,omitempty"`
	Treatment     *string `json:"treatment,omitempty"`
	Prescription  *string `json:"prescription,omitempty"`
}

type InvoiceItemRequest struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Discount    float64 `json:"discount"`
}

type CreateInvoiceRequest struct {
	PatientID     string               `json:"patient_id"`
	AppointmentID *string              `json:"appointment_id,omitempty"`
	IssueDate     string               `json:"issue_date"` // YYYY-MM-DD
	DueDate       string               `json:"due_date"`
	Items         []InvoiceItemRequest `json:"items"`
}

type UpdateInvoiceStatusRequest struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
