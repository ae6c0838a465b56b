package clinic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound         = errors.New("patient not found")
	ErrDoctorNotFound          = errors.New("doctor not found")
	ErrStaffNotFound           = errors.New("staff member not found")
	ErrDepartmentNotFound      = errors.New("department not found")
	ErrAppointmentTypeNotFound = errors.New("appointment type not found")
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrInvoiceNotFound         = errors.New("invoice not found")

	ErrDuplicateEmail   = errors.New("email is already registered")
	ErrDuplicateLicense = errors.New("license number is already registered")
	ErrDuplicateName    = errors.New("name is already taken")
	ErrInvalidReference = errors.New("referenced entity does not exist")
	ErrScheduleConflict = errors.New("doctor already has a scheduled appointment in that interval")
	ErrStatusChanged    = errors.New("appointment status changed concurrently")
)

// Store contains all persistence interactions needed by the services. PgStore
// backs it in production, MemoryStore in tests and the simulator dry run.
type Store interface {
	// Patients
	CreatePatient(ctx context.Context, p *Patient) error
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	UpdatePatientContact(ctx context.Context, id uuid.UUID, phone, address *string) (*Patient, error)

	// Doctors and capabilities
	CreateDoctor(ctx context.Context, d *Doctor) error
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListActiveDoctors(ctx context.Context) ([]Doctor, error)
	SetDoctorActive(ctx context.Context, id uuid.UUID, active bool) error
	GrantCapability(ctx context.Context, doctorID, typeID uuid.UUID) error
	ListCapabilities(ctx context.Context, doctorID uuid.UUID) ([]AppointmentType, error)
	HasCapability(ctx context.Context, doctorID, typeID uuid.UUID) (bool, error)

	// Staff
	CreateStaff(ctx context.Context, s *Staff) error
	GetStaffByID(ctx context.Context, id uuid.UUID) (*Staff, error)

	// Departments
	CreateDepartment(ctx context.Context, d *Department) error
	GetDepartmentByID(ctx context.Context, id uuid.UUID) (*Department, error)
	SetDepartmentHead(ctx context.Context, departmentID, doctorID uuid.UUID) error

	// Appointment types
	CreateAppointmentType(ctx context.Context, t *AppointmentType) error
	GetAppointmentTypeByID(ctx context.Context, id uuid.UUID) (*AppointmentType, error)

	// Appointments
	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	// ListScheduledByDoctor returns Scheduled appointments for the doctor
	// intersecting [from, to), ordered by start ascending.
	ListScheduledByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	// ListAppointmentsForDay returns all appointments whose start falls on
	// day's date, joined with display names, ordered by start ascending.
	ListAppointmentsForDay(ctx context.Context, day time.Time) ([]AppointmentDetail, error)
	// UpdateAppointmentStatus is compare-and-swap: it only applies when the
	// current status equals from, otherwise ErrStatusChanged.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// Medical records
	CreateMedicalRecord(ctx context.Context, r *MedicalRecord) error
	ListMedicalRecordsByPatient(ctx context.Context, patientID uuid.UUID) ([]MedicalRecord, error)

	// Invoices; CreateInvoice persists the invoice and its items atomically.
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoiceByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status InvoiceStatus) (*Invoice, error)

	// Clinic settings and audit
	GetSettings(ctx context.Context) (map[string]string, error)
	InsertEvent(ctx context.Context, ev EventLog) error
}
