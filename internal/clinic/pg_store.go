package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

var _ Store = (*PgStore)(nil)

// mapPgError translates storage constraint violations into the typed domain
// errors so callers never see raw SQLSTATEs.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23503": // foreign_key_violation
		return ErrInvalidReference
	case "23505": // unique_violation
		switch {
		case strings.Contains(pgErr.ConstraintName, "email"):
			return ErrDuplicateEmail
		case strings.Contains(pgErr.ConstraintName, "license"):
			return ErrDuplicateLicense
		default:
			return ErrDuplicateName
		}
	case "23514": // check_violation
		switch pgErr.ConstraintName {
		case "chk_appointment_time":
			return ErrInvalidTimeOrder
		case "chk_invoice_dates":
			return ErrInvalidInvoiceDates
		case "chk_positive_quantity":
			return ErrNonPositiveQuantity
		case "chk_positive_duration":
			return ErrNonPositiveDuration
		}
		return err
	case "23P01": // exclusion_violation, excl_doctor_schedule
		return ErrScheduleConflict
	}
	return err
}

// Scan helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.Name, &p.DateOfBirth, &p.Gender,
		&p.Phone, &p.Email, &p.Address,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID, &d.Name, &d.Specialization, &d.LicenseNumber,
		&d.Email, &d.Phone, &d.Active,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanStaff(row pgx.Row) (*Staff, error) {
	var s Staff
	err := row.Scan(
		&s.ID, &s.Name, &s.Role, &s.Email, &s.Phone, &s.Active,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointmentType(row pgx.Row) (*AppointmentType, error) {
	var t AppointmentType
	err := row.Scan(
		&t.ID, &t.Name, &t.DurationMinutes, &t.BasePrice, &t.Description,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentTypeNotFound
		}
		return nil, err
	}
	return &t, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.AppointmentTypeID, &a.CreatedBy,
		&a.ScheduledDatetime, &a.EndDatetime, &a.Status, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

const appointmentCols = `id, patient_id, doctor_id, appointment_type_id, created_by,
	scheduled_datetime, end_datetime, status, notes, created_at, updated_at`

// Patients

func (s *PgStore) CreatePatient(ctx context.Context, p *Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, date_of_birth, gender, phone, email, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.DateOfBirth, p.Gender, p.Phone, p.Email, p.Address)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *PgStore) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, date_of_birth, gender, phone, email, address, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (s *PgStore) UpdatePatientContact(ctx context.Context, id uuid.UUID, phone, address *string) (*Patient, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE patients
		SET phone = COALESCE($2, phone),
		    address = COALESCE($3, address),
		    updated_at = now()
		WHERE id = $1
		RETURNING id, name, date_of_birth, gender, phone, email, address, created_at, updated_at
	`, id, phone, address)
	return scanPatient(row)
}

// Doctors

func (s *PgStore) CreateDoctor(ctx context.Context, d *Doctor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, name, specialization, license_number, email, phone, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, updated_at
	`, d.ID, d.Name, d.Specialization, d.LicenseNumber, d.Email, d.Phone, d.Active)
	if err := row.Scan(&d.CreatedAt, &d.UpdatedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *PgStore) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, specialization, license_number, email, phone, active, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (s *PgStore) ListActiveDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, specialization, license_number, email, phone, active, created_at, updated_at
		FROM doctors
		WHERE active
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (s *PgStore) SetDoctorActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE doctors SET active = $2, updated_at = now() WHERE id = $1
	`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (s *PgStore) GrantCapability(ctx context.Context, doctorID, typeID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO doctor_capabilities (doctor_id, appointment_type_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, doctorID, typeID)
	return mapPgError(err)
}

func (s *PgStore) ListCapabilities(ctx context.Context, doctorID uuid.UUID) ([]AppointmentType, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.name, t.duration_minutes, t.base_price, t.description, t.created_at
		FROM appointment_types t
		JOIN doctor_capabilities c ON c.appointment_type_id = t.id
		WHERE c.doctor_id = $1
		ORDER BY t.name
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentType
	for rows.Next() {
		t, err := scanAppointmentType(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

func (s *PgStore) HasCapability(ctx context.Context, doctorID, typeID uuid.UUID) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM doctor_capabilities
			WHERE doctor_id = $1 AND appointment_type_id = $2
		)
	`, doctorID, typeID).Scan(&ok)
	return ok, err
}

// Staff

func (s *PgStore) CreateStaff(ctx context.Context, st *Staff) error {
	if err := st.Validate(); err != nil {
		return err
	}
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO staff (id, name, role, email, phone, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING created_at, updated_at
	`, st.ID, st.Name, st.Role, st.Email, st.Phone, st.Active)
	if err := row.Scan(&st.CreatedAt, &st.UpdatedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *PgStore) GetStaffByID(ctx context.Context, id uuid.UUID) (*Staff, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, role, email, phone, active, created_at, updated_at
		FROM staff
		WHERE id = $1
	`, id)
	return scanStaff(row)
}

// Departments

func (s *PgStore) CreateDepartment(ctx context.Context, d *Department) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO departments (id, name, location, head_doctor_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING created_at, updated_at
	`, d.ID, d.Name, d.Location, d.HeadDoctorID)
	if err := row.Scan(&d.CreatedAt, &d.UpdatedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *PgStore) GetDepartmentByID(ctx context.Context, id uuid.UUID) (*Department, error) {
	var d Department
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, location, head_doctor_id, created_at, updated_at
		FROM departments
		WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Location, &d.HeadDoctorID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepartmentNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *PgStore) SetDepartmentHead(ctx context.Context, departmentID, doctorID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE departments SET head_doctor_id = $2, updated_at = now() WHERE id = $1
	`, departmentID, doctorID)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDepartmentNotFound
	}
	return nil
}

// Appointment types

func (s *PgStore) CreateAppointmentType(ctx context.Context, t *AppointmentType) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO appointment_types (id, name, duration_minutes, base_price, description, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at
	`, t.ID, t.Name, t.DurationMinutes, t.BasePrice, t.Description)
	if err := row.Scan(&t.CreatedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *PgStore) GetAppointmentTypeByID(ctx context.Context, id uuid.UUID) (*AppointmentType, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, duration_minutes, base_price, description, created_at
		FROM appointment_types
		WHERE id = $1
	`, id)
	return scanAppointmentType(row)
}

// Appointments

func (s *PgStore) CreateAppointment(ctx context.Context, a *Appointment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_type_id, created_by,
			scheduled_datetime, end_datetime, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING created_at, updated_at
	`, a.ID, a.PatientID, a.DoctorID, a.AppointmentTypeID, a.CreatedBy,
		a.ScheduledDatetime, a.EndDatetime, a.Status, a.Notes)
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *PgStore) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (s *PgStore) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	var d AppointmentDetail
	err := s.pool.QueryRow(ctx, `
		SELECT a.id, a.patient_id, a.doctor_id, a.appointment_type_id, a.created_by,
		       a.scheduled_datetime, a.end_datetime, a.status, a.notes, a.created_at, a.updated_at,
		       p.name, d.name, t.name
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN doctors d ON d.id = a.doctor_id
		JOIN appointment_types t ON t.id = a.appointment_type_id
		WHERE a.id = $1
	`, id).Scan(
		&d.ID, &d.PatientID, &d.DoctorID, &d.AppointmentTypeID, &d.CreatedBy,
		&d.ScheduledDatetime, &d.EndDatetime, &d.Status, &d.Notes, &d.CreatedAt, &d.UpdatedAt,
		&d.PatientName, &d.DoctorName, &d.AppointmentType,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *PgStore) ListScheduledByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status = 'Scheduled'
		  AND scheduled_datetime < $3
		  AND end_datetime > $2
		ORDER BY scheduled_datetime
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (s *PgStore) ListAppointmentsForDay(ctx context.Context, day time.Time) ([]AppointmentDetail, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.patient_id, a.doctor_id, a.appointment_type_id, a.created_by,
		       a.scheduled_datetime, a.end_datetime, a.status, a.notes, a.created_at, a.updated_at,
		       p.name, d.name, t.name
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN doctors d ON d.id = a.doctor_id
		JOIN appointment_types t ON t.id = a.appointment_type_id
		WHERE a.scheduled_datetime::date = $1::date
		ORDER BY a.scheduled_datetime
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		var d AppointmentDetail
		err := rows.Scan(
			&d.ID, &d.PatientID, &d.DoctorID, &d.AppointmentTypeID, &d.CreatedBy,
			&d.ScheduledDatetime, &d.EndDatetime, &d.Status, &d.Notes, &d.CreatedAt, &d.UpdatedAt,
			&d.PatientName, &d.DoctorName, &d.AppointmentType,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *PgStore) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentCols+`
	`, id, to, from)

	appt, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		// Distinguish a missing row from a lost compare-and-swap.
		if _, getErr := s.GetAppointmentByID(ctx, id); getErr == nil {
			return nil, ErrStatusChanged
		}
		return nil, ErrAppointmentNotFound
	}
	return appt, err
}

// Medical records

func (s *PgStore) CreateMedicalRecord(ctx context.Context, r *MedicalRecord) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO medical_records (id, patient_id, doctor_id, appointment_id, diagnosis, treatment, prescription, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING created_at
	`, r.ID, r.PatientID, r.DoctorID, r.AppointmentID, r.Diagnosis, r.Treatment, r.Prescription)
	if err := row.Scan(&r.CreatedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *PgStore) ListMedicalRecordsByPatient(ctx context.Context, patientID uuid.UUID) ([]MedicalRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, patient_id, doctor_id, appointment_id, diagnosis, treatment, prescription, created_at
		FROM medical_records
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MedicalRecord
	for rows.Next() {
		var r MedicalRecord
		err := rows.Scan(&r.ID, &r.PatientID, &r.DoctorID, &r.AppointmentID,
			&r.Diagnosis, &r.Treatment, &r.Prescription, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Invoices

func (s *PgStore) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Status == "" {
		inv.Status = InvoicePending
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO invoices (id, patient_id, appointment_id, issue_date, due_date, total_amount, paid_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING created_at
	`, inv.ID, inv.PatientID, inv.AppointmentID, inv.IssueDate, inv.DueDate,
		inv.TotalAmount, inv.PaidAmount, inv.Status).Scan(&inv.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}

	for i := range inv.Items {
		item := &inv.Items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.InvoiceID = inv.ID
		_, err := tx.Exec(ctx, `
			INSERT INTO invoice_items (id, invoice_id, description, quantity, unit_price, discount)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, item.ID, item.InvoiceID, item.Description, item.Quantity, item.UnitPrice, item.Discount)
		if err != nil {
			return mapPgError(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit invoice: %w", err)
	}
	return nil
}

func (s *PgStore) GetInvoiceByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	var inv Invoice
	err := s.pool.QueryRow(ctx, `
		SELECT id, patient_id, appointment_id, issue_date, due_date, total_amount, paid_amount, status, created_at
		FROM invoices
		WHERE id = $1
	`, id).Scan(&inv.ID, &inv.PatientID, &inv.AppointmentID, &inv.IssueDate, &inv.DueDate,
		&inv.TotalAmount, &inv.PaidAmount, &inv.Status, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, invoice_id, description, quantity, unit_price, discount
		FROM invoice_items
		WHERE invoice_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item InvoiceItem
		err := rows.Scan(&item.ID, &item.InvoiceID, &item.Description, &item.Quantity, &item.UnitPrice, &item.Discount)
		if err != nil {
			return nil, err
		}
		inv.Items = append(inv.Items, item)
	}
	return &inv, rows.Err()
}

func (s *PgStore) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status InvoiceStatus) (*Invoice, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE invoices SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return nil, mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrInvoiceNotFound
	}
	return s.GetInvoiceByID(ctx, id)
}

// Settings and audit

func (s *PgStore) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM clinic_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

func (s *PgStore) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
