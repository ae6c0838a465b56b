package clinic

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and the simulator's dry-run
// mode. It enforces the same uniqueness, reference, and non-overlap rules the
// Postgres schema does, so services behave identically against either.
type MemoryStore struct {
	mu           sync.RWMutex
	patients     map[uuid.UUID]*Patient
	doctors      map[uuid.UUID]*Doctor
	staff        map[uuid.UUID]*Staff
	departments  map[uuid.UUID]*Department
	types        map[uuid.UUID]*AppointmentType
	appointments map[uuid.UUID]*Appointment
	records      map[uuid.UUID]*MedicalRecord
	invoices     map[uuid.UUID]*Invoice
	capabilities map[uuid.UUID]map[uuid.UUID]bool // doctor -> type set
	settings     map[string]string
	events       []EventLog
	nextEventID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients:     make(map[uuid.UUID]*Patient),
		doctors:      make(map[uuid.UUID]*Doctor),
		staff:        make(map[uuid.UUID]*Staff),
		departments:  make(map[uuid.UUID]*Department),
		types:        make(map[uuid.UUID]*AppointmentType),
		appointments: make(map[uuid.UUID]*Appointment),
		records:      make(map[uuid.UUID]*MedicalRecord),
		invoices:     make(map[uuid.UUID]*Invoice),
		capabilities: make(map[uuid.UUID]map[uuid.UUID]bool),
		settings:     make(map[string]string),
		nextEventID:  1,
	}
}

var _ Store = (*MemoryStore)(nil)

// Patients

func (m *MemoryStore) CreatePatient(_ context.Context, p *Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.patients {
		if other.Email == p.Email {
			return ErrDuplicateEmail
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *MemoryStore) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) UpdatePatientContact(_ context.Context, id uuid.UUID, phone, address *string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	if phone != nil {
		p.Phone = phone
	}
	if address != nil {
		p.Address = address
	}
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

// Doctors

func (m *MemoryStore) CreateDoctor(_ context.Context, d *Doctor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.doctors {
		if other.Email == d.Email {
			return ErrDuplicateEmail
		}
		if other.LicenseNumber == d.LicenseNumber {
			return ErrDuplicateLicense
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *MemoryStore) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) ListActiveDoctors(_ context.Context) ([]Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []Doctor
	for _, d := range m.doctors {
		if d.Active {
			result = append(result, *d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *MemoryStore) SetDoctorActive(_ context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return ErrDoctorNotFound
	}
	d.Active = active
	d.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GrantCapability(_ context.Context, doctorID, typeID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.doctors[doctorID]; !ok {
		return ErrInvalidReference
	}
	if _, ok := m.types[typeID]; !ok {
		return ErrInvalidReference
	}
	set, ok := m.capabilities[doctorID]
	if !ok {
		set = make(map[uuid.UUID]bool)
		m.capabilities[doctorID] = set
	}
	set[typeID] = true
	return nil
}

func (m *MemoryStore) ListCapabilities(_ context.Context, doctorID uuid.UUID) ([]AppointmentType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []AppointmentType
	for typeID := range m.capabilities[doctorID] {
		if t, ok := m.types[typeID]; ok {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *MemoryStore) HasCapability(_ context.Context, doctorID, typeID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.capabilities[doctorID][typeID], nil
}

// Staff

func (m *MemoryStore) CreateStaff(_ context.Context, s *Staff) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	cp := *s
	m.staff[s.ID] = &cp
	return nil
}

func (m *MemoryStore) GetStaffByID(_ context.Context, id uuid.UUID) (*Staff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.staff[id]
	if !ok {
		return nil, ErrStaffNotFound
	}
	cp := *s
	return &cp, nil
}

// Departments

func (m *MemoryStore) CreateDepartment(_ context.Context, d *Department) error {
	if err := d.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.departments {
		if other.Name == d.Name {
			return ErrDuplicateName
		}
	}
	if d.HeadDoctorID != nil {
		if _, ok := m.doctors[*d.HeadDoctorID]; !ok {
			return ErrInvalidReference
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	cp := *d
	m.departments[d.ID] = &cp
	return nil
}

func (m *MemoryStore) GetDepartmentByID(_ context.Context, id uuid.UUID) (*Department, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.departments[id]
	if !ok {
		return nil, ErrDepartmentNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) SetDepartmentHead(_ context.Context, departmentID, doctorID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.departments[departmentID]
	if !ok {
		return ErrDepartmentNotFound
	}
	if _, ok := m.doctors[doctorID]; !ok {
		return ErrInvalidReference
	}
	id := doctorID
	d.HeadDoctorID = &id
	d.UpdatedAt = time.Now()
	return nil
}

// Appointment types

func (m *MemoryStore) CreateAppointmentType(_ context.Context, t *AppointmentType) error {
	if err := t.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.types {
		if other.Name == t.Name {
			return ErrDuplicateName
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now()
	cp := *t
	m.types[t.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAppointmentTypeByID(_ context.Context, id uuid.UUID) (*AppointmentType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.types[id]
	if !ok {
		return nil, ErrAppointmentTypeNotFound
	}
	cp := *t
	return &cp, nil
}

// Appointments

func overlapsLocked(a *Appointment, start, end time.Time) bool {
	return a.ScheduledDatetime.Before(end) && a.EndDatetime.After(start)
}

func (m *MemoryStore) CreateAppointment(_ context.Context, a *Appointment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.patients[a.PatientID]; !ok {
		return ErrInvalidReference
	}
	if _, ok := m.doctors[a.DoctorID]; !ok {
		return ErrInvalidReference
	}
	if _, ok := m.types[a.AppointmentTypeID]; !ok {
		return ErrInvalidReference
	}
	if _, ok := m.staff[a.CreatedBy]; !ok {
		return ErrInvalidReference
	}

	// Same backstop as the schema's exclusion constraint.
	if a.Status == StatusScheduled {
		for _, other := range m.appointments {
			if other.DoctorID == a.DoctorID && other.Status == StatusScheduled &&
				overlapsLocked(other, a.ScheduledDatetime, a.EndDatetime) {
				return ErrScheduleConflict
			}
		}
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	m.appointments[a.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) GetAppointmentDetail(_ context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return m.detailLocked(a), nil
}

func (m *MemoryStore) detailLocked(a *Appointment) *AppointmentDetail {
	d := &AppointmentDetail{Appointment: *a}
	if p, ok := m.patients[a.PatientID]; ok {
		d.PatientName = p.Name
	}
	if doc, ok := m.doctors[a.DoctorID]; ok {
		d.DoctorName = doc.Name
	}
	if t, ok := m.types[a.AppointmentTypeID]; ok {
		d.AppointmentType = t.Name
	}
	return d
}

func (m *MemoryStore) ListScheduledByDoctor(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []Appointment
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Status == StatusScheduled && overlapsLocked(a, from, to) {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledDatetime.Before(result[j].ScheduledDatetime)
	})
	return result, nil
}

func (m *MemoryStore) ListAppointmentsForDay(_ context.Context, day time.Time) ([]AppointmentDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	y, mo, d := day.Date()
	var result []AppointmentDetail
	for _, a := range m.appointments {
		ay, am, ad := a.ScheduledDatetime.In(day.Location()).Date()
		if ay == y && am == mo && ad == d {
			result = append(result, *m.detailLocked(a))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledDatetime.Before(result[j].ScheduledDatetime)
	})
	return result, nil
}

func (m *MemoryStore) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStatusChanged
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

// Medical records

func (m *MemoryStore) CreateMedicalRecord(_ context.Context, r *MedicalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[r.PatientID]; !ok {
		return ErrInvalidReference
	}
	if _, ok := m.doctors[r.DoctorID]; !ok {
		return ErrInvalidReference
	}
	if r.AppointmentID != nil {
		if _, ok := m.appointments[*r.AppointmentID]; !ok {
			return ErrInvalidReference
		}
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = time.Now()
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *MemoryStore) ListMedicalRecordsByPatient(_ context.Context, patientID uuid.UUID) ([]MedicalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []MedicalRecord
	for _, r := range m.records {
		if r.PatientID == patientID {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// Invoices

func (m *MemoryStore) CreateInvoice(_ context.Context, inv *Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[inv.PatientID]; !ok {
		return ErrInvalidReference
	}
	if inv.AppointmentID != nil {
		if _, ok := m.appointments[*inv.AppointmentID]; !ok {
			return ErrInvalidReference
		}
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Status == "" {
		inv.Status = InvoicePending
	}
	for i := range inv.Items {
		if inv.Items[i].ID == uuid.Nil {
			inv.Items[i].ID = uuid.New()
		}
		inv.Items[i].InvoiceID = inv.ID
	}
	inv.CreatedAt = time.Now()
	cp := *inv
	cp.Items = append([]InvoiceItem(nil), inv.Items...)
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *MemoryStore) GetInvoiceByID(_ context.Context, id uuid.UUID) (*Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	cp := *inv
	cp.Items = append([]InvoiceItem(nil), inv.Items...)
	return &cp, nil
}

func (m *MemoryStore) UpdateInvoiceStatus(_ context.Context, id uuid.UUID, status InvoiceStatus) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	inv.Status = status
	cp := *inv
	cp.Items = append([]InvoiceItem(nil), inv.Items...)
	return &cp, nil
}

// Settings and audit

func (m *MemoryStore) SetSetting(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
}

func (m *MemoryStore) GetSettings(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = m.nextEventID
	m.nextEventID++
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the audit log for test assertions.
func (m *MemoryStore) Events() []EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]EventLog(nil), m.events...)
}
