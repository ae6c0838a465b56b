package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinware/clinic-booking/internal/booking"
	"github.com/clinware/clinic-booking/internal/clinic"
	"github.com/clinware/clinic-booking/internal/config"
)

// mutexLocker serializes bookings per doctor in-process so the router can be
// tested without Redis.
type mutexLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func (l *mutexLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[doctorID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[doctorID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

type testAPI struct {
	router http.Handler
	store  *clinic.MemoryStore

	patient uuid.UUID
	doctor  uuid.UUID
	staff   uuid.UUID
	typ     uuid.UUID
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	store := clinic.NewMemoryStore()

	patient := &clinic.Patient{
		Name:        "Jane Doe",
		DateOfBirth: time.Date(1990, 5, 2, 0, 0, 0, 0, time.UTC),
		Gender:      clinic.GenderFemale,
		Email:       "jane@example.com",
	}
	require.NoError(t, store.CreatePatient(ctx, patient))

	doctor := &clinic.Doctor{
		Name:           "Dr. Sarah Chen",
		Specialization: "General Practice",
		LicenseNumber:  "MD-100001",
		Email:          "chen@clinic.example",
		Active:         true,
	}
	require.NoError(t, store.CreateDoctor(ctx, doctor))

	staff := &clinic.Staff{Name: "Front Desk", Role: "Receptionist", Active: true}
	require.NoError(t, store.CreateStaff(ctx, staff))

	typ := &clinic.AppointmentType{Name: "Consultation", DurationMinutes: 30, BasePrice: 60}
	require.NoError(t, store.CreateAppointmentType(ctx, typ))
	require.NoError(t, store.GrantCapability(ctx, doctor.ID, typ.ID))

	cfg := config.Config{
		Clinic: config.ClinicSettings{
			BusinessHoursStart: 9 * 60,
			BusinessHoursEnd:   17 * 60,
			SlotGranularity:    15 * time.Minute,
			CancellationNotice: 24 * time.Hour,
		},
	}
	svc := booking.NewService(store, &mutexLocker{locks: make(map[uuid.UUID]*sync.Mutex)}, cfg)

	router := NewRouter(RouterConfig{
		Service: svc,
		Store:   store,
		Env:     "test",
		Version: "test",
	})

	return &testAPI{
		router:  router,
		store:   store,
		patient: patient.ID,
		doctor:  doctor.ID,
		staff:   staff.ID,
		typ:     typ.ID,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *testAPI) bookRequest(start time.Time) map[string]any {
	return map[string]any{
		"patient_id":          a.patient.String(),
		"doctor_id":           a.doctor.String(),
		"appointment_type_id": a.typ.String(),
		"created_by":          a.staff.String(),
		"start":               start.Format(time.RFC3339),
	}
}

func TestBookAppointmentEndpoint(t *testing.T) {
	api := newTestAPI(t)
	start := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)

	rec := api.do(t, http.MethodPost, "/appointments", api.bookRequest(start))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeJSON[AppointmentResponse](t, rec)
	assert.Equal(t, api.patient, resp.PatientID)
	assert.Equal(t, api.doctor, resp.DoctorID)
	assert.Equal(t, "Scheduled", resp.Status)
	assert.True(t, resp.Start.Equal(start))
	assert.True(t, resp.End.Equal(start.Add(30*time.Minute)))

	// Overlapping request conflicts.
	rec = api.do(t, http.MethodPost, "/appointments", api.bookRequest(start.Add(15*time.Minute)))
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_conflict", decodeJSON[ErrorResponse](t, rec).Error)

	// Back-to-back succeeds.
	rec = api.do(t, http.MethodPost, "/appointments", api.bookRequest(start.Add(30*time.Minute)))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestBookAppointmentEndpoint_BadRequests(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/appointments", map[string]any{
		"patient_id": "not-a-uuid",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := api.bookRequest(time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC))
	delete(body, "start")
	rec = api.do(t, http.MethodPost, "/appointments", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_start", decodeJSON[ErrorResponse](t, rec).Error)

	body = api.bookRequest(time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC))
	body["patient_id"] = uuid.NewString()
	rec = api.do(t, http.MethodPost, "/appointments", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "patient_not_found", decodeJSON[ErrorResponse](t, rec).Error)
}

func TestTransitionEndpoint(t *testing.T) {
	api := newTestAPI(t)
	start := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)

	rec := api.do(t, http.MethodPost, "/appointments", api.bookRequest(start))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJSON[AppointmentResponse](t, rec)

	path := fmt.Sprintf("/appointments/%s/status", created.ID)

	rec = api.do(t, http.MethodPost, path, map[string]string{"status": "Completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Completed", decodeJSON[AppointmentResponse](t, rec).Status)

	// Terminal: a second transition conflicts.
	rec = api.do(t, http.MethodPost, path, map[string]string{"status": "Cancelled"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", decodeJSON[ErrorResponse](t, rec).Error)

	rec = api.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/status", uuid.New()),
		map[string]string{"status": "Cancelled"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAppointmentEndpoint(t *testing.T) {
	api := newTestAPI(t)
	start := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)

	rec := api.do(t, http.MethodPost, "/appointments", api.bookRequest(start))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJSON[AppointmentResponse](t, rec)

	rec = api.do(t, http.MethodGet, "/appointments/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	detail := decodeJSON[AppointmentDetailResponse](t, rec)
	assert.Equal(t, created.ID, detail.ID)
	assert.Equal(t, "Jane Doe", detail.PatientName)
	assert.Equal(t, "Dr. Sarah Chen", detail.DoctorName)
	assert.Equal(t, "Consultation", detail.AppointmentType)

	rec = api.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/appointments/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFreeSlotsEndpoint(t *testing.T) {
	api := newTestAPI(t)

	day := time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)
	booked := day.Add(10 * time.Hour)
	rec := api.do(t, http.MethodPost, "/appointments", api.bookRequest(booked))
	require.Equal(t, http.StatusCreated, rec.Code)

	path := fmt.Sprintf("/availability?doctor_id=%s&type_id=%s&from=%s&to=%s",
		api.doctor, api.typ,
		day.Format(time.RFC3339), day.AddDate(0, 0, 1).Format(time.RFC3339))

	rec = api.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	slots := decodeJSON[[]booking.Slot](t, rec)
	require.NotEmpty(t, slots)
	for _, s := range slots {
		assert.False(t, s.Start.Before(booked) && s.End.After(booked),
			"slot %v overlaps the booked appointment", s.Start)
	}

	// Missing or malformed query parameters are rejected.
	rec = api.do(t, http.MethodGet, "/availability?doctor_id=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePatientEndpoint(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/patients", CreatePatientRequest{
		Name:        "John Smith",
		DateOfBirth: "1985-07-12",
		Gender:      "Male",
		Email:       "john.smith@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Duplicate email conflicts.
	rec = api.do(t, http.MethodPost, "/patients", CreatePatientRequest{
		Name:        "Another John",
		DateOfBirth: "1985-07-12",
		Gender:      "Male",
		Email:       "john.smith@example.com",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_value", decodeJSON[ErrorResponse](t, rec).Error)

	// Validation failures are 400s.
	rec = api.do(t, http.MethodPost, "/patients", CreatePatientRequest{
		Name:        "Bad Email",
		DateOfBirth: "1985-07-12",
		Gender:      "Male",
		Email:       "not-an-email",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeJSON[ErrorResponse](t, rec).Error)
}

func TestInvoiceEndpoints(t *testing.T) {
	api := newTestAPI(t)

	req := CreateInvoiceRequest{
		PatientID: api.patient.String(),
		IssueDate: "2030-03-01",
		DueDate:   "2030-03-15",
		Items: []InvoiceItemRequest{
			{Description: "Consultation", Quantity: 1, UnitPrice: 60},
			{Description: "Lab work", Quantity: 2, UnitPrice: 25, Discount: 5},
		},
	}
	rec := api.do(t, http.MethodPost, "/invoices", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID          uuid.UUID `json:"id"`
		TotalAmount float64   `json:"total_amount"`
		Status      string    `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, 105.0, created.TotalAmount) // 60 + 2*25 - 5
	assert.Equal(t, "Pending", created.Status)

	rec = api.do(t, http.MethodGet, "/invoices/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// due < issue is a validation failure.
	bad := req
	bad.DueDate = "2030-02-01"
	rec = api.do(t, http.MethodPost, "/invoices", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown patient is an invalid reference.
	bad = req
	bad.PatientID = uuid.NewString()
	rec = api.do(t, http.MethodPost, "/invoices", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDoctorCapabilityEndpoints(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/capabilities", api.doctor), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var types []struct {
		ID   uuid.UUID `json:"id"`
		Name string    `json:"name"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &types))
	require.Len(t, types, 1)
	assert.Equal(t, "Consultation", types[0].Name)

	// Deactivate, then booking conflicts.
	rec = api.do(t, http.MethodPost, fmt.Sprintf("/doctors/%s/deactivate", api.doctor), nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/appointments",
		api.bookRequest(time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "doctor_inactive", decodeJSON[ErrorResponse](t, rec).Error)
}
