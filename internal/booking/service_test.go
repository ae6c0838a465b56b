package booking

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinware/clinic-booking/internal/clinic"
	"github.com/clinware/clinic-booking/internal/config"
	redisclient "github.com/clinware/clinic-booking/internal/redis"
)

// localLocker serializes per doctor in-process, standing in for the Redis
// locker in tests.
type localLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newLocalLocker() *localLocker {
	return &localLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *localLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
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

// busyLocker always reports the lock as held elsewhere.
type busyLocker struct{}

func (busyLocker) WithDoctorLock(context.Context, uuid.UUID, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func testConfig() config.Config {
	return config.Config{
		Clinic: config.ClinicSettings{
			ClinicName:         "Test Clinic",
			BusinessHoursStart: 9 * 60,
			BusinessHoursEnd:   17 * 60,
			SlotGranularity:    15 * time.Minute,
			AppointmentBuffer:  0,
			CancellationNotice: 24 * time.Hour,
		},
	}
}

type fixture struct {
	svc     *Service
	store   *clinic.MemoryStore
	patient uuid.UUID
	doctor  uuid.UUID
	staff   uuid.UUID
	typ30   uuid.UUID // 30 minute type the doctor is capable of
	typ60   uuid.UUID // 60 minute type the doctor is NOT capable of
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
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

	typ30 := &clinic.AppointmentType{Name: "Consultation", DurationMinutes: 30, BasePrice: 60}
	require.NoError(t, store.CreateAppointmentType(ctx, typ30))
	typ60 := &clinic.AppointmentType{Name: "Annual Physical", DurationMinutes: 60, BasePrice: 120}
	require.NoError(t, store.CreateAppointmentType(ctx, typ60))

	require.NoError(t, store.GrantCapability(ctx, doctor.ID, typ30.ID))

	return &fixture{
		svc:     NewService(store, newLocalLocker(), cfg),
		store:   store,
		patient: patient.ID,
		doctor:  doctor.ID,
		staff:   staff.ID,
		typ30:   typ30.ID,
		typ60:   typ60.ID,
	}
}

func TestBook_Success(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()

	start := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	appt, err := fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ30, fx.staff, start, nil)
	require.NoError(t, err)

	assert.Equal(t, clinic.StatusScheduled, appt.Status)
	assert.Equal(t, start, appt.ScheduledDatetime)
	assert.Equal(t, start.Add(30*time.Minute), appt.EndDatetime)
	assert.Equal(t, fx.staff, appt.CreatedBy)

	events := fx.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAppointmentBooked, events[0].EventType)
}

func TestBook_CapabilityMismatch(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()

	// The slot itself is completely free; capability alone decides.
	start := time.Date(2030, 3, 4, 10, 0, 0, 0, time.UTC)
	_, err := fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ60, fx.staff, start, nil)
	assert.ErrorIs(t, err, ErrCapabilityMismatch)
}

func TestBook_DoctorInactive(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()

	require.NoError(t, fx.store.SetDoctorActive(ctx, fx.doctor, false))

	start := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	_, err := fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ30, fx.staff, start, nil)
	assert.ErrorIs(t, err, ErrDoctorInactive)
}

func TestBook_UnknownReferences(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()
	start := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)

	_, err := fx.svc.Book(ctx, uuid.New(), fx.doctor, fx.typ30, fx.staff, start, nil)
	assert.ErrorIs(t, err, clinic.ErrPatientNotFound)

	_, err = fx.svc.Book(ctx, fx.patient, uuid.New(), fx.typ30, fx.staff, start, nil)
	assert.ErrorIs(t, err, clinic.ErrDoctorNotFound)

	_, err = fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ30, uuid.New(), start, nil)
	assert.ErrorIs(t, err, clinic.ErrStaffNotFound)
}

func TestBook_LockBusy(t *testing.T) {
	fx := newFixture(t, testConfig())
	fx.svc = NewService(fx.store, busyLocker{}, testConfig())
	ctx := context.Background()

	start := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	_, err := fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ30, fx.staff, start, nil)
	assert.ErrorIs(t, err, ErrDoctorBeingBooked)
}

// Random intervals: whatever the request order, the set of accepted bookings
// for one doctor is always pairwise non-overlapping.
func TestBook_NoOverlapProperty(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	day := time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)
	var accepted []*clinic.Appointment

	for i := 0; i < 200; i++ {
		// Random minute between 09:00 and 16:30.
		minute := 9*60 + rng.Intn(7*60+30)
		start := day.Add(time.Duration(minute) * time.Minute)

		appt, err := fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ30, fx.staff, start, nil)
		if err != nil {
			assert.ErrorIs(t, err, ErrSlotConflict)
			continue
		}
		accepted = append(accepted, appt)
	}

	require.NotEmpty(t, accepted)
	for i := 0; i < len(accepted); i++ {
		for j := i + 1; j < len(accepted); j++ {
			a, b := accepted[i], accepted[j]
			assert.False(t,
				a.ScheduledDatetime.Before(b.EndDatetime) && a.EndDatetime.After(b.ScheduledDatetime),
				"appointments %d and %d overlap", i, j)
		}
	}
}

func TestBook_ConcurrentSameSlot(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()
	start := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ30, fx.staff, start, nil)
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		default:
			assert.ErrorIs(t, err, ErrSlotConflict)
			conflicts++
		}
	}
	assert.Equal(t, 1, wins, "exactly one racer may win the slot")
	assert.Equal(t, racers-1, conflicts)
}

func TestTransition_TerminalStatesReject(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()

	for i, terminal := range []clinic.AppointmentStatus{
		clinic.StatusCompleted, clinic.StatusCancelled, clinic.StatusNoShow,
	} {
		start := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
		appt, err := fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ30, fx.staff, start, nil)
		require.NoError(t, err)

		_, err = fx.svc.Transition(ctx, appt.ID, terminal)
		require.NoError(t, err)

		for _, next := range []clinic.AppointmentStatus{
			clinic.StatusCompleted, clinic.StatusCancelled, clinic.StatusNoShow, clinic.StatusScheduled,
		} {
			_, err := fx.svc.Transition(ctx, appt.ID, next)
			assert.ErrorIs(t, err, ErrInvalidTransition, "out of %s into %s", terminal, next)
		}
	}
}

func TestTransition_RejectsScheduledTarget(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()

	start := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	appt, err := fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ30, fx.staff, start, nil)
	require.NoError(t, err)

	_, err = fx.svc.Transition(ctx, appt.ID, clinic.StatusScheduled)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = fx.svc.Transition(ctx, appt.ID, clinic.AppointmentStatus("Bogus"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransition_LateCancellation(t *testing.T) {
	ctx := context.Background()

	bookSoon := func(t *testing.T, fx *fixture) uuid.UUID {
		// Inside the 24h notice window. Created through the store to keep
		// the start independent of business hours.
		appt := &clinic.Appointment{
			PatientID:         fx.patient,
			DoctorID:          fx.doctor,
			AppointmentTypeID: fx.typ30,
			CreatedBy:         fx.staff,
			ScheduledDatetime: time.Now().Add(2 * time.Hour),
			EndDatetime:       time.Now().Add(2*time.Hour + 30*time.Minute),
			Status:            clinic.StatusScheduled,
		}
		require.NoError(t, fx.store.CreateAppointment(ctx, appt))
		return appt.ID
	}

	t.Run("advisory allows", func(t *testing.T) {
		fx := newFixture(t, testConfig())
		id := bookSoon(t, fx)

		updated, err := fx.svc.Transition(ctx, id, clinic.StatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, clinic.StatusCancelled, updated.Status)
	})

	t.Run("strict rejects", func(t *testing.T) {
		cfg := testConfig()
		cfg.Clinic.CancellationStrict = true
		fx := newFixture(t, cfg)
		id := bookSoon(t, fx)

		_, err := fx.svc.Transition(ctx, id, clinic.StatusCancelled)
		assert.ErrorIs(t, err, ErrLateCancellation)

		// Completion is unaffected by the cancellation policy.
		updated, err := fx.svc.Transition(ctx, id, clinic.StatusCompleted)
		require.NoError(t, err)
		assert.Equal(t, clinic.StatusCompleted, updated.Status)
	})

	t.Run("strict allows with enough notice", func(t *testing.T) {
		cfg := testConfig()
		cfg.Clinic.CancellationStrict = true
		fx := newFixture(t, cfg)

		start := time.Now().Add(72 * time.Hour).Truncate(time.Minute)
		appt := &clinic.Appointment{
			PatientID:         fx.patient,
			DoctorID:          fx.doctor,
			AppointmentTypeID: fx.typ30,
			CreatedBy:         fx.staff,
			ScheduledDatetime: start,
			EndDatetime:       start.Add(30 * time.Minute),
			Status:            clinic.StatusScheduled,
		}
		require.NoError(t, fx.store.CreateAppointment(ctx, appt))

		updated, err := fx.svc.Transition(ctx, appt.ID, clinic.StatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, clinic.StatusCancelled, updated.Status)
	})
}

// The end-to-end scenario: one 30-minute appointment at 09:00, a conflicting
// request at 09:15, a back-to-back booking at 09:30, then the lifecycle of
// the first appointment.
func TestBookingScenario(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()

	nine := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)

	first, err := fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ30, fx.staff, nine, nil)
	require.NoError(t, err)
	assert.Equal(t, clinic.StatusScheduled, first.Status)

	_, err = fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ30, fx.staff, nine.Add(15*time.Minute), nil)
	assert.ErrorIs(t, err, ErrSlotConflict)

	second, err := fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ30, fx.staff, nine.Add(30*time.Minute), nil)
	require.NoError(t, err)
	assert.Equal(t, clinic.StatusScheduled, second.Status)

	completed, err := fx.svc.Transition(ctx, first.ID, clinic.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, clinic.StatusCompleted, completed.Status)

	_, err = fx.svc.Transition(ctx, first.ID, clinic.StatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestBook_WithBuffer(t *testing.T) {
	cfg := testConfig()
	cfg.Clinic.AppointmentBuffer = 10 * time.Minute
	fx := newFixture(t, cfg)
	ctx := context.Background()

	nine := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	_, err := fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ30, fx.staff, nine, nil)
	require.NoError(t, err)

	// Back-to-back is no longer allowed inside the buffer.
	_, err = fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ30, fx.staff, nine.Add(30*time.Minute), nil)
	assert.ErrorIs(t, err, ErrSlotConflict)

	_, err = fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ30, fx.staff, nine.Add(45*time.Minute), nil)
	require.NoError(t, err)
}
