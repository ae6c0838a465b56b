package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinware/clinic-booking/internal/clinic"
)

func TestTodaysAppointments(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()

	today := time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)
	tomorrow := today.AddDate(0, 0, 1)

	// Out of order on purpose, plus one booking on another day.
	for _, offset := range []time.Duration{11 * time.Hour, 9 * time.Hour, 15 * time.Hour} {
		_, err := fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ30, fx.staff, today.Add(offset), nil)
		require.NoError(t, err)
	}
	_, err := fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ30, fx.staff, tomorrow.Add(9*time.Hour), nil)
	require.NoError(t, err)

	appts, err := fx.svc.TodaysAppointments(ctx, today.Add(12*time.Hour))
	require.NoError(t, err)
	require.Len(t, appts, 3)

	for i, appt := range appts {
		assert.Equal(t, today, dayOf(appt.ScheduledDatetime))
		assert.Equal(t, "Jane Doe", appt.PatientName)
		assert.Equal(t, "Dr. Sarah Chen", appt.DoctorName)
		assert.Equal(t, "Consultation", appt.AppointmentType)
		if i > 0 {
			assert.True(t, appts[i-1].ScheduledDatetime.Before(appt.ScheduledDatetime), "not sorted")
		}
	}
}

func TestAvailableSlots(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()

	now := time.Date(2030, 3, 4, 10, 7, 0, 0, time.UTC)

	booked := time.Date(2030, 3, 4, 11, 0, 0, 0, time.UTC)
	appt, err := fx.svc.Book(ctx, fx.patient, fx.doctor, fx.typ30, fx.staff, booked, nil)
	require.NoError(t, err)

	rows, err := fx.svc.AvailableSlots(ctx, now)
	require.NoError(t, err)
	require.Len(t, rows, 1, "one active doctor with one capability")

	row := rows[0]
	assert.Equal(t, fx.doctor, row.DoctorID)
	assert.Equal(t, "Dr. Sarah Chen", row.DoctorName)
	assert.Equal(t, fx.typ30, row.AppointmentTypeID)
	require.NotEmpty(t, row.Slots)

	// Rounded down to the grid: first candidate is 10:00, not 10:07.
	assert.Equal(t, time.Date(2030, 3, 4, 10, 0, 0, 0, time.UTC), row.Slots[0].Start)

	for _, s := range row.Slots {
		assert.False(t, s.Start.Before(now.Truncate(time.Hour)), "slot in the past")
		assert.False(t, overlaps(s.Start, s.End, appt.ScheduledDatetime, appt.EndDatetime),
			"slot %v overlaps the booked appointment", s.Start)
		assert.False(t, s.End.After(time.Date(2030, 3, 4, 17, 0, 0, 0, time.UTC)), "slot past closing")
	}
}

func TestAvailableSlots_SkipsInactiveAndIncapable(t *testing.T) {
	fx := newFixture(t, testConfig())
	ctx := context.Background()

	// A second doctor with no capabilities contributes no rows.
	idle := &clinic.Doctor{
		Name:           "Dr. Idle",
		Specialization: "Radiology",
		LicenseNumber:  "MD-100002",
		Email:          "idle@clinic.example",
		Active:         true,
	}
	require.NoError(t, fx.store.CreateDoctor(ctx, idle))

	now := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	rows, err := fx.svc.AvailableSlots(ctx, now)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, fx.doctor, rows[0].DoctorID)

	// Deactivating the only capable doctor empties the projection.
	require.NoError(t, fx.store.SetDoctorActive(ctx, fx.doctor, false))
	rows, err = fx.svc.AvailableSlots(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAvailableSlots_AfterClose(t *testing.T) {
	fx := newFixture(t, testConfig())

	now := time.Date(2030, 3, 4, 18, 30, 0, 0, time.UTC)
	rows, err := fx.svc.AvailableSlots(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRoundDown(t *testing.T) {
	g := 15 * time.Minute
	base := time.Date(2030, 3, 4, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, base, roundDown(base, g))
	assert.Equal(t, base, roundDown(base.Add(7*time.Minute), g))
	assert.Equal(t, base, roundDown(base.Add(14*time.Minute+59*time.Second), g))
	assert.Equal(t, base.Add(15*time.Minute), roundDown(base.Add(15*time.Minute), g))
}
