package booking

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/clinware/clinic-booking/internal/clinic"
)

// DoctorAvailability is one row of the available-slots projection: the free
// slots for one active doctor and one of their capable appointment types.
type DoctorAvailability struct {
	DoctorID          uuid.UUID `json:"doctor_id"`
	DoctorName        string    `json:"doctor_name"`
	AppointmentTypeID uuid.UUID `json:"appointment_type_id"`
	AppointmentType   string    `json:"appointment_type"`
	Slots             []Slot    `json:"slots"`
}

// TodaysAppointments returns all appointments whose start falls on now's
// date, with display names joined in, ascending by start.
func (s *Service) TodaysAppointments(ctx context.Context, now time.Time) ([]clinic.AppointmentDetail, error) {
	return s.store.ListAppointmentsForDay(ctx, now)
}

// AvailableSlots recomputes the free slots of every active doctor and their
// capable appointment types from now (rounded down to the granularity
// boundary) until close of business. Nothing is cached; every call reads
// committed state.
func (s *Service) AvailableSlots(ctx context.Context, now time.Time) ([]DoctorAvailability, error) {
	doctors, err := s.store.ListActiveDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}

	from := roundDown(now, s.cfg.Clinic.SlotGranularity)
	to := s.cfg.Clinic.CloseAt(now)
	if !to.After(from) {
		return nil, nil
	}

	var result []DoctorAvailability
	for _, doc := range doctors {
		types, err := s.store.ListCapabilities(ctx, doc.ID)
		if err != nil {
			return nil, fmt.Errorf("list capabilities for %s: %w", doc.ID, err)
		}
		for _, typ := range types {
			seq, err := s.FreeSlots(ctx, doc.ID, typ.ID, from, to)
			if err != nil {
				return nil, err
			}
			slots := slices.Collect(seq)
			if len(slots) == 0 {
				continue
			}
			result = append(result, DoctorAvailability{
				DoctorID:          doc.ID,
				DoctorName:        doc.Name,
				AppointmentTypeID: typ.ID,
				AppointmentType:   typ.Name,
				Slots:             slots,
			})
		}
	}
	return result, nil
}

// roundDown truncates t to the previous granularity boundary, measured from
// local midnight so the result stays on the business-hours grid.
func roundDown(t time.Time, granularity time.Duration) time.Time {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	offset := t.Sub(midnight)
	return midnight.Add(offset - offset%granularity)
}
