package booking

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/clinware/clinic-booking/internal/clinic"
)

// Slot is a candidate interval during which an appointment type could be
// booked with a specific doctor.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// overlaps implements half-open [start, end) interval intersection: two
// intervals overlap iff start < other.end and end > other.start. The booking
// engine and the availability calculator share this predicate, so they can
// never disagree about a conflict.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// conflicts reports whether [start, end) overlaps any of the appointments,
// each inflated by buffer on both sides.
func conflicts(appts []clinic.Appointment, start, end time.Time, buffer time.Duration) bool {
	for i := range appts {
		if overlaps(start, end, appts[i].ScheduledDatetime.Add(-buffer), appts[i].EndDatetime.Add(buffer)) {
			return true
		}
	}
	return false
}

// FreeSlots computes the doctor's free slots for the appointment type within
// [from, to). Candidates step through business hours at the configured
// granularity; a candidate survives unless it overlaps a Scheduled
// appointment of the doctor (inflated by the appointment buffer).
//
// The returned sequence is lazy over a snapshot of the doctor's schedule
// taken at call time, finite, restartable, and ascending by start.
func (s *Service) FreeSlots(ctx context.Context, doctorID, typeID uuid.UUID, from, to time.Time) (iter.Seq[Slot], error) {
	doctor, err := s.store.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.Active {
		return nil, ErrDoctorInactive
	}

	capable, err := s.store.HasCapability(ctx, doctorID, typeID)
	if err != nil {
		return nil, fmt.Errorf("check capability: %w", err)
	}
	if !capable {
		return nil, ErrCapabilityMismatch
	}

	typ, err := s.store.GetAppointmentTypeByID(ctx, typeID)
	if err != nil {
		return nil, fmt.Errorf("load appointment type: %w", err)
	}

	if !to.After(from) {
		return nil, clinic.ErrInvalidTimeOrder
	}

	buffer := s.cfg.Clinic.AppointmentBuffer
	booked, err := s.store.ListScheduledByDoctor(ctx, doctorID, from.Add(-buffer), to.Add(buffer))
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	granularity := s.cfg.Clinic.SlotGranularity
	duration := typ.Duration()
	hours := s.cfg.Clinic

	seq := func(yield func(Slot) bool) {
		for day := from; !dayOf(day).After(dayOf(to)); day = day.AddDate(0, 0, 1) {
			open := hours.OpenAt(day)
			close := hours.CloseAt(day)

			start := open
			for start.Before(from) {
				start = start.Add(granularity)
			}
			for ; ; start = start.Add(granularity) {
				end := start.Add(duration)
				if end.After(close) || end.After(to) {
					break
				}
				if conflicts(booked, start, end, buffer) {
					continue
				}
				if !yield(Slot{Start: start, End: end}) {
					return
				}
			}
		}
	}
	return seq, nil
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
