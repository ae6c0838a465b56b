package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clinware/clinic-booking/internal/clinic"
	"github.com/clinware/clinic-booking/internal/config"
	redisclient "github.com/clinware/clinic-booking/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
)

var (
	ErrDoctorInactive     = errors.New("doctor is not active")
	ErrCapabilityMismatch = errors.New("doctor cannot perform this appointment type")
	ErrSlotConflict       = errors.New("requested slot overlaps an existing scheduled appointment")
	ErrDoctorBeingBooked  = errors.New("doctor is currently being booked, please retry")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrLateCancellation   = errors.New("cancellation is inside the required notice window")
)

type Service struct {
	store  clinic.Store
	locker redisclient.Locker
	cfg    config.Config
}

func NewService(store clinic.Store, locker redisclient.Locker, cfg config.Config) *Service {
	return &Service{
		store:  store,
		locker: locker,
		cfg:    cfg,
	}
}

// Book validates and commits a new appointment. The end time is derived from
// the appointment type's duration. The overlap check and the insert run
// inside the per-doctor lock, so concurrent bookings for the same doctor
// serialize; the schema's exclusion constraint backstops deployments that
// bypass the lock. On failure nothing is committed.
func (s *Service) Book(ctx context.Context, patientID, doctorID, typeID, createdBy uuid.UUID, start time.Time, notes *string) (*clinic.Appointment, error) {
	if _, err := s.store.GetPatientByID(ctx, patientID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetStaffByID(ctx, createdBy); err != nil {
		return nil, err
	}

	doctor, err := s.store.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, err
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
		return nil, err
	}

	end := start.Add(typ.Duration())
	// Always true given duration > 0; re-checked because the invariant is
	// cheap and the insert depends on it.
	if !end.After(start) {
		return nil, clinic.ErrInvalidTimeOrder
	}

	buffer := s.cfg.Clinic.AppointmentBuffer

	var created *clinic.Appointment

	err = s.locker.WithDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
		booked, err := s.store.ListScheduledByDoctor(lockCtx, doctorID, start.Add(-buffer), end.Add(buffer))
		if err != nil {
			return fmt.Errorf("load schedule: %w", err)
		}
		if conflicts(booked, start, end, buffer) {
			return ErrSlotConflict
		}

		appt := &clinic.Appointment{
			PatientID:         patientID,
			DoctorID:          doctorID,
			AppointmentTypeID: typeID,
			CreatedBy:         createdBy,
			ScheduledDatetime: start,
			EndDatetime:       end,
			Status:            clinic.StatusScheduled,
			Notes:             notes,
		}
		if err := s.store.CreateAppointment(lockCtx, appt); err != nil {
			if errors.Is(err, clinic.ErrScheduleConflict) {
				return ErrSlotConflict
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"patient_id": patientID.String(),
			"doctor_id":  doctorID.String(),
			"type_id":    typeID.String(),
			"start":      start,
			"end":        end,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDoctorBeingBooked
		}
		return nil, err
	}

	return created, nil
}

// Transition moves an appointment out of Scheduled. Completed, Cancelled and
// No-Show are terminal; any transition out of them fails. Cancellations
// closer to the start than the configured notice are rejected in strict mode
// and logged otherwise.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to clinic.AppointmentStatus) (*clinic.Appointment, error) {
	switch to {
	case clinic.StatusCompleted, clinic.StatusCancelled, clinic.StatusNoShow:
	default:
		return nil, ErrInvalidTransition
	}

	appt, err := s.store.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, ErrInvalidTransition
	}

	if to == clinic.StatusCancelled && s.cfg.Clinic.CancellationNotice > 0 {
		if time.Until(appt.ScheduledDatetime) < s.cfg.Clinic.CancellationNotice {
			if s.cfg.Clinic.CancellationStrict {
				return nil, ErrLateCancellation
			}
			log.Warn().
				Str("appointment_id", id.String()).
				Time("scheduled_datetime", appt.ScheduledDatetime).
				Dur("required_notice", s.cfg.Clinic.CancellationNotice).
				Msg("late cancellation accepted (advisory policy)")
		}
	}

	updated, err := s.store.UpdateAppointmentStatus(ctx, id, clinic.StatusScheduled, to)
	if err != nil {
		if errors.Is(err, clinic.ErrStatusChanged) {
			// A concurrent transition won the compare-and-swap.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.logEvent(ctx, updated.ID, eventForStatus(to), map[string]any{
		"from": string(clinic.StatusScheduled),
		"to":   string(to),
	})

	return updated, nil
}

func eventForStatus(s clinic.AppointmentStatus) string {
	switch s {
	case clinic.StatusCompleted:
		return EventAppointmentCompleted
	case clinic.StatusCancelled:
		return EventAppointmentCancelled
	case clinic.StatusNoShow:
		return EventAppointmentNoShow
	}
	return "APPOINTMENT_STATUS_CHANGED"
}

// GetAppointment retrieves a fully hydrated appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*clinic.AppointmentDetail, error) {
	detail, err := s.store.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return detail, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := clinic.EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.store.InsertEvent(ctx, ev); err != nil {
		log.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert event log")
	}
}
