package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/clinware/clinic-booking/internal/booking"
	"github.com/clinware/clinic-booking/internal/clinic"
	redisclient "github.com/clinware/clinic-booking/internal/redis"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleDomainError maps typed domain errors onto HTTP statuses. Anything
// unrecognized is a 500.
func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, clinic.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, clinic.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, clinic.ErrStaffNotFound):
		writeError(w, http.StatusNotFound, "staff_not_found", err.Error())
	case errors.Is(err, clinic.ErrDepartmentNotFound):
		writeError(w, http.StatusNotFound, "department_not_found", err.Error())
	case errors.Is(err, clinic.ErrAppointmentTypeNotFound):
		writeError(w, http.StatusNotFound, "appointment_type_not_found", err.Error())
	case errors.Is(err, clinic.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, clinic.ErrInvoiceNotFound):
		writeError(w, http.StatusNotFound, "invoice_not_found", err.Error())

	case errors.Is(err, booking.ErrDoctorInactive):
		writeError(w, http.StatusConflict, "doctor_inactive", err.Error())
	case errors.Is(err, booking.ErrCapabilityMismatch):
		writeError(w, http.StatusConflict, "capability_mismatch", err.Error())
	case errors.Is(err, booking.ErrSlotConflict), errors.Is(err, clinic.ErrScheduleConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, booking.ErrDoctorBeingBooked), errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "doctor_being_booked", "doctor is currently being booked, please retry shortly")
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, clinic.ErrStatusChanged):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrLateCancellation):
		writeError(w, http.StatusConflict, "late_cancellation", err.Error())

	case errors.Is(err, clinic.ErrDuplicateEmail),
		errors.Is(err, clinic.ErrDuplicateLicense),
		errors.Is(err, clinic.ErrDuplicateName):
		writeError(w, http.StatusConflict, "duplicate_value", err.Error())

	case errors.Is(err, clinic.ErrInvalidEmail),
		errors.Is(err, clinic.ErrInvalidGender),
		errors.Is(err, clinic.ErrMissingName),
		errors.Is(err, clinic.ErrInvalidTimeOrder),
		errors.Is(err, clinic.ErrInvalidInvoiceDates),
		errors.Is(err, clinic.ErrNonPositiveQuantity),
		errors.Is(err, clinic.ErrNonPositiveDuration),
		errors.Is(err, clinic.ErrEmptyInvoice):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())

	case errors.Is(err, clinic.ErrInvalidReference):
		writeError(w, http.StatusUnprocessableEntity, "invalid_reference", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
