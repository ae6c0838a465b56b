package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinware/clinic-booking/internal/booking"
	"github.com/clinware/clinic-booking/internal/clinic"
)

func appointmentResponse(a *clinic.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                a.ID,
		PatientID:         a.PatientID,
		DoctorID:          a.DoctorID,
		AppointmentTypeID: a.AppointmentTypeID,
		Start:             a.ScheduledDatetime,
		End:               a.EndDatetime,
		Status:            string(a.Status),
		Notes:             a.Notes,
	}
}

func detailResponse(d *clinic.AppointmentDetail) AppointmentDetailResponse {
	return AppointmentDetailResponse{
		AppointmentResponse: appointmentResponse(&d.Appointment),
		PatientName:         d.PatientName,
		DoctorName:          d.DoctorName,
		AppointmentType:     d.AppointmentType,
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func bookAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		ids := make([]uuid.UUID, 4)
		for i, field := range []struct{ name, raw string }{
			{"patient_id", req.PatientID},
			{"doctor_id", req.DoctorID},
			{"appointment_type_id", req.AppointmentTypeID},
			{"created_by", req.CreatedBy},
		} {
			id, err := uuid.Parse(field.raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_"+field.name, field.name+" must be a valid UUID")
				return
			}
			ids[i] = id
		}

		if req.Start.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be an RFC3339 timestamp")
			return
		}

		appt, err := svc.Book(r.Context(), ids[0], ids[1], ids[2], ids[3], req.Start, req.Notes)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appointmentResponse(appt))
	}
}

func transitionAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		var req TransitionRequest
		if !decodeBody(w, r, &req) {
			return
		}

		appt, err := svc.Transition(r.Context(), id, clinic.AppointmentStatus(req.Status))
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detailResponse(detail))
	}
}

func todaysAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		details, err := svc.TodaysAppointments(r.Context(), time.Now())
		if err != nil {
			handleDomainError(w, err)
			return
		}
		out := make([]AppointmentDetailResponse, 0, len(details))
		for i := range details {
			out = append(out, detailResponse(&details[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func availableSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.AvailableSlots(r.Context(), time.Now())
		if err != nil {
			handleDomainError(w, err)
			return
		}
		if rows == nil {
			rows = []booking.DoctorAvailability{}
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

// freeSlotsHandler answers availability queries for one doctor and type:
// GET /availability?doctor_id=&type_id=&from=&to= (RFC3339 bounds).
func freeSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		doctorID, err := uuid.Parse(q.Get("doctor_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		typeID, err := uuid.Parse(q.Get("type_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_type_id", "type_id must be a valid UUID")
			return
		}
		from, err := time.Parse(time.RFC3339, q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be an RFC3339 timestamp")
			return
		}
		to, err := time.Parse(time.RFC3339, q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be an RFC3339 timestamp")
			return
		}

		seq, err := svc.FreeSlots(r.Context(), doctorID, typeID, from, to)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		slots := slices.Collect(seq)
		if slots == nil {
			slots = []booking.Slot{}
		}
		writeJSON(w, http.StatusOK, slots)
	}
}
