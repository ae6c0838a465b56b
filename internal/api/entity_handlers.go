package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clinware/clinic-booking/internal/clinic"
)

const dateLayout = "2006-01-02"

func parseDate(w http.ResponseWriter, field, raw string) (time.Time, bool) {
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}

func parseOptionalUUID(w http.ResponseWriter, field string, raw *string) (*uuid.UUID, bool) {
	if raw == nil {
		return nil, true
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return nil, false
	}
	return &id, true
}

func createPatientHandler(store clinic.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePatientRequest
		if !decodeBody(w, r, &req) {
			return
		}
		dob, ok := parseDate(w, "date_of_birth", req.DateOfBirth)
		if !ok {
			return
		}

		p := &clinic.Patient{
			Name:        req.Name,
			DateOfBirth: dob,
			Gender:      clinic.Gender(req.Gender),
			Phone:       req.Phone,
			Email:       req.Email,
			Address:     req.Address,
		}
		if err := store.CreatePatient(r.Context(), p); err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func getPatientHandler(store clinic.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		p, err := store.GetPatientByID(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func updatePatientContactHandler(store clinic.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		var req UpdatePatientContactRequest
		if !decodeBody(w, r, &req) {
			return
		}
		p, err := store.UpdatePatientContact(r.Context(), id, req.Phone, req.Address)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func createDoctorHandler(store clinic.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateDoctorRequest
		if !decodeBody(w, r, &req) {
			return
		}
		d := &clinic.Doctor{
			Name:           req.Name,
			Specialization: req.Specialization,
			LicenseNumber:  req.LicenseNumber,
			Email:          req.Email,
			Phone:          req.Phone,
			Active:         true,
		}
		if err := store.CreateDoctor(r.Context(), d); err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	}
}

func getDoctorHandler(store clinic.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		d, err := store.GetDoctorByID(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func deactivateDoctorHandler(store clinic.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		if err := store.SetDoctorActive(r.Context(), id, false); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func grantCapabilityHandler(store clinic.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		var req GrantCapabilityRequest
		if !decodeBody(w, r, &req) {
			return
		}
		typeID, err := uuid.Parse(req.AppointmentTypeID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_type_id", "appointment_type_id must be a valid UUID")
			return
		}
		if err := store.GrantCapability(r.Context(), doctorID, typeID); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listCapabilitiesHandler(store clinic.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		types, err := store.ListCapabilities(r.Context(), doctorID)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		if types == nil {
			types = []clinic.AppointmentType{}
		}
		writeJSON(w, http.StatusOK, types)
	}
}

func createStaffHandler(store clinic.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateStaffRequest
		if !decodeBody(w, r, &req) {
			return
		}
		s := &clinic.Staff{
			Name:   req.Name,
			Role:   req.Role,
			Email:  req.Email,
			Phone:  req.Phone,
			Active: true,
		}
		if err := store.CreateStaff(r.Context(), s); err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, s)
	}
}

func createDepartmentHandler(store clinic.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateDepartmentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		head, ok := parseOptionalUUID(w, "head_doctor_id", req.HeadDoctorID)
		if !ok {
			return
		}
		d := &clinic.Department{
			Name:         req.Name,
			Location:     req.Location,
			HeadDoctorID: head,
		}
		if err := store.CreateDepartment(r.Context(), d); err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, d)
	}
}

func createAppointmentTypeHandler(store clinic.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentTypeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		t := &clinic.AppointmentType{
			Name:            req.Name,
			DurationMinutes: req.DurationMinutes,
			BasePrice:       req.BasePrice,
			Description:     req.Description,
		}
		if err := store.CreateAppointmentType(r.Context(), t); err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func createMedicalRecordHandler(store clinic.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateMedicalRecordRequest
		if !decodeBody(w, r, &req) {
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		apptID, ok := parseOptionalUUID(w, "appointment_id", req.AppointmentID)
		if !ok {
			return
		}

		rec := &clinic.MedicalRecord{
			PatientID:     patientID,
			DoctorID:      doctorID,
			AppointmentID: apptID,
			Diagnosis:     req.Diagnosis,
			Treatment:     req.Treatment,
			Prescription:  req.Prescription,
		}
		if err := store.CreateMedicalRecord(r.Context(), rec); err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

func listMedicalRecordsHandler(store clinic.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		records, err := store.ListMedicalRecordsByPatient(r.Context(), patientID)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		if records == nil {
			records = []clinic.MedicalRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func createInvoiceHandler(store clinic.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateInvoiceRequest
		if !decodeBody(w, r, &req) {
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		apptID, ok := parseOptionalUUID(w, "appointment_id", req.AppointmentID)
		if !ok {
			return
		}
		issue, ok := parseDate(w, "issue_date", req.IssueDate)
		if !ok {
			return
		}
		due, ok := parseDate(w, "due_date", req.DueDate)
		if !ok {
			return
		}

		inv := &clinic.Invoice{
			PatientID:     patientID,
			AppointmentID: apptID,
			IssueDate:     issue,
			DueDate:       due,
			Status:        clinic.InvoicePending,
		}
		var total float64
		for _, item := range req.Items {
			inv.Items = append(inv.Items, clinic.InvoiceItem{
				Description: item.Description,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
				Discount:    item.Discount,
			})
			total += float64(item.Quantity)*item.UnitPrice - item.Discount
		}
		inv.TotalAmount = total

		if err := store.CreateInvoice(r.Context(), inv); err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, inv)
	}
}

func getInvoiceHandler(store clinic.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		inv, err := store.GetInvoiceByID(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, inv)
	}
}
