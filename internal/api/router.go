package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clinware/clinic-booking/internal/booking"
	"github.com/clinware/clinic-booking/internal/clinic"
)

type RouterConfig struct {
	Service *booking.Service
	Store   clinic.Store
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Entity store
	r.Post("/patients", createPatientHandler(cfg.Store))
	r.Get("/patients/{id}", getPatientHandler(cfg.Store))
	r.Patch("/patients/{id}/contact", updatePatientContactHandler(cfg.Store))
	r.Get("/patients/{id}/medical-records", listMedicalRecordsHandler(cfg.Store))

	r.Post("/doctors", createDoctorHandler(cfg.Store))
	r.Get("/doctors/{id}", getDoctorHandler(cfg.Store))
	r.Post("/doctors/{id}/deactivate", deactivateDoctorHandler(cfg.Store))
	r.Post("/doctors/{id}/capabilities", grantCapabilityHandler(cfg.Store))
	r.Get("/doctors/{id}/capabilities", listCapabilitiesHandler(cfg.Store))

	r.Post("/staff", createStaffHandler(cfg.Store))
	r.Post("/departments", createDepartmentHandler(cfg.Store))
	r.Post("/appointment-types", createAppointmentTypeHandler(cfg.Store))
	r.Post("/medical-records", createMedicalRecordHandler(cfg.Store))

	r.Post("/invoices", createInvoiceHandler(cfg.Store))
	r.Get("/invoices/{id}", getInvoiceHandler(cfg.Store))

	// Booking engine and lifecycle
	r.Post("/appointments", bookAppointmentHandler(cfg.Service))
	r.Get("/appointments/today", todaysAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/status", transitionAppointmentHandler(cfg.Service))

	// Derived views
	r.Get("/availability", freeSlotsHandler(cfg.Service))
	r.Get("/slots", availableSlotsHandler(cfg.Service))

	return r
}
