package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/clinware/clinic-booking/internal/db"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	seedCtx := context.Background()

	typeIDs, err := seedAppointmentTypes(seedCtx, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("seed appointment types")
	}
	doctorIDs, err := seedDoctors(seedCtx, pool, 50, typeIDs)
	if err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedDepartments(seedCtx, pool, doctorIDs); err != nil {
		log.Fatal().Err(err).Msg("seed departments")
	}
	if err := seedStaff(seedCtx, pool, 20); err != nil {
		log.Fatal().Err(err).Msg("seed staff")
	}
	if err := seedPatients(seedCtx, pool, 5000); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}

	log.Info().Msg("seed complete")
}

func seedAppointmentTypes(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	types := []struct {
		name     string
		duration int
		price    float64
	}{
		{"General Consultation", 30, 60},
		{"Follow-up Visit", 15, 35},
		{"Annual Physical", 60, 120},
		{"Specialist Consultation", 45, 150},
		{"Vaccination", 15, 25},
		{"Lab Review", 15, 30},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(types))
	for _, t := range types {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO appointment_types (id, name, duration_minutes, base_price, created_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (name) DO NOTHING
		`, id, t.name, t.duration, t.price)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	log.Info().Int("count", len(ids)).Msg("appointment types seeded")
	return ids, nil
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int, typeIDs []uuid.UUID) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding doctors")

	specializations := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specializations[gofakeit.Number(0, len(specializations)-1)]
		license := fmt.Sprintf("MD-%06d", gofakeit.Number(100000, 999999))
		email := gofakeit.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialization, license_number, email, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, TRUE, now(), now())
		`, id, name, spec, license, email)
		if err != nil {
			return nil, err
		}

		// Each doctor handles two to four appointment types.
		perDoctor := gofakeit.Number(2, 4)
		if perDoctor > len(typeIDs) {
			perDoctor = len(typeIDs)
		}
		idx := indices(len(typeIDs))
		gofakeit.ShuffleInts(idx)
		for _, j := range idx[:perDoctor] {
			_, err := tx.Exec(ctx, `
				INSERT INTO doctor_capabilities (doctor_id, appointment_type_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, id, typeIDs[j])
			if err != nil {
				return nil, err
			}
		}

		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Info().Msg("doctors seeded")
	return ids, nil
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func seedDepartments(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID) error {
	departments := []string{
		"Cardiology", "Dermatology", "Pediatrics", "Neurology", "General Medicine",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i, name := range departments {
		var head *uuid.UUID
		if len(doctorIDs) > 0 {
			head = &doctorIDs[i%len(doctorIDs)]
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO departments (id, name, location, head_doctor_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
			ON CONFLICT (name) DO NOTHING
		`, uuid.New(), name, fmt.Sprintf("Floor %d", i+1), head)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	log.Info().Msg("departments seeded")
	return nil
}

func seedStaff(ctx context.Context, pool *pgxpool.Pool, count int) error {
	roles := []string{"Receptionist", "Nurse", "Administrator", "Billing Clerk"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		email := gofakeit.Email()
		_, err := tx.Exec(ctx, `
			INSERT INTO staff (id, name, role, email, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, TRUE, now(), now())
		`, uuid.New(), gofakeit.Name(), roles[gofakeit.Number(0, len(roles)-1)], email)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	log.Info().Int("count", count).Msg("staff seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500
	genders := []string{"Male", "Female", "Other"}

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			dob := gofakeit.DateRange(
				time.Date(1930, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC),
			)
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, date_of_birth, gender, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, now(), now())
			`, uuid.New(), gofakeit.Name(), dob, genders[gofakeit.Number(0, 2)], gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}
