// Command simulate races concurrent booking requests for a single doctor
// against the API and reports whether exactly one request per slot won. It is
// the operational check for the booking engine's no-double-booking guarantee.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/clinware/clinic-booking/internal/db"
)

type simConfig struct {
	APIBaseURL string
	Workers    int
	Rounds     int // distinct target slots; all workers race for each one
}

type fixtures struct {
	DoctorID   uuid.UUID
	TypeID     uuid.UUID
	Duration   int
	StaffID    uuid.UUID
	PatientIDs []uuid.UUID
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := simConfig{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
		Workers:    getInt("SIM_WORKERS", 20),
		Rounds:     getInt("SIM_ROUNDS", 5),
	}

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

	fx, err := loadFixtures(ctx, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("load fixtures")
	}
	log.Info().
		Str("doctor_id", fx.DoctorID.String()).
		Str("type_id", fx.TypeID.String()).
		Int("patients", len(fx.PatientIDs)).
		Msg("fixtures loaded")

	client := &http.Client{Timeout: 10 * time.Second}

	// Race targets start tomorrow at 09:00 so they fall inside business
	// hours and never collide with existing data.
	now := time.Now()
	base := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, now.Location()).AddDate(0, 0, 1)

	var created, conflicts, other atomic.Int64

	for round := 0; round < cfg.Rounds; round++ {
		target := base.Add(time.Duration(round*fx.Duration) * time.Minute)

		var wg sync.WaitGroup
		for w := 0; w < cfg.Workers; w++ {
			wg.Add(1)
			patient := fx.PatientIDs[(round*cfg.Workers+w)%len(fx.PatientIDs)]
			go func() {
				defer wg.Done()
				switch book(client, cfg.APIBaseURL, fx, patient, target) {
				case http.StatusCreated:
					created.Add(1)
				case http.StatusConflict:
					conflicts.Add(1)
				default:
					other.Add(1)
				}
			}()
		}
		wg.Wait()
	}

	fmt.Printf("rounds=%d workers=%d created=%d conflicts=%d errors=%d\n",
		cfg.Rounds, cfg.Workers, created.Load(), conflicts.Load(), other.Load())

	if int(created.Load()) != cfg.Rounds {
		log.Error().
			Int64("created", created.Load()).
			Int("expected", cfg.Rounds).
			Msg("double booking detected: created != rounds")
		os.Exit(1)
	}
	log.Info().Msg("exactly one booking won every round")
}

func book(client *http.Client, baseURL string, fx *fixtures, patientID uuid.UUID, start time.Time) int {
	body, _ := json.Marshal(map[string]any{
		"patient_id":          patientID.String(),
		"doctor_id":           fx.DoctorID.String(),
		"appointment_type_id": fx.TypeID.String(),
		"created_by":          fx.StaffID.String(),
		"start":               start.Format(time.RFC3339),
	})

	resp, err := client.Post(baseURL+"/appointments", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("booking request failed")
		return 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func loadFixtures(ctx context.Context, pool *pgxpool.Pool) (*fixtures, error) {
	fx := &fixtures{}

	err := pool.QueryRow(ctx, `
		SELECT d.id, t.id, t.duration_minutes
		FROM doctors d
		JOIN doctor_capabilities c ON c.doctor_id = d.id
		JOIN appointment_types t ON t.id = c.appointment_type_id
		WHERE d.active
		LIMIT 1
	`).Scan(&fx.DoctorID, &fx.TypeID, &fx.Duration)
	if err != nil {
		return nil, fmt.Errorf("pick doctor and type: %w", err)
	}

	err = pool.QueryRow(ctx, `SELECT id FROM staff WHERE active LIMIT 1`).Scan(&fx.StaffID)
	if err != nil {
		return nil, fmt.Errorf("pick staff member: %w", err)
	}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT 100`)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		fx.PatientIDs = append(fx.PatientIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(fx.PatientIDs) == 0 {
		return nil, fmt.Errorf("no patients found, run cmd/seed first")
	}

	return fx, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
