package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/clinware/clinic-booking/internal/api"
	"github.com/clinware/clinic-booking/internal/booking"
	"github.com/clinware/clinic-booking/internal/clinic"
	"github.com/clinware/clinic-booking/internal/config"
	"github.com/clinware/clinic-booking/internal/db"
	redisclient "github.com/clinware/clinic-booking/internal/redis"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	store := clinic.NewPgStore(pgPool)

	// Overlay clinic_settings once; no live re-reads after this.
	settingsCtx, cancelSettings := context.WithTimeout(rootCtx, 5*time.Second)
	settings, err := store.GetSettings(settingsCtx)
	cancelSettings()
	if err != nil {
		log.Fatal().Err(err).Msg("load clinic settings")
	}
	cfg.Clinic.ApplySettings(settings)
	log.Info().
		Str("clinic_name", cfg.Clinic.ClinicName).
		Dur("slot_granularity", cfg.Clinic.SlotGranularity).
		Dur("appointment_buffer", cfg.Clinic.AppointmentBuffer).
		Dur("cancellation_notice", cfg.Clinic.CancellationNotice).
		Bool("cancellation_strict", cfg.Clinic.CancellationStrict).
		Msg("clinic settings applied")

	locker := redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL)
	svc := booking.NewService(store, locker, cfg)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		Store:   store,
		PgPool:  pgPool,
		Redis:   rdb,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
