package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"asistencia/internal/domain/access"
	"asistencia/internal/domain/audit"
	"asistencia/internal/domain/auth"
	"asistencia/internal/domain/core"
	"asistencia/internal/domain/corrections"
	"asistencia/internal/domain/ledger"
	"asistencia/internal/domain/receipts"
	appmw "asistencia/internal/middleware"
	"asistencia/internal/platform/config"
	"asistencia/internal/platform/db"
	"asistencia/internal/platform/email"
	"asistencia/internal/platform/jobs"
	"asistencia/internal/platform/metrics"
	adminhandler "asistencia/internal/transport/http/handlers/admin"
	attendancehandler "asistencia/internal/transport/http/handlers/attendance"
	authhandler "asistencia/internal/transport/http/handlers/auth"
	corehandler "asistencia/internal/transport/http/handlers/core"
	cronhandler "asistencia/internal/transport/http/handlers/cron"
	dtaccesshandler "asistencia/internal/transport/http/handlers/dtaccess"
	"asistencia/internal/transport/http/middleware"
)

type App struct {
	Config config.Config
	Pool   *pgxpool.Pool
	Router http.Handler
	Jobs   *jobs.Service
}

// New connects, migrates, seeds, and wires the full router. Callers own the
// pool via Close.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, "migrations"); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.New()
	}

	coreStore := core.NewStore(pool)
	auditSvc := audit.New(pool)
	authSvc := auth.NewService(auth.NewStore(pool))

	ledgerStore := ledger.NewStore(pool)
	receiptStore := receipts.NewStore(pool)
	renderer := &receipts.Renderer{Dir: cfg.ReceiptDir}
	mailer := email.New(cfg)
	receiptSvc := receipts.NewService(receiptStore, mailer, renderer, coreStore, ledgerStore, cfg.EmailFrom, cfg.ReceiptMaxTries, cfg.ReceiptCooldown)

	ledgerSvc := ledger.NewService(ledgerStore, receiptSvc)
	verifier := ledger.NewVerifier(ledgerStore)
	correctionSvc := corrections.NewService(corrections.NewStore(pool), ledgerSvc)
	accessSvc := access.NewService(cfg.DTAccessSecret, cfg.BaseURL, ledgerStore)

	jobSvc := jobs.New(pool, cfg, receiptSvc, collector)

	router := chi.NewRouter()
	router.Use(appmw.RequestID)
	router.Use(middleware.ClientIP)
	router.Use(middleware.Logger(collector))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		authHandler := authhandler.NewHandler(authSvc, cfg.JWTSecret, cfg.BaseURL, cfg.EmailFrom, mailer)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthRateLimit(max(cfg.RateLimitPerMin/4, 1), time.Minute))
			authHandler.RegisterRoutes(r)
		})

		corehandler.NewHandler(coreStore).RegisterRoutes(r)
		attendancehandler.NewHandler(ledgerSvc, verifier, correctionSvc, auditSvc, collector).RegisterRoutes(r)
		dtaccesshandler.NewHandler(accessSvc, auditSvc).RegisterRoutes(r)
		adminhandler.NewHandler(receiptSvc, auditSvc, collector).RegisterRoutes(r)
		cronhandler.NewHandler(receiptSvc, collector, cfg.CronSecret, cfg.SweepBatch).RegisterRoutes(r)
	})

	return &App{Config: cfg, Pool: pool, Router: router, Jobs: jobSvc}, nil
}

func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

func Run() {
	cfg := config.Load()

	ctx := context.Background()
	app, err := New(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer app.Close()

	app.Jobs.Start(ctx)

	log.Printf("attendance server listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, app.Router); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
