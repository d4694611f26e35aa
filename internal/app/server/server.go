package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"wfm/internal/delivery"
	"wfm/internal/domain/attendance"
	"wfm/internal/domain/audit"
	"wfm/internal/domain/payroll"
	"wfm/internal/domain/wage"
	"wfm/internal/export"
	"wfm/internal/platform/config"
	"wfm/internal/platform/db"
	"wfm/internal/platform/jobs"
	"wfm/internal/platform/logging"
	"wfm/internal/platform/metrics"
	"wfm/internal/transport/http/api"
	audithandler "wfm/internal/transport/http/handlers/audit"
	payrollhandler "wfm/internal/transport/http/handlers/payroll"
	wagehandler "wfm/internal/transport/http/handlers/wage"
	"wfm/internal/transport/http/middleware"
)

const requestsPerMinute = 240

// App holds the wired services. The HTTP server and the operator CLI share it.
type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Wages   *wage.Service
	Payroll *payroll.Service
	Audit   *audit.Service
	Files   *delivery.LocalStorage
	Jobs    *jobs.Service
	Metrics *metrics.Collector
}

// Build connects to the database, applies migrations when enabled and wires
// every service. Callers close App.DB.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sealer, err := delivery.NewSealer(cfg.DataEncryptionKey)
	if err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	loc := cfg.Location()
	wageStore := wage.NewStore(pool, loc)
	wages := wage.NewService(wageStore)

	registry := payroll.NewRegistry()
	export.RegisterDefaults(registry)

	files := delivery.NewLocalStorage(cfg.ExportStorageDir, sealer)
	auditSvc := audit.New(pool)
	collector := metrics.New()

	payrollSvc := payroll.NewService(payroll.NewStore(pool, loc), attendance.NewStore(pool, loc), wageStore, registry, files, cfg.ExportWorkers)
	payrollSvc.Audit = auditSvc
	if cfg.MetricsEnabled {
		payrollSvc.Metrics = collector
	}

	return &App{
		Config:  cfg,
		DB:      pool,
		Wages:   wages,
		Payroll: payrollSvc,
		Audit:   auditSvc,
		Files:   files,
		Jobs:    jobs.New(jobs.NewStore(pool), wages, cfg),
		Metrics: collector,
	}, nil
}

func (a *App) Router() http.Handler {
	cfg := a.Config
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	if len(cfg.CORSAllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Idempotency-Key", "X-Request-ID", middleware.ActorHeader},
			ExposedHeaders:   []string{"X-Request-ID", "X-Total-Count", "Content-Disposition"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	if cfg.MetricsEnabled {
		router.Use(middleware.Metrics(a.Metrics))
	}
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	if cfg.MetricsEnabled {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, a.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(requestsPerMinute, time.Minute))
		r.Use(middleware.ExpensiveMutationRateLimit(requestsPerMinute/8, time.Minute))

		payrollhandler.NewHandler(a.Payroll, a.Files, middleware.NewIdempotencyStore(a.DB), a.Audit, cfg.Location()).RegisterRoutes(r)
		wagehandler.NewHandler(a.Wages, a.Jobs, a.Audit).RegisterRoutes(r)
		audithandler.NewHandler(a.Audit).RegisterRoutes(r)
	})
	return router
}

func Run() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := Build(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer app.DB.Close()

	app.Jobs.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown failed", "err", err)
		}
	}()

	slog.Info("wfm server listening", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}
