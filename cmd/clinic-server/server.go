package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/clinic/internal/config"
	"github.com/ehr/clinic/internal/domain/audit"
	"github.com/ehr/clinic/internal/domain/clinician"
	"github.com/ehr/clinic/internal/domain/inventory"
	"github.com/ehr/clinic/internal/domain/order"
	"github.com/ehr/clinic/internal/domain/patient"
	"github.com/ehr/clinic/internal/platform/auth"
	"github.com/ehr/clinic/internal/platform/db"
	"github.com/ehr/clinic/internal/platform/middleware"
	"github.com/ehr/clinic/internal/platform/telemetry"
)

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	ctx := context.Background()
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		ServiceName:    "clinic-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       !cfg.IsProduction(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Tracer:   telemetry.NewQueryTracer(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	metrics := telemetry.NewMetrics()

	// Audit sinks
	auditStore := audit.OpenSQLStore(pool)
	defer auditStore.Close()
	sinks := []audit.Sink{auditStore}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		defer publisher.Close()
		sinks = append(sinks, publisher)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaAuditTopic).Msg("publishing audit records to kafka")
	}
	recorder := audit.NewAsyncRecorder(audit.RecorderConfig{
		QueueSize:     cfg.AuditQueueSize,
		Workers:       cfg.AuditWorkers,
		WriteRetries:  cfg.AuditWriteRetries,
		DefaultTenant: cfg.DefaultTenant,
	}, logger, metrics, sinks...)

	e := newEcho(cfg, logger, metrics, pool)
	api := e.Group("/api/v1")
	registerDomains(api, cfg, logger, metrics, pool, recorder, auditStore)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := recorder.Close(sctx); err != nil {
		logger.Warn().Err(err).Msg("audit queue not fully drained")
	}
	if err := shutdownTracing(sctx); err != nil {
		logger.Warn().Err(err).Msg("tracing shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newEcho builds the server with the global middleware chain and the
// unauthenticated operational endpoints.
func newEcho(cfg *config.Config, logger zerolog.Logger, metrics *telemetry.Metrics, pool *pgxpool.Pool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(logger)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", metrics.Handler())

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics(metrics))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))
	return e
}

func registerDomains(api *echo.Group, cfg *config.Config, logger zerolog.Logger, metrics *telemetry.Metrics,
	pool *pgxpool.Pool, recorder audit.Recorder, auditStore *audit.SQLStore) {
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.JWTSecret),
	}
	if cfg.IsDev() {
		api.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		api.Use(auth.JWTMiddleware(jwtCfg))
	}
	api.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))

	patientSvc := patient.NewService(patient.NewPatientRepo(pool), recorder)
	patient.NewHandler(patientSvc).RegisterRoutes(api)

	clinicianSvc := clinician.NewService(clinician.NewClinicianRepo(pool), recorder)
	clinician.NewHandler(clinicianSvc).RegisterRoutes(api)

	txRunner := db.NewPoolTxRunner(pool, cfg.LockTimeout)
	itemRepo := inventory.NewItemRepo(pool)
	ledger := inventory.NewLedger(itemRepo, cfg.LowStockThreshold)
	inventorySvc := inventory.NewService(itemRepo, txRunner, recorder, cfg.LowStockThreshold, cfg.ExpiryWindowDays)
	inventory.NewHandler(inventorySvc, ledger).RegisterRoutes(api)

	orderRepo := order.NewOrderRepo(pool)
	engine := order.NewEngine(orderRepo, ledger, txRunner, recorder, metrics, logger,
		order.RetryConfig{
			MaxAttempts:     cfg.LockRetryMaxAttempts,
			InitialInterval: cfg.LockRetryInitialInterval,
		})
	order.NewHandler(order.NewService(orderRepo, engine, recorder)).RegisterRoutes(api)

	audit.NewHandler(audit.NewService(auditStore, cfg.DefaultTenant)).RegisterRoutes(api)
}
