package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/hospital-api/internal/config"
	"github.com/jwalitptl/hospital-api/internal/email"
	"github.com/jwalitptl/hospital-api/internal/handler/health"
	promHandler "github.com/jwalitptl/hospital-api/internal/handler/prometheus"
	"github.com/jwalitptl/hospital-api/internal/repository/postgres"
	auditService "github.com/jwalitptl/hospital-api/internal/service/audit"
	"github.com/jwalitptl/hospital-api/internal/service/notification"
	triageService "github.com/jwalitptl/hospital-api/internal/service/triage"
	internalWorker "github.com/jwalitptl/hospital-api/internal/worker"
	"github.com/jwalitptl/hospital-api/pkg/clock"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/messaging/redis"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
	"github.com/jwalitptl/hospital-api/pkg/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	healthPort := flag.Int("health-port", 8081, "port for liveness, readiness and metrics")
	flag.Parse()

	// Load config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger
	appLogger := logger.NewLogger(cfg.Logging.LoggerConfig())
	log.Logger = appLogger.ZL

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis broker
	broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &appLogger.ZL)
	if err != nil {
		appLogger.Fatal(err, "Failed to create Redis broker")
	}
	defer broker.Close()

	// Initialize repositories
	baseRepo := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)
	triageRepo := postgres.NewTriageRepository(baseRepo)
	auditRepo := postgres.NewAuditRepository(baseRepo)

	workerMetrics := metrics.NewMetrics("hospital", "worker")
	clk := clock.System()

	auditSvc := auditService.NewService(auditRepo, clk, cfg.Audit.Enabled)
	triageSvc := triageService.NewService(
		triageRepo,
		notification.NewService(email.NewLogService(appLogger), nil, appLogger),
		auditSvc,
		workerMetrics,
		clk,
		appLogger,
	)

	processor := worker.NewOutboxProcessor(
		outboxRepo,
		broker,
		cfg.Outbox.ToWorkerConfig(),
		appLogger.WithFields(map[string]interface{}{"component": "outbox_relay"}),
		workerMetrics,
	)
	monitor := internalWorker.NewReassessmentMonitor(
		triageSvc,
		outboxRepo,
		cfg.Triage.ReassessmentPollInterval,
		cfg.Triage.AlertDedupTTL,
		workerMetrics,
		clk,
		appLogger.WithFields(map[string]interface{}{"component": "reassessment_monitor"}),
	)
	retention := internalWorker.NewRetentionWorker(
		auditRepo,
		outboxRepo,
		cfg.Audit.RetentionDays,
		cfg.Audit.CleanupInterval,
		clk,
		appLogger.WithFields(map[string]interface{}{"component": "retention"}),
	).WithOutboxRetention(cfg.Outbox.RetentionDays)

	// Setup health check endpoints
	srv := setupHealthCheck(*healthPort, map[string]health.Pinger{
		"database": db,
		"redis":    broker,
	}, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLogger.Info("Shutting down...")
		cancel()
		if err := srv.Shutdown(context.Background()); err != nil {
			appLogger.Error(err, "Health check server shutdown failed")
		}
	}()

	var wg sync.WaitGroup
	for _, run := range []func(context.Context){processor.Start, monitor.Start, retention.Start} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}
	wg.Wait()

	appLogger.Info("Worker stopped")
}

func setupHealthCheck(port int, checks map[string]health.Pinger, appLogger *logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	metricsH := promHandler.New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	health.NewHandler(checks, metricsH.Handler()).RegisterRoutes(&engine.RouterGroup)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(err, "Health check server failed")
		}
	}()
	return srv
}
