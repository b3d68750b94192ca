package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/hospital-api/internal/config"
	"github.com/jwalitptl/hospital-api/internal/email"
	auditHandler "github.com/jwalitptl/hospital-api/internal/handler/audit"
	departmentHandler "github.com/jwalitptl/hospital-api/internal/handler/department"
	"github.com/jwalitptl/hospital-api/internal/handler/health"
	promHandler "github.com/jwalitptl/hospital-api/internal/handler/prometheus"
	queueHandler "github.com/jwalitptl/hospital-api/internal/handler/queue"
	triageHandler "github.com/jwalitptl/hospital-api/internal/handler/triage"
	"github.com/jwalitptl/hospital-api/internal/middleware"
	"github.com/jwalitptl/hospital-api/internal/repository/postgres"
	"github.com/jwalitptl/hospital-api/internal/router"
	auditService "github.com/jwalitptl/hospital-api/internal/service/audit"
	"github.com/jwalitptl/hospital-api/internal/service/notification"
	queueService "github.com/jwalitptl/hospital-api/internal/service/queue"
	triageService "github.com/jwalitptl/hospital-api/internal/service/triage"
	"github.com/jwalitptl/hospital-api/pkg/clock"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/messaging/redis"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
	"github.com/jwalitptl/hospital-api/pkg/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	embeddedRelay := flag.Bool("relay", true, "run the outbox relay in-process")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(cfg.Logging.LoggerConfig())
	log.Logger = appLogger.ZL

	location, err := cfg.Queue.Location()
	if err != nil {
		appLogger.Fatal(err, "invalid queue timezone")
	}

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis message broker
	broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &appLogger.ZL)
	if err != nil {
		appLogger.Fatal(err, "failed to connect to Redis")
	}
	defer broker.Close()

	// Initialize repositories
	baseRepo := postgres.NewBaseRepository(db)
	triageRepo := postgres.NewTriageRepository(baseRepo)
	queueRepo := postgres.NewQueueRepository(baseRepo)
	departmentRepo := postgres.NewDepartmentRepository(baseRepo)
	auditRepo := postgres.NewAuditRepository(baseRepo)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)

	appMetrics := metrics.NewMetrics("hospital", "api")
	clk := clock.System()

	// Initialize services
	auditSvc := auditService.NewService(auditRepo, clk, cfg.Audit.Enabled)
	notifier := notification.NewService(newEmailService(cfg.Notification, appLogger), cfg.Notification.TriageDeskEmail, appLogger)

	triageSvc := triageService.NewService(triageRepo, notifier, auditSvc, appMetrics, clk, appLogger)
	averages := queueService.NewHistoricalAverage(
		queueRepo,
		cfg.Queue.HistoryWindow,
		cfg.Queue.AverageConsultationMinutes,
		cfg.Queue.AverageCacheTTL,
	)
	queueSvc := queueService.NewService(
		queueRepo,
		triageRepo,
		departmentRepo,
		averages,
		auditSvc,
		appMetrics,
		clk,
		appLogger,
		queueService.Config{
			MaxNumberAttempts: cfg.Queue.MaxNumberAttempts,
			Location:          location,
		},
	)
	triageSvc.SetQueueSync(queueSvc)

	// Initialize handlers
	metricsH := promHandler.New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	healthH := health.NewHandler(map[string]health.Pinger{
		"database": db,
		"redis":    broker,
	}, metricsH.Handler())

	r := router.NewRouter(
		healthH,
		triageHandler.NewHandler(triageSvc),
		queueHandler.NewHandler(queueSvc),
		departmentHandler.NewHandler(queueSvc),
		auditHandler.NewHandler(auditSvc),
		metricsH,
		router.RouterConfig{
			Mode:             cfg.Server.Mode,
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			RequestTimeout:   cfg.Server.RequestTimeout,
			MaxBodyBytes:     cfg.Server.MaxBodyBytes,
			CORSConfig: middleware.CORSConfig{
				AllowOrigins: cfg.CORS.AllowedOrigins,
				AllowMethods: cfg.CORS.AllowedMethods,
				AllowHeaders: cfg.CORS.AllowedHeaders,
			},
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Claimed events are leased, so this relay can run beside cmd/worker.
	if *embeddedRelay {
		processor := worker.NewOutboxProcessor(
			outboxRepo,
			broker,
			cfg.Outbox.ToWorkerConfig(),
			appLogger.WithFields(map[string]interface{}{"component": "outbox_relay"}),
			appMetrics,
		)
		go processor.Start(ctx)
	}

	// Start server
	go func() {
		appLogger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(err, "failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "server forced to shutdown")
		return
	}

	appLogger.Info("server exited properly")
}

// newEmailService sends through SMTP when notifications are enabled and logs
// the messages otherwise.
func newEmailService(cfg config.NotificationConfig, log *logger.Logger) email.Service {
	if !cfg.Enabled || cfg.SMTPHost == "" {
		return email.NewLogService(log)
	}
	return email.NewSMTPService(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	})
}
