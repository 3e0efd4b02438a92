package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cruisemall/affiliate/internal/config"
	"github.com/cruisemall/affiliate/internal/database"
	"github.com/cruisemall/affiliate/internal/handlers"
	"github.com/cruisemall/affiliate/internal/jobs"
	"github.com/cruisemall/affiliate/internal/logging"
	"github.com/cruisemall/affiliate/internal/middleware"
	"github.com/cruisemall/affiliate/internal/notify"
	"github.com/cruisemall/affiliate/internal/queue"
	"github.com/cruisemall/affiliate/internal/routes"
	"github.com/cruisemall/affiliate/internal/security"
	"github.com/cruisemall/affiliate/internal/security/audit"
	"github.com/cruisemall/affiliate/internal/services/adjustment"
	"github.com/cruisemall/affiliate/internal/services/ledger"
	"github.com/cruisemall/affiliate/internal/services/profile"
	"github.com/cruisemall/affiliate/internal/services/refund"
	"github.com/cruisemall/affiliate/internal/services/sale"
	"github.com/cruisemall/affiliate/internal/services/settlement"
)

func main() {
	// Initialize configuration
	cfg := config.LoadConfig()
	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	db, err := database.InitDB(cfg.Database, cfg.IsProduction())
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	runner := database.NewTxRunner(db, database.RetryConfig{
		MaxRetries: cfg.Database.RetryAttempts,
		BaseDelay:  cfg.Database.RetryBaseDelay,
		MaxDelay:   cfg.Database.RetryMaxDelay,
	})

	// Initialize Redis-backed notification queue
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := queue.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	jobQueue := queue.NewRedisClient(redisClient)
	notifier := notify.NewQueueNotifier(jobQueue, cfg.Redis.NotificationQueue, cfg.Redis.NotificationMaxRetries)

	notificationWorker := queue.NewWorker(
		jobQueue,
		cfg.Redis.NotificationQueue,
		notify.Handler(notify.LogDelivery(logger)),
		cfg.Redis.NotificationWorkers,
		logger,
	)
	notificationWorker.Start(ctx)

	// Initialize services
	policy := security.NewRolePolicy()
	auditLogger := audit.NewLogger(db)
	ledgerService := ledger.NewLedgerService(runner, logger)
	profileService := profile.NewProfileService(runner, policy, auditLogger, logger)
	saleService := sale.NewSaleService(runner, ledgerService, cfg.Commission, logger)
	adjustmentService := adjustment.NewAdjustmentService(runner, ledgerService, policy, auditLogger, notifier, logger)
	refundService := refund.NewRefundService(runner, ledgerService, policy, auditLogger, notifier, logger)
	settlementService := settlement.NewSettlementService(runner, ledgerService, policy, auditLogger, logger)

	// Schedule recurring jobs
	scheduler, err := jobs.ScheduleRecurringJobs(cfg.Settlement, jobs.NewSettlementJob(settlementService, logger), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to schedule jobs")
	}
	scheduler.StartAsync()

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	rateLimiter := middleware.NewRateLimiter(
		cfg.RateLimit.IPPerSecond,
		cfg.RateLimit.ActorWritesPerMinute,
		cfg.RateLimit.IPBurst,
		cfg.RateLimit.ActorBurst,
	)

	routes.SetupRoutes(router, routes.Handlers{
		Profiles:    handlers.NewProfileHandler(profileService, ledgerService, logger),
		Sales:       handlers.NewSaleHandler(saleService, ledgerService, logger),
		Adjustments: handlers.NewAdjustmentHandler(adjustmentService, logger),
		Refunds:     handlers.NewRefundHandler(refundService, logger),
		Settlements: handlers.NewSettlementHandler(settlementService, ledgerService, logger),
	}, cfg.JWT.Secret, rateLimiter)

	// Start server
	srv := startServer(router, cfg.Server, logger)

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	scheduler.Stop()
	rateLimiter.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	cancel()
	notificationWorker.Stop()
	if err := jobQueue.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close Redis client")
	}

	logger.Info("Server exiting")
}

// startServer starts the HTTP server
func startServer(router *gin.Engine, cfg config.ServerConfig, logger logging.Logger) *http.Server {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	logger.WithField("port", cfg.Port).Info("Server started")
	return srv
}
