package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"sms-retry-scheduler/internal/adminauth"
	"sms-retry-scheduler/internal/api"
	"sms-retry-scheduler/internal/config"
	"sms-retry-scheduler/internal/notify"
	"sms-retry-scheduler/internal/observability"
	"sms-retry-scheduler/internal/persistence"
	"sms-retry-scheduler/internal/rate"
	"sms-retry-scheduler/internal/scheduler"
	"sms-retry-scheduler/internal/sendport/mock"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		logger = observability.NewDevelopmentLogger()
	}
	defer logger.Sync()

	logger.Info("starting sms retry scheduler", zap.String("version", "1.0.0"))

	shutdownOtel, err := observability.SetupOpenTelemetry("sms-retry-scheduler", logger)
	if err != nil {
		logger.Warn("failed to set up opentelemetry", zap.Error(err))
	} else {
		defer shutdownOtel()
	}

	ctx := context.Background()

	store, closeStore := buildPersistence(ctx, cfg, logger)
	defer closeStore()

	redisClient, err := persistence.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var terminalNotifier *notify.Notifier
	if cfg.NATSURL != "" {
		terminalNotifier, err = notify.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Warn("failed to connect to nats, continuing without terminal notifications", zap.Error(err))
			terminalNotifier = nil
		} else {
			defer terminalNotifier.Close()
		}
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	provider := mock.NewProvider(0.3, logger)
	limiter := rate.NewLimiter(redisClient, logger, cfg.RateRPS, cfg.RateBurst)
	auth := adminauth.New(cfg.AdminKeyHash)

	core := scheduler.New(scheduler.Config{TickInterval: cfg.TickInterval}, provider.Send, store, nil, logger, metrics)
	if terminalNotifier != nil {
		core.SetNotifier(terminalNotifier)
	}
	if err := core.Start(ctx); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	handlers := api.NewHandlers(logger, core, cfg)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			logger.Error("fiber error", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		},
	})
	api.SetupRoutes(app, logger, metrics, handlers, auth, limiter)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info("admin façade started", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("failed to shut down fiber gracefully", zap.Error(err))
	}
	core.Stop()

	logger.Info("sms retry scheduler stopped")
}

// buildPersistence picks the scheduler's PersistencePort backend from
// config: S3 in production, an in-memory store for local development.
// Returns a no-op close func for the memory backend since it owns no
// external connection.
func buildPersistence(ctx context.Context, cfg *config.Config, logger *zap.Logger) (scheduler.PersistencePort, func()) {
	if cfg.PersistenceBackend == "memory" {
		logger.Warn("using in-memory persistence backend, state does not survive a restart")
		return persistence.NewMemoryStore(), func() {}
	}

	store, err := persistence.NewS3Store(ctx, persistence.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.AWSRegion,
		StatePrefix:     cfg.StatePrefix,
		SuccessPrefix:   cfg.SuccessPrefix,
		FailedPrefix:    cfg.FailedPrefix,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretKey,
		EndpointURL:     cfg.S3EndpointURL,
	}, logger)
	if err != nil {
		log.Fatalf("failed to set up s3 persistence: %v", err)
	}
	return store, func() {}
}
