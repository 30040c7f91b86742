package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/certforge/certforge/internal/config"
	"github.com/certforge/certforge/internal/handler"
	"github.com/certforge/certforge/internal/infra/postgresql"
	"github.com/certforge/certforge/internal/infra/postgresql/migrations"
	infraredis "github.com/certforge/certforge/internal/infra/redis"
	"github.com/certforge/certforge/internal/layout"
	"github.com/certforge/certforge/internal/mailer"
	"github.com/certforge/certforge/internal/observability"
	"github.com/certforge/certforge/internal/queue"
	"github.com/certforge/certforge/internal/render"
	"github.com/certforge/certforge/internal/repository"
	"github.com/certforge/certforge/internal/service"
	"github.com/certforge/certforge/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	repo := repository.NewGormCertificateRepo(db)

	renderer, err := render.NewPDFRenderer(render.Config{
		TemplatePath: cfg.TemplatePath,
		NameFontPath: cfg.NameFontPath,
		NumberPrefix: cfg.NumberPrefix,
		DPI:          cfg.TemplateDPI,
		Box: layout.Box{
			X:     cfg.NameBoxX,
			Y:     cfg.NameBoxY,
			Width: cfg.NameBoxWidth,
		},
		Fonts: layout.FontRange{
			Default: cfg.DefaultFontSize,
			Min:     cfg.MinFontSize,
		},
	}, logger)
	if err != nil {
		logger.Fatal("renderer initialization failed", zap.Error(err))
	}

	sender, err := mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		logger.Fatal("smtp sender initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, 1, logger)

	dispatcher, err := service.NewDispatcher(repo, renderer, sender, limiter, metrics, logger, service.DispatcherConfig{
		ArtifactDir: cfg.ArtifactDir,
		SendDelay:   time.Duration(cfg.SendDelayMillis) * time.Millisecond,
	})
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}

	supervisor, err := service.NewSupervisor(consumer, dispatcher, logger, cfg.DispatcherConcurrency)
	if err != nil {
		logger.Fatal("supervisor initialization failed", zap.Error(err))
	}

	certificateService, err := service.NewCertificateService(repo, publisher, renderer, metrics, logger)
	if err != nil {
		logger.Fatal("certificate service initialization failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	supervisorDone := make(chan error, 1)
	go func() {
		supervisorDone <- supervisor.Start(ctx)
	}()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", metrics.Handler())
	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterCertificateRoutes(app, certificateService, cfg.TemplatePath); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	logger.Info("certforge api started", zap.Int("port", cfg.APIPort))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	supervisorStopped := false
	select {
	case sig := <-stop:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("http server stopped", zap.Error(err))
	case err := <-supervisorDone:
		supervisorStopped = true
		if err != nil {
			logger.Error("dispatch supervisor stopped", zap.Error(err))
		}
	}

	cancel()

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	if !supervisorStopped {
		select {
		case <-supervisorDone:
		case <-time.After(shutdownTimeout):
			logger.Warn("dispatch supervisor did not stop in time")
		}
	}

	logger.Info("certforge api stopped")
}
