package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reserver/api/routes"
	"reserver/internal/approvals"
	"reserver/internal/bus"
	"reserver/internal/notifications"
	"reserver/internal/reservations"
	"reserver/internal/resources"
	"reserver/internal/scheduler"
	"reserver/internal/shared/config"
	"reserver/internal/shared/database"
	"reserver/internal/shared/database/migrations"
	"reserver/internal/sockets"
	"reserver/internal/waitlist"
	"reserver/internal/webhooks"
	"reserver/pkg/cache"
	"reserver/pkg/clock"
	"reserver/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	// Smart environment loading
	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()

	gin.SetMode(cfg.GinMode)

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("failed to connect:", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.Run(db.GetPostgreSQL()); err != nil {
		appLogger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	clk := clock.New()
	cacheService := cache.NewService(db.GetRedisClient())

	// In-process event bus. Every side effect of a booking flows through
	// here: notifications, socket pushes, webhook deliveries and the
	// optional Kafka mirror all subscribe below.
	events := bus.New(clk, appLogger)
	defer events.Close()

	// Repositories
	resourceRepo := resources.NewRepository(db.GetPostgreSQL())
	reservationRepo := reservations.NewRepository(db.GetPostgreSQL())
	approvalRepo := approvals.NewRepository(db.GetPostgreSQL())
	waitlistRepo := waitlist.NewRepository(db.GetPostgreSQL())
	notificationRepo := notifications.NewRepository(db.GetPostgreSQL())
	webhookRepo := webhooks.NewRepository(db.GetPostgreSQL())

	// Core services. The allocator, waitlist engine and approval
	// coordinator reference each other, so the reservation service is
	// built first and the other two are wired in afterwards.
	notificationService := notifications.NewService(notificationRepo, appLogger)
	hub := sockets.NewHub(clk, appLogger)

	resourceService := resources.NewService(resourceRepo, cacheService, events, clk, appLogger)
	reservationService := reservations.NewService(
		reservationRepo,
		resourceService,
		cacheService,
		events,
		notificationService,
		hub,
		clk,
		appLogger,
		cfg,
	)
	approvalService := approvals.NewService(approvalRepo, reservationService, notificationService, hub, clk, appLogger)
	waitlistService := waitlist.NewService(
		waitlistRepo,
		reservationService,
		resourceService,
		cacheService,
		events,
		notificationService,
		hub,
		clk,
		appLogger,
		cfg,
	)
	reservationService.SetApprovalService(approvalService)
	reservationService.SetWaitlistService(waitlistService)

	// Webhook delivery pipeline
	dispatcher := webhooks.NewDispatcher(webhookRepo, clk, appLogger, cfg)
	dispatcher.Start()
	defer dispatcher.Stop()
	webhookService := webhooks.NewService(webhookRepo, dispatcher, clk, appLogger)

	// Event fan-out
	events.Subscribe("notifications", bus.DefaultBuffer, notifications.NewSubscriber(notificationService, appLogger).HandleEvent)
	events.Subscribe("sockets", bus.DefaultBuffer, sockets.NewSubscriber(hub).HandleEvent)
	events.Subscribe("webhooks", bus.DefaultBuffer, dispatcher.HandleEvent)

	if cfg.Kafka.Enabled {
		mirror, err := bus.NewKafkaMirror(cfg.Kafka, appLogger)
		if err != nil {
			appLogger.Error("Kafka mirror disabled", slog.Any("error", err))
		} else {
			events.Subscribe("kafka", bus.DefaultBuffer, mirror.HandleEvent)
			defer mirror.Close()
			appLogger.Info("Kafka event mirror started",
				slog.String("topic", cfg.Kafka.Topic),
				slog.Any("brokers", cfg.Kafka.Brokers),
			)
		}
	}

	// Lifecycle scheduler: expiry, offer lapses, auto-resets, reminders
	lifecycle := scheduler.New(reservationService, waitlistService, resourceService, clk, appLogger, cfg)
	lifecycle.Start()
	defer lifecycle.Stop()

	deps := routes.Deps{
		Resources:     resourceService,
		Reservations:  reservationService,
		Approvals:     approvalService,
		Waitlist:      waitlistService,
		Notifications: notificationService,
		Webhooks:      webhookService,
		Hub:           hub,
		Log:           appLogger,
	}

	router := setupRouter(cfg, db, deps)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("🚀 Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("api_status", fmt.Sprintf("http://localhost:%s%s/status", cfg.Port, cfg.GetAPIBasePath())),
			slog.String("version", cfg.APIVersion),
			slog.Bool("redis_cache", (db.Redis != nil)),
			slog.Bool("kafka_mirror", cfg.Kafka.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

func setupRouter(cfg *config.Config, db *database.DB, deps routes.Deps) *gin.Engine {
	engine := gin.New()
	appLogger := logger.GetDefault()

	// Built-in middleware: logs requests + recovers from panics
	engine.Use(RequestLoggerMiddleware(appLogger), gin.Recovery())

	// CORS configuration
	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true // allow every origin dynamically
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	appRouter := routes.NewRouter(cfg, db, deps)
	appRouter.SetupRoutes(engine)

	return engine
}

func RequestLoggerMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		l.LogHTTPRequest(c, duration)
	}
}
