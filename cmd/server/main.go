package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/roadwatch/backend/internal/analytics"
	"github.com/roadwatch/backend/internal/config"
	"github.com/roadwatch/backend/internal/delivery/http"
	applog "github.com/roadwatch/backend/internal/logger"
	"github.com/roadwatch/backend/internal/metrics"
	"github.com/roadwatch/backend/internal/repository/postgres"
	"github.com/roadwatch/backend/internal/service"
	"github.com/roadwatch/backend/internal/vega"
)

func main() {
	// Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := applog.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	// Database connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.NewConnection(ctx, cfg.Database)
	cancel()
	if err != nil {
		zapLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer pool.Close()
	zapLogger.Info("Connected to PostgreSQL", zap.Int32("max_conns", cfg.Database.MaxConns))

	if cfg.Database.RunMigrations {
		if err := postgres.RunMigrations(pool, zapLogger); err != nil {
			zapLogger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	templates, err := vega.NewStore()
	if err != nil {
		zapLogger.Fatal("Failed to load chart templates", zap.Error(err))
	}
	zapLogger.Info("Loaded chart templates", zap.Strings("templates", templates.Names()))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.New(registry)

	// Dependency Injection
	repo := postgres.NewPostgresRepository(pool)
	engine := analytics.NewEngine(pool, templates, appMetrics, zapLogger)
	dashboardSvc := service.NewDashboardService(engine, zapLogger)
	handler := http.NewHandler(repo, engine, dashboardSvc, cfg.HTTP.QueryTimeout, zapLogger)

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:      "RoadWatch API v1.0",
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ErrorHandler: http.ErrorHandler(zapLogger),
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.HTTP.CORSAllowOrigins,
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))
	app.Use(appMetrics.Middleware())

	// Routes
	app.Get("/metrics", metrics.Handler(registry))
	http.SetupRoutes(app, handler)

	// Graceful shutdown
	go func() {
		zapLogger.Info("Server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := app.Listen(":" + cfg.Port); err != nil {
			zapLogger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exited gracefully")
}
