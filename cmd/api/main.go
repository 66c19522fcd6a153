// cmd/api/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/flowershop-backend/internal/config"
	"github.com/your-org/flowershop-backend/internal/infrastructure/database/postgres"
	"github.com/your-org/flowershop-backend/internal/infrastructure/database/redis"
	"github.com/your-org/flowershop-backend/internal/interfaces/http"
	"github.com/your-org/flowershop-backend/internal/pkg/events"
	"github.com/your-org/flowershop-backend/internal/pkg/notify"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if cfg.IsDevelopment() {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logger.SetLevel(logrus.DebugLevel)
	}

	logger.WithFields(logrus.Fields{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	}).Info("Starting application")

	// Connect to database
	db, err := postgres.NewConnection(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	// Connect to Redis
	redisClient, err := redis.NewConnection(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	if err := db.Health(); err != nil {
		logger.WithError(err).Fatal("Database health check failed")
	}

	if err := redisClient.Health(); err != nil {
		logger.WithError(err).Fatal("Redis health check failed")
	}

	// Run database migrations
	migration := postgres.NewMigration(db.GetDB(), logger)

	if err := migration.RunAutoMigrations(); err != nil {
		logger.WithError(err).Fatal("Database migration failed")
	}

	if err := migration.CreateIndexes(); err != nil {
		logger.WithError(err).Warn("Index creation failed")
	}

	// Seed initial data in development
	if cfg.IsDevelopment() {
		if err := migration.SeedInitialData(); err != nil {
			logger.WithError(err).Warn("Data seeding failed")
		}
	}

	// Order events drive the Telegram notification channel
	bus := events.NewBus(logger, 64)
	notifier := notify.NewTelegramNotifier(cfg, logger)
	bus.Subscribe(notifier.HandleOrderCreated)
	bus.Start()

	logger.Info("All systems operational")

	// Create and start HTTP server
	server := http.NewServer(cfg, db.GetDB(), redisClient.GetClient(), bus, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logger.WithError(err).Error("Failed to shutdown HTTP server gracefully")
	}

	// Flush pending notifications before exit
	bus.Close()

	logger.Info("Server shutdown completed")
}
