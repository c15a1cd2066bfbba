package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mangakantei/manga-kantei-api/internal/config"
	"github.com/mangakantei/manga-kantei-api/internal/db"
	"github.com/mangakantei/manga-kantei-api/internal/repository"
	"github.com/mangakantei/manga-kantei-api/internal/router"
	"github.com/mangakantei/manga-kantei-api/internal/services"
	"github.com/mangakantei/manga-kantei-api/internal/storage"
	"github.com/mangakantei/manga-kantei-api/internal/utils"
)

func main() {
	// Local development convenience; a missing .env is fine
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)

	// The persistence backend is optional: without it the app still
	// analyzes, it just cannot save or serve history.
	var logRepo repository.Repository
	var objectStore storage.ObjectStore

	if cfg.BackendConfigured() {
		database, err := db.NewSQLiteDB(cfg.DatabaseFile)
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		defer database.Close()

		if err := db.RunMigrations(cfg.DatabaseFile, cfg.MigrationsPath); err != nil {
			logger.Fatal("Failed to run migrations", "error", err)
		}

		logRepo = repository.NewRepository(database)

		objectStore, err = storage.NewS3ObjectStore(cfg)
		if err != nil {
			logger.Fatal("Failed to initialize object storage", "error", err)
		}

		logger.Info("Persistence backend configured", "bucket", cfg.S3BucketName)
	} else {
		logger.Warn("Persistence backend not configured, running in local-analysis-only mode")
	}

	analysisService := services.NewService(logRepo, objectStore, cfg, logger)

	handler := router.NewRouter(analysisService, logger, cfg.MaxFileSize)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
