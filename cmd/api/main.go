package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/zombar/linkhub"
	"github.com/zombar/linkhub/api"
	"github.com/zombar/linkhub/db"
	"github.com/zombar/linkhub/storage"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("linkhub service initializing", "version", "1.0.0")

	// Default values
	defaultPort := getEnv("PORT", "8080")
	defaultGeminiURL := getEnv("GEMINI_URL", "https://generativelanguage.googleapis.com")
	defaultGeminiModel := getEnv("GEMINI_MODEL", "gemini-2.5-flash")
	defaultStorageBackend := getEnv("STORAGE_BACKEND", "fs")
	defaultStoragePath := getEnv("STORAGE_BASE_PATH", "./storage")

	// Command-line flags (override environment variables)
	port := flag.String("port", defaultPort, "Server port")
	geminiURL := flag.String("gemini-url", defaultGeminiURL, "Gemini API base URL")
	geminiModel := flag.String("gemini-model", defaultGeminiModel, "Gemini model for URL analysis")
	storageBackend := flag.String("storage-backend", defaultStorageBackend, "Thumbnail storage backend: fs or s3")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	disableThumbnails := flag.Bool("disable-thumbnails", false, "Disable thumbnail capture")
	flag.Parse()

	geminiAPIKey := getEnv("GEMINI_API_KEY", "")
	if geminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY is not set, analysis requests will fail")
	}

	// PostgreSQL database configuration (required)
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		logger.Error("DB_HOST environment variable is required")
		os.Exit(1)
	}

	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "linkhub")
	dbPassword := getEnv("DB_PASSWORD", "linkhub_dev_pass")
	dbName := getEnv("DB_NAME", "linkhub")

	dbConfig := db.Config{
		DSN: fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", dbHost, dbPort, dbUser, dbPassword, dbName),
	}
	logger.Info("using PostgreSQL database", "host", dbHost, "port", dbPort, "database", dbName)

	database, err := db.New(dbConfig)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}

	// Thumbnail storage backend
	var thumbs linkhub.ThumbnailStore
	if !*disableThumbnails {
		switch *storageBackend {
		case "s3":
			s3Store, err := storage.NewS3Storage(context.Background(), storage.S3Config{
				Endpoint:        getEnv("S3_ENDPOINT", ""),
				Region:          getEnv("S3_REGION", "us-east-1"),
				Bucket:          getEnv("S3_BUCKET", ""),
				AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
				SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
				UsePathStyle:    getEnv("S3_USE_PATH_STYLE", "") == "true",
				PublicBaseURL:   getEnv("S3_PUBLIC_BASE_URL", ""),
			})
			if err != nil {
				logger.Error("failed to initialize S3 storage", "error", err)
				os.Exit(1)
			}
			thumbs = s3Store
			logger.Info("using S3 thumbnail storage", "bucket", getEnv("S3_BUCKET", ""))
		case "fs":
			fsStore, err := storage.New(storage.Config{BasePath: defaultStoragePath})
			if err != nil {
				logger.Error("failed to initialize filesystem storage", "error", err)
				os.Exit(1)
			}
			thumbs = fsStore
			logger.Info("using filesystem thumbnail storage", "path", defaultStoragePath)
		default:
			logger.Error("unknown storage backend", "backend", *storageBackend)
			os.Exit(1)
		}
	}

	analyzerConfig := linkhub.DefaultConfig()
	analyzerConfig.GeminiBaseURL = *geminiURL
	analyzerConfig.GeminiModel = *geminiModel
	analyzerConfig.GeminiAPIKey = geminiAPIKey

	analyzer := linkhub.New(analyzerConfig, database, database, thumbs, logger)

	server := api.NewServer(database, analyzer, api.Config{
		Addr:        ":" + *port,
		CORSEnabled: !*disableCORS,
	}, logger)

	// Publish database pool metrics
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			api.UpdateDBStats(database.DB())
		}
	}()
	logger.Info("database metrics initialized")

	// Start server in a goroutine
	go func() {
		logger.Info("linkhub service starting",
			"port", *port,
			"database_host", dbHost,
			"database_name", dbName,
			"gemini_url", *geminiURL,
			"gemini_model", *geminiModel,
			"storage_backend", *storageBackend,
			"thumbnails_enabled", !*disableThumbnails,
		)

		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	if err := database.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("server stopped")
}
