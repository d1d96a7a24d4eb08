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
	"github.com/sirupsen/logrus"

	"github.com/ubhacking/commitboard/internal/api"
	"github.com/ubhacking/commitboard/internal/broadcast"
	"github.com/ubhacking/commitboard/internal/config"
	"github.com/ubhacking/commitboard/internal/db"
	"github.com/ubhacking/commitboard/internal/ingest"
	"github.com/ubhacking/commitboard/internal/metrics"
	"github.com/ubhacking/commitboard/internal/milestone"
	"github.com/ubhacking/commitboard/internal/models"
	"github.com/ubhacking/commitboard/internal/queue"
	"github.com/ubhacking/commitboard/internal/tokens"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	logger.SetOutput(os.Stdout)

	// Load configuration with defaults
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize the record store. Without a connection string the server
	// runs on the in-memory store, which does not survive restarts.
	var store db.Store
	if cfg.DBConnectionString != "" {
		pgStore, err := db.NewPostgresStore(cfg.DBConnectionString)
		if err != nil {
			logger.Fatalf("Failed to initialize database: %v", err)
		}

		// Run migrations with retry logic
		if err := retry(3, 5*time.Second, func() error {
			return pgStore.Migrate()
		}); err != nil {
			logger.Fatalf("Failed to run migrations after retries: %v", err)
		}
		store = pgStore
	} else {
		logger.Warn("DB_CONNECTION_STRING not set, using in-memory store")
		store = db.NewMemStore()
	}

	// Initialize the token registry and job queue
	registry := tokens.NewRegistry(tokens.NewMemSlot(), cfg.TokenTTL, logger)
	dispatcher := queue.NewDispatcher(cfg.QueueWorkers, cfg.QueueMaxRetries, cfg.QueueRetryDelay, logger)

	// Initialize services and wire job handlers
	ingestService := ingest.NewService(store, dispatcher, logger, cfg.SummaryLength)
	aggregator := metrics.NewService(store, dispatcher, logger, cfg.CurseWords)
	broadcaster := broadcast.NewService(store, registry, logger)
	notifier := milestone.NewNotifier(milestone.NewLogMailer(logger, cfg.NotifyAddress), cfg.Milestones, logger)

	dispatcher.Register(models.JobMetric, aggregator.Process)
	dispatcher.Register(models.JobBroadcast, broadcaster.Process)
	dispatcher.Register(models.JobAward, notifier.Process)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	// Setup router
	handler := api.NewHandler(ingestService, store, registry, logger)
	router := api.SetupRouter(handler)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections stay open up to the token TTL
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}

	dispatcher.Stop()
	logger.Info("Server exited properly")
}

// retry retries a function up to a certain number of attempts with a delay between attempts
func retry(attempts int, sleep time.Duration, fn func() error) error {
	if err := fn(); err != nil {
		if attempts--; attempts > 0 {
			time.Sleep(sleep)
			return retry(attempts, sleep, fn)
		}
		return err
	}
	return nil
}
