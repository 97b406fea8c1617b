// Command server is the Almaty Air service: it runs the daily digest and AQI
// alert scheduler, the maintenance tickers, and a small read-only HTTP API.
//
// Usage:
//
//	almaty-air
//	API_PORT=8080 TELEGRAM_BOT_TOKEN=... IQAIR_API_KEY=... almaty-air
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/albapepper/almaty-air/internal/api"
	"github.com/albapepper/almaty-air/internal/api/handler"
	"github.com/albapepper/almaty-air/internal/cache"
	"github.com/albapepper/almaty-air/internal/config"
	"github.com/albapepper/almaty-air/internal/db"
	"github.com/albapepper/almaty-air/internal/logging"
	"github.com/albapepper/almaty-air/internal/maintenance"
	"github.com/albapepper/almaty-air/internal/notifications"
	"github.com/albapepper/almaty-air/internal/provider/iqair"
	"github.com/albapepper/almaty-air/internal/publish"
	"github.com/albapepper/almaty-air/internal/snapshot"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg, "almaty-air")

	if cfg.IQAirAPIKey == "" {
		logger.Error("IQAIR_API_KEY is required")
		os.Exit(1)
	}
	sender := notifications.NewTelegramSender(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.SendRatePerSecond, logger)
	if sender == nil {
		logger.Error("TELEGRAM_BOT_TOKEN is required")
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Schema first: prepared statements reference the tables.
	if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
		logger.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}

	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	// Measurement cache and its observers
	var opts []cache.Option

	var snap *snapshot.RedisStore
	if cfg.RedisURL != "" {
		snap, err = snapshot.Connect(ctx, cfg.RedisURL, cfg.SnapshotTTL, logger)
		if err != nil {
			logger.Warn("Reading snapshot disabled", "error", err)
		} else {
			defer snap.Close()
			opts = append(opts, cache.WithObserver(snap))
		}
	}

	if cfg.MQTTBrokerURL != "" {
		pub, err := publish.Connect(ctx, cfg.MQTTBrokerURL, cfg.MQTTClientID, cfg.MQTTTopic, cfg.Location.Name, logger)
		if err != nil {
			logger.Warn("MQTT broadcast disabled", "error", err)
		} else {
			defer pub.Close()
			opts = append(opts, cache.WithObserver(pub))
		}
	}

	client := iqair.NewClient(cfg.IQAirBaseURL, cfg.IQAirAPIKey, cfg.Location, cfg.IQAirRequestsPerM, logger)
	readings := cache.New(client, cfg.CacheTTL, cfg.FetchTimeout, logger, opts...)

	if snap != nil {
		if r, err := snap.Load(ctx); err != nil {
			logger.Warn("Failed to load reading snapshot", "error", err)
		} else if r != nil && readings.Warm(r) {
			logger.Info("Cache warmed from snapshot", "aqi", r.AQI, "captured_at", r.CapturedAt)
		}
	}

	// Notification scheduler
	pipeline := notifications.NewPipeline(
		notifications.NewPgStore(pool.Pool),
		sender,
		readings,
		notifications.PipelineConfig{
			LocationName: cfg.Location.Name,
			Timezone:     cfg.TimeLocation(),
			Workers:      cfg.DeliveryWorkers,
		},
		logger,
	)
	scheduler := notifications.NewScheduler(pipeline, cfg.AlertInterval, logger)
	schedulerDone := make(chan struct{})
	go func() {
		scheduler.Start(ctx)
		close(schedulerDone)
	}()

	// Maintenance tickers (delivery log purge)
	go maintenance.Start(ctx, pool, maintenance.Config{
		CleanupInterval: cfg.CleanupInterval,
		Retention:       cfg.DeliveryLogRetention,
	}, logger)

	// Create router
	router := api.NewRouter(handler.New(pool, readings, scheduler, cfg), cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting Almaty Air API",
			"addr", addr,
			"environment", cfg.Environment,
			"location", cfg.Location.Name,
			"timezone", cfg.Timezone)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}

	// In-flight cycles finish their band writes before the pool closes.
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		logger.Warn("Scheduler did not stop before shutdown deadline")
	}
	logger.Info("Server stopped")
}
