// Command api is the Deal Hunter service: HTTP API, scheduled scrapes,
// notification dispatch and maintenance in one process.
//
// Usage:
//
//	deal-hunter-api
//	API_PORT=8080 deal-hunter-api

// @title Deal Hunter API
// @version 1.0.0
// @description Regional game-deal tracking: region subscriptions, wishlists, price alerts, deal listings and cross-region comparison.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
// @contact.name Deal Hunter
// @license.name MIT
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
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

	"github.com/joho/godotenv"

	"github.com/oshri1997/Deal-Hunter/internal/alerts"
	"github.com/oshri1997/Deal-Hunter/internal/api"
	"github.com/oshri1997/Deal-Hunter/internal/api/handler"
	"github.com/oshri1997/Deal-Hunter/internal/cache"
	"github.com/oshri1997/Deal-Hunter/internal/config"
	"github.com/oshri1997/Deal-Hunter/internal/cycle"
	"github.com/oshri1997/Deal-Hunter/internal/db"
	"github.com/oshri1997/Deal-Hunter/internal/exchange"
	"github.com/oshri1997/Deal-Hunter/internal/listener"
	"github.com/oshri1997/Deal-Hunter/internal/maintenance"
	"github.com/oshri1997/Deal-Hunter/internal/membership"
	"github.com/oshri1997/Deal-Hunter/internal/metrics"
	"github.com/oshri1997/Deal-Hunter/internal/normalize"
	"github.com/oshri1997/Deal-Hunter/internal/notifications"
	"github.com/oshri1997/Deal-Hunter/internal/provider"
	"github.com/oshri1997/Deal-Hunter/internal/provider/feed"
	"github.com/oshri1997/Deal-Hunter/internal/reconcile"
	"github.com/oshri1997/Deal-Hunter/internal/store/postgres"
	"github.com/oshri1997/Deal-Hunter/internal/tier"

	_ "github.com/oshri1997/Deal-Hunter/docs" // swagger docs
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Connect to database
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
	st := postgres.New(pool)

	// Initialize cache
	appCache := cache.New(cfg.CacheEnabled)
	defer appCache.Close()
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	m := metrics.Default()

	// Notification delivery
	sender, err := notifications.NewSender(cfg.DeliveryChannel, cfg.TelegramBotToken, cfg.DiscordBotToken, cfg.SendRateLimit, logger)
	if err != nil {
		logger.Error("Failed to create notification sender", "channel", cfg.DeliveryChannel, "error", err)
		os.Exit(1)
	}
	dispatcher := notifications.NewDispatcher(st, sender, notifications.Config{
		DigestHour:         cfg.DigestHour,
		DigestMinute:       cfg.DigestMinute,
		DigestLocation:     cfg.DigestLocation,
		MaxDealsPerMessage: cfg.MaxDealsPerMessage,
		MaxAttempts:        cfg.MaxSendAttempts,
		RetryBackoff:       cfg.RetryBackoff,
		DispatchInterval:   cfg.DispatchInterval,
	}, m, logger)

	// Ingestion engine
	games := normalize.New(st, cfg.MatchThreshold, logger)
	deps := cycle.Deps{
		Normalizer: games,
		Reconciler: reconcile.New(st, cfg.StaleAfter, logger),
		Matcher:    alerts.NewMatcher(st, logger),
		Dispatcher: dispatcher,
		Locker:     st,
		Cache:      appCache,
		Metrics:    m,
	}
	if cfg.FeedURL != "" {
		deps.Source = provider.NewAggregator(logger, feed.NewClient(cfg.FeedURL, cfg.FeedAPIKey, cfg.FeedRateLimit, logger))
	}
	runner := cycle.NewRunner(deps, logger)

	// Scheduled and on-demand scrapes
	var scraper handler.ScrapeTrigger
	var sched *maintenance.Scheduler
	if deps.Source != nil {
		sched = maintenance.NewScheduler(runner, cfg.Regions, cfg.ScrapePages, cfg.ScrapeFullPages, logger)
		scraper = sched
		go sched.Run(ctx)
		go listener.Start(ctx, cfg.DatabaseURL, sched, logger)
	} else {
		logger.Info("Scraping disabled (no FEED_URL); observations can still be uploaded")
	}

	// Maintenance tickers (scrapes, stale claims, retention)
	mcfg := maintenance.DefaultConfig()
	mcfg.ScrapeInterval = cfg.ScrapeInterval
	mcfg.ScrapeOnStart = cfg.ScrapeOnStart
	mcfg.ObservationRetention = cfg.ObservationRetention
	mcfg.FailedRetention = cfg.FailedRetention
	go maintenance.Start(ctx, sched, st, mcfg, logger)

	// Notification dispatch worker (digests and retries)
	go notifications.StartWorker(ctx, dispatcher, logger)

	// Create router
	h := handler.New(handler.Deps{
		Members:  membership.New(st, tier.NewPolicy(cfg.FreeLimits), games, logger),
		Deals:    st,
		DB:       st,
		Rates:    exchange.New(cfg.ExchangeRatesURL, cfg.BaseCurrency, appCache, logger),
		Scraper:  scraper,
		Ingester: runner,
		Cache:    appCache,
		Logger:   logger,
	})
	router := api.NewRouter(h, cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting Deal Hunter API",
			"addr", addr,
			"environment", cfg.Environment,
			"regions", cfg.Regions,
			"channel", cfg.DeliveryChannel,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
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
	if c, ok := sender.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			logger.Warn("Sender close failed", "error", err)
		}
	}
	logger.Info("Server stopped")
}
