// Command ingest is the Deal Hunter operations CLI.
//
// Usage:
//
//	deal-hunter-ingest scrape --region IL --full
//	deal-hunter-ingest replay observations.json --memory
//	deal-hunter-ingest trigger --region US
//	deal-hunter-ingest digest flush
//	deal-hunter-ingest migrate
//	deal-hunter-ingest cleanup
//	deal-hunter-ingest admin-token --subject ops --ttl 24h
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/oshri1997/Deal-Hunter/internal/alerts"
	"github.com/oshri1997/Deal-Hunter/internal/api"
	"github.com/oshri1997/Deal-Hunter/internal/cache"
	"github.com/oshri1997/Deal-Hunter/internal/config"
	"github.com/oshri1997/Deal-Hunter/internal/cycle"
	"github.com/oshri1997/Deal-Hunter/internal/db"
	"github.com/oshri1997/Deal-Hunter/internal/maintenance"
	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/normalize"
	"github.com/oshri1997/Deal-Hunter/internal/notifications"
	"github.com/oshri1997/Deal-Hunter/internal/provider"
	"github.com/oshri1997/Deal-Hunter/internal/provider/feed"
	"github.com/oshri1997/Deal-Hunter/internal/reconcile"
	"github.com/oshri1997/Deal-Hunter/internal/region"
	"github.com/oshri1997/Deal-Hunter/internal/store/memory"
	"github.com/oshri1997/Deal-Hunter/internal/store/postgres"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "deal-hunter-ingest",
		Short:        "Deal Hunter ingestion and operations CLI",
		SilenceUsage: true,
	}

	root.AddCommand(scrapeCmd())
	root.AddCommand(replayCmd())
	root.AddCommand(triggerCmd())
	root.AddCommand(digestCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(cleanupCmd())
	root.AddCommand(adminTokenCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// scrape command
// --------------------------------------------------------------------------

func scrapeCmd() *cobra.Command {
	var (
		regionCode string
		pages      int
		full       bool
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run ingestion cycles against the deal feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDB(func(ctx context.Context, cfg *config.Config, st *postgres.Store) error {
				if cfg.FeedURL == "" {
					return fmt.Errorf("FEED_URL is required")
				}
				if pages > 0 {
					cfg.ScrapePages, cfg.ScrapeFullPages = pages, pages
				}
				source := provider.NewAggregator(logger, feed.NewClient(cfg.FeedURL, cfg.FeedAPIKey, cfg.FeedRateLimit, logger))
				runner, _, err := buildRunner(cfg, st, source)
				if err != nil {
					return err
				}
				sched := maintenance.NewScheduler(runner, cfg.Regions, cfg.ScrapePages, cfg.ScrapeFullPages, logger)

				start := time.Now()
				results, err := sched.Scrape(ctx, model.ScrapeRequest{Region: regionCode, Full: full})
				for _, r := range results {
					logger.Info("Cycle finished", "summary", r.Summary())
				}
				logger.Info("Scrape finished", "regions", len(results), "duration", time.Since(start).Round(time.Second))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&regionCode, "region", "", "Region code; empty = every configured region")
	cmd.Flags().IntVar(&pages, "pages", 0, "Pages per region; 0 = SCRAPE_PAGES (or SCRAPE_FULL_PAGES with --full)")
	cmd.Flags().BoolVar(&full, "full", false, "Deep scrape")
	return cmd
}

// --------------------------------------------------------------------------
// replay command
// --------------------------------------------------------------------------

func replayCmd() *cobra.Command {
	var (
		inMemory   bool
		regionCode string
	)
	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Ingest observations from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raws, err := provider.NewFileSource(args[0]).Load()
			if err != nil {
				return err
			}
			if regionCode != "" {
				r, ok := region.Lookup(regionCode)
				if !ok {
					return fmt.Errorf("unknown region %q", regionCode)
				}
				for i := range raws {
					if raws[i].RegionCode == "" {
						raws[i].RegionCode = r.Code
					}
				}
			}

			replay := func(ctx context.Context, cfg *config.Config, st engineStore) error {
				runner, _, err := buildRunner(cfg, st, nil)
				if err != nil {
					return err
				}
				results, err := runner.IngestAll(ctx, raws)
				for _, r := range results {
					logger.Info("Cycle finished", "summary", r.Summary())
				}
				return err
			}

			if inMemory {
				ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
				defer cancel()
				cfg, err := config.LoadWithoutDatabase()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg.DeliveryChannel = config.ChannelLog
				return replay(ctx, cfg, memory.New())
			}
			return runWithDB(func(ctx context.Context, cfg *config.Config, st *postgres.Store) error {
				return replay(ctx, cfg, st)
			})
		},
	}
	cmd.Flags().BoolVar(&inMemory, "memory", false, "Use an in-memory store and log notifications instead of sending")
	cmd.Flags().StringVar(&regionCode, "region", "", "Region for rows that carry none")
	return cmd
}

// --------------------------------------------------------------------------
// trigger command
// --------------------------------------------------------------------------

func triggerCmd() *cobra.Command {
	var (
		regionCode string
		full       bool
	)
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask the running service to scrape now (pg_notify)",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := model.ScrapeRequest{Full: full}
			if regionCode != "" {
				r, ok := region.Lookup(regionCode)
				if !ok {
					return fmt.Errorf("unknown region %q", regionCode)
				}
				req.Region = r.Code
			}
			return runWithDB(func(ctx context.Context, cfg *config.Config, st *postgres.Store) error {
				if err := st.RequestScrape(ctx, req); err != nil {
					return err
				}
				logger.Info("Scrape requested", "region", req.Region, "full", req.Full)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&regionCode, "region", "", "Region code; empty = every configured region")
	cmd.Flags().BoolVar(&full, "full", false, "Deep scrape")
	return cmd
}

// --------------------------------------------------------------------------
// digest command
// --------------------------------------------------------------------------

func digestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Notification queue operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Deliver every due notification now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDB(func(ctx context.Context, cfg *config.Config, st *postgres.Store) error {
				_, dispatcher, err := buildRunner(cfg, st, nil)
				if err != nil {
					return err
				}
				res, err := dispatcher.Flush(ctx, nil)
				logger.Info("Flush finished", "summary", res.Summary())
				return err
			})
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// migrate / cleanup commands
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema and refresh the region catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
				return err
			}
			logger.Info("Migration complete", "regions", len(region.All()))
			return nil
		},
	}
}

func cleanupCmd() *cobra.Command {
	var claimTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Release stuck claims and apply retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithDB(func(ctx context.Context, cfg *config.Config, st *postgres.Store) error {
				mcfg := maintenance.DefaultConfig()
				mcfg.ClaimTimeout = claimTimeout
				mcfg.ObservationRetention = cfg.ObservationRetention
				mcfg.FailedRetention = cfg.FailedRetention
				res, err := maintenance.Cleanup(ctx, st, mcfg, logger)
				logger.Info("Cleanup finished", "summary", res.Summary())
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&claimTimeout, "claim-timeout", maintenance.DefaultConfig().ClaimTimeout, "Release claims older than this")
	return cmd
}

// --------------------------------------------------------------------------
// admin-token command
// --------------------------------------------------------------------------

func adminTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Issue a bearer token for the /admin routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithoutDatabase()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.AdminJWTSecret == "" {
				return fmt.Errorf("ADMIN_JWT_SECRET is required")
			}
			tok, exp, err := api.AdminTokens{Secret: []byte(cfg.AdminJWTSecret)}.Sign(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			logger.Info("Admin token issued", "subject", subject, "expires", exp.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "ops", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// engineStore is everything a cycle touches; both stores satisfy it.
type engineStore interface {
	normalize.GameStore
	reconcile.Store
	alerts.Store
	notifications.Store
	cycle.Locker
}

// buildRunner assembles the ingestion engine over st. source may be nil for
// replays.
func buildRunner(cfg *config.Config, st engineStore, source provider.Source) (*cycle.Runner, *notifications.Dispatcher, error) {
	sender, err := notifications.NewSender(cfg.DeliveryChannel, cfg.TelegramBotToken, cfg.DiscordBotToken, cfg.SendRateLimit, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create sender: %w", err)
	}
	dispatcher := notifications.NewDispatcher(st, sender, notifications.Config{
		DigestHour:         cfg.DigestHour,
		DigestMinute:       cfg.DigestMinute,
		DigestLocation:     cfg.DigestLocation,
		MaxDealsPerMessage: cfg.MaxDealsPerMessage,
		MaxAttempts:        cfg.MaxSendAttempts,
		RetryBackoff:       cfg.RetryBackoff,
	}, nil, logger)

	runner := cycle.NewRunner(cycle.Deps{
		Source:     source,
		Normalizer: normalize.New(st, cfg.MatchThreshold, logger),
		Reconciler: reconcile.New(st, cfg.StaleAfter, logger),
		Matcher:    alerts.NewMatcher(st, logger),
		Dispatcher: dispatcher,
		Locker:     st,
		Cache:      cache.New(false),
	}, logger)
	return runner, dispatcher, nil
}

// runWithDB handles config loading, DB connection, and context cancellation.
func runWithDB(fn func(ctx context.Context, cfg *config.Config, st *postgres.Store) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, postgres.New(pool))
}
