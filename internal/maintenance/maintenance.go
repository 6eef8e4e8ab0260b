// Package maintenance runs periodic background tasks as Go tickers: the
// scheduled scrape, releasing stuck notification claims, and retention
// cleanup. All scheduled work is driven from the long-running service.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	ScrapeInterval  time.Duration // Partial scrape of every region
	ScrapeOnStart   bool          // Full scrape once at startup
	ReleaseInterval time.Duration // Return stale "sending" claims to the queue
	CleanupInterval time.Duration // Retention purge

	ClaimTimeout         time.Duration
	ObservationRetention time.Duration
	FailedRetention      time.Duration
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		ScrapeInterval:       24 * time.Hour,
		ReleaseInterval:      5 * time.Minute,
		CleanupInterval:      6 * time.Hour,
		ClaimTimeout:         10 * time.Minute,
		ObservationRetention: 90 * 24 * time.Hour,
		FailedRetention:      7 * 24 * time.Hour,
	}
}

// Janitor is the store surface cleanup needs.
type Janitor interface {
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeFailed(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeObservations(ctx context.Context, before time.Time) (int64, error)
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, sched *Scheduler, janitor Janitor, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"scrape", cfg.ScrapeInterval,
		"release", cfg.ReleaseInterval,
		"cleanup", cfg.CleanupInterval)

	tickers := make([]*time.Ticker, 0, 3)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if cfg.ScrapeOnStart && sched != nil {
		sched.Trigger(ScrapeAll(true))
	}

	// Scrape: queue a partial scrape; the scheduler drops it if one is pending
	if cfg.ScrapeInterval > 0 && sched != nil {
		t := time.NewTicker(cfg.ScrapeInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { sched.Trigger(ScrapeAll(false)) })
	}

	// Release: rows claimed by a process that died mid-send
	if cfg.ReleaseInterval > 0 && janitor != nil {
		t := time.NewTicker(cfg.ReleaseInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { releaseStale(ctx, janitor, cfg.ClaimTimeout, logger) })
	}

	// Cleanup: failed queue rows and old observations
	if cfg.CleanupInterval > 0 && janitor != nil {
		t := time.NewTicker(cfg.CleanupInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() {
			if _, err := Cleanup(ctx, janitor, cfg, logger); err != nil {
				logger.Warn("Cleanup failed", "error", err)
			}
		})
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// CleanupResult counts rows removed by one cleanup pass.
type CleanupResult struct {
	Released     int64
	Failed       int64
	Observations int64
}

// Summary returns a human-readable summary.
func (r *CleanupResult) Summary() string {
	return fmt.Sprintf("released=%d failed_purged=%d observations_purged=%d",
		r.Released, r.Failed, r.Observations)
}

// Cleanup releases stale claims, purges failed queue rows past
// FailedRetention and observations past ObservationRetention. Zero
// retentions skip the corresponding purge.
func Cleanup(ctx context.Context, janitor Janitor, cfg Config, logger *slog.Logger) (CleanupResult, error) {
	var res CleanupResult
	now := time.Now().UTC()

	n, err := releaseStale(ctx, janitor, cfg.ClaimTimeout, logger)
	if err != nil {
		return res, err
	}
	res.Released = n

	if cfg.FailedRetention > 0 {
		if res.Failed, err = janitor.PurgeFailed(ctx, now.Add(-cfg.FailedRetention)); err != nil {
			return res, fmt.Errorf("purge failed notifications: %w", err)
		}
	}
	if cfg.ObservationRetention > 0 {
		if res.Observations, err = janitor.PurgeObservations(ctx, now.Add(-cfg.ObservationRetention)); err != nil {
			return res, fmt.Errorf("purge observations: %w", err)
		}
	}
	if res.Released+res.Failed+res.Observations > 0 {
		logger.Info("Cleanup complete", "summary", res.Summary())
	}
	return res, nil
}

func releaseStale(ctx context.Context, janitor Janitor, timeout time.Duration, logger *slog.Logger) (int64, error) {
	if timeout <= 0 {
		timeout = DefaultConfig().ClaimTimeout
	}
	n, err := janitor.ReleaseStale(ctx, time.Now().UTC().Add(-timeout))
	if err != nil {
		logger.Warn("Release stale claims failed", "error", err)
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	if n > 0 {
		logger.Info("Released stale notification claims", "count", n)
	}
	return n, nil
}
