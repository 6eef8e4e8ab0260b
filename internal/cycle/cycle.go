// Package cycle runs one ingestion cycle per region: fetch, normalise,
// reconcile, match, enqueue, then flush immediate users.
//
// A region has one logical writer. Inside the process cycles for a region
// queue on a slot; across processes the store's region lock serialises them.
// Different regions run concurrently.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/oshri1997/Deal-Hunter/internal/alerts"
	"github.com/oshri1997/Deal-Hunter/internal/cache"
	"github.com/oshri1997/Deal-Hunter/internal/metrics"
	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/normalize"
	"github.com/oshri1997/Deal-Hunter/internal/notifications"
	"github.com/oshri1997/Deal-Hunter/internal/provider"
	"github.com/oshri1997/Deal-Hunter/internal/reconcile"
	"github.com/oshri1997/Deal-Hunter/internal/region"
)

// Locker grants exclusive ownership of a region across processes.
type Locker interface {
	LockRegion(ctx context.Context, code string) (unlock func(), err error)
}

// Deps are the engine components a cycle drives.
type Deps struct {
	Source     provider.Source
	Normalizer *normalize.Normalizer
	Reconciler *reconcile.Reconciler
	Matcher    *alerts.Matcher
	Dispatcher *notifications.Dispatcher
	Locker     Locker
	Cache      *cache.Cache
	Metrics    *metrics.Metrics
}

// Result tracks the outcome of one region cycle.
type Result struct {
	RunID     string
	Region    string
	Fetched   int
	Dropped   int
	Opened    int
	Changed   int
	Unchanged int
	Closed    int
	Intents   int
	Queued    int
	Delivered int
	Errors    []string
	Duration  time.Duration
}

// Summary returns a human-readable summary.
func (r *Result) Summary() string {
	return fmt.Sprintf("region=%s fetched=%d dropped=%d opened=%d changed=%d unchanged=%d closed=%d intents=%d queued=%d delivered=%d errors=%d duration=%s",
		r.Region, r.Fetched, r.Dropped, r.Opened, r.Changed, r.Unchanged, r.Closed,
		r.Intents, r.Queued, r.Delivered, len(r.Errors), r.Duration.Round(time.Millisecond))
}

// Runner executes cycles.
type Runner struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewRunner creates a Runner. Source may be nil for a runner that only
// ingests observations handed to it.
func NewRunner(deps Deps, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		deps:   deps,
		logger: logger,
		now:    time.Now,
		slots:  make(map[string]chan struct{}),
	}
}

// --------------------------------------------------------------------------
// Entry points
// --------------------------------------------------------------------------

// RunAll scrapes every region concurrently. One region failing does not stop
// the others; the joined error lists every failed region.
func (r *Runner) RunAll(ctx context.Context, regions []string, pages int) ([]Result, error) {
	results := make([]Result, len(regions))
	errs := make([]error, len(regions))

	var g errgroup.Group
	for i, code := range regions {
		g.Go(func() error {
			results[i], errs[i] = r.RunRegion(ctx, code, pages)
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

// RunRegion fetches pages of a region from the source and ingests them.
func (r *Runner) RunRegion(ctx context.Context, code string, pages int) (Result, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if r.deps.Source == nil {
		return Result{Region: code}, fmt.Errorf("no scrape source configured")
	}
	return r.run(ctx, code, func(ctx context.Context) ([]model.RawObservation, error) {
		raws, err := r.deps.Source.Fetch(ctx, code, pages)
		if err != nil {
			return nil, fmt.Errorf("fetch %s from %s: %w", code, r.deps.Source.Name(), err)
		}
		return raws, nil
	})
}

// Ingest runs a cycle over observations supplied by the caller (admin
// upload, file replay). Rows for other regions are ignored.
func (r *Runner) Ingest(ctx context.Context, code string, raws []model.RawObservation) (Result, error) {
	return r.run(ctx, code, func(context.Context) ([]model.RawObservation, error) {
		out := make([]model.RawObservation, 0, len(raws))
		for _, raw := range raws {
			if raw.RegionCode == "" {
				raw.RegionCode = code
			}
			if strings.EqualFold(raw.RegionCode, code) {
				out = append(out, raw)
			}
		}
		return out, nil
	})
}

// IngestAll splits observations by region and ingests each region
// concurrently.
func (r *Runner) IngestAll(ctx context.Context, raws []model.RawObservation) ([]Result, error) {
	byRegion := make(map[string][]model.RawObservation)
	var unknown []string
	for _, raw := range raws {
		reg, ok := region.Lookup(raw.RegionCode)
		if !ok {
			unknown = append(unknown, raw.RegionCode)
			continue
		}
		raw.RegionCode = reg.Code
		byRegion[reg.Code] = append(byRegion[reg.Code], raw)
	}
	if len(unknown) > 0 {
		r.logger.Warn("Observations for unknown regions skipped", "count", len(unknown), "regions", unknown)
	}

	codes := make([]string, 0, len(byRegion))
	for code := range byRegion {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	results := make([]Result, len(codes))
	errs := make([]error, len(codes))
	var g errgroup.Group
	for i, code := range codes {
		g.Go(func() error {
			results[i], errs[i] = r.Ingest(ctx, code, byRegion[code])
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Cycle
// --------------------------------------------------------------------------

func (r *Runner) run(ctx context.Context, code string, fetch func(context.Context) ([]model.RawObservation, error)) (res Result, err error) {
	start := r.now()
	res = Result{RunID: uuid.NewString(), Region: code}
	logger := r.logger.With("region", code, "run_id", res.RunID)

	defer func() {
		res.Duration = r.now().Sub(start)
		outcome := "ok"
		if err != nil {
			outcome = "failed"
			res.Errors = append(res.Errors, err.Error())
			logger.Error("Cycle failed", "summary", res.Summary(), "error", err)
		} else {
			logger.Info("Cycle complete", "summary", res.Summary())
		}
		r.deps.Metrics.ObserveCycle(code, outcome, res.Duration)
	}()

	reg, ok := region.Lookup(code)
	if !ok {
		return res, fmt.Errorf("unknown region %q", code)
	}
	code, res.Region = reg.Code, reg.Code

	release, err := r.acquire(ctx, code)
	if err != nil {
		return res, err
	}
	defer release()

	// Other processes may have added games or aliases since the last run.
	if err := r.deps.Normalizer.Reload(ctx); err != nil {
		return res, fmt.Errorf("reload game index: %w", err)
	}

	raws, err := fetch(ctx)
	if err != nil {
		return res, err
	}
	res.Fetched = len(raws)

	batch, err := r.deps.Normalizer.NormalizeBatch(ctx, raws)
	if err != nil {
		return res, fmt.Errorf("normalize batch: %w", err)
	}
	res.Dropped = len(batch.Dropped)
	for _, pe := range batch.Dropped {
		r.deps.Metrics.IncDropped(code, pe.Field)
	}

	// Events applied before a reconcile error are already persisted and
	// still have to be matched, or they would never notify.
	rec, recErr := r.deps.Reconciler.Reconcile(ctx, reconcile.Batch{Region: code, Observations: batch.Observations})
	res.Opened, res.Changed, res.Unchanged, res.Closed = rec.Opened, rec.Changed, rec.Unchanged, rec.Closed
	for _, ev := range rec.Events {
		r.deps.Metrics.IncEvent(code, string(ev.Kind))
	}

	immediate, err := r.notify(ctx, rec.Events, &res)
	if err != nil {
		return res, err
	}
	if rec.Opened+rec.Changed+rec.Closed > 0 {
		n := r.deps.Cache.InvalidatePrefix(cache.DealsPrefix(code))
		logger.Debug("Deal listings invalidated", "entries", n)
	}
	if recErr != nil {
		return res, fmt.Errorf("reconcile: %w", recErr)
	}

	if len(immediate) > 0 && r.deps.Dispatcher != nil {
		flushed, err := r.deps.Dispatcher.Flush(ctx, immediate)
		res.Delivered = flushed.Delivered
		// Undelivered rows stay queued for the worker; the cycle succeeded.
		if err != nil {
			logger.Warn("Immediate flush incomplete", "error", err)
			res.Errors = append(res.Errors, err.Error())
		}
	}
	return res, nil
}

// notify matches events, queues the intents, then commits rule state.
func (r *Runner) notify(ctx context.Context, events []model.DealEvent, res *Result) ([]int64, error) {
	var matched alerts.Result
	for _, ev := range events {
		m, err := r.deps.Matcher.Match(ctx, ev)
		if err != nil {
			return nil, fmt.Errorf("match game %d: %w", ev.Deal.GameID, err)
		}
		matched.Merge(m)
	}
	res.Intents = len(matched.Intents)

	var immediate []int64
	if len(matched.Intents) > 0 {
		if r.deps.Dispatcher == nil {
			return nil, fmt.Errorf("no dispatcher for %d intents", len(matched.Intents))
		}
		enq, err := r.deps.Dispatcher.Enqueue(ctx, matched.Intents)
		if err != nil {
			return nil, fmt.Errorf("enqueue: %w", err)
		}
		res.Queued = enq.Queued
		immediate = enq.Immediate
	}

	if err := r.deps.Matcher.Commit(ctx, matched); err != nil {
		return nil, fmt.Errorf("commit rule state: %w", err)
	}
	return immediate, nil
}

// acquire takes the region's in-process slot, then the store lock.
func (r *Runner) acquire(ctx context.Context, code string) (func(), error) {
	r.mu.Lock()
	slot, ok := r.slots[code]
	if !ok {
		slot = make(chan struct{}, 1)
		r.slots[code] = slot
	}
	r.mu.Unlock()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.deps.Locker == nil {
		return func() { <-slot }, nil
	}
	unlock, err := r.deps.Locker.LockRegion(ctx, code)
	if err != nil {
		<-slot
		return nil, fmt.Errorf("lock region: %w", err)
	}
	return func() {
		unlock()
		<-slot
	}, nil
}
