// Package reconcile folds a region's scrape batch into the deal store and
// reports what changed: deals opened, repriced, unchanged or closed.
//
// A batch must only be reconciled by one writer per region at a time; the
// cycle runner guarantees that with a per-region queue and a store lock.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/region"
)

// Store is the deal persistence the reconciler needs.
type Store interface {
	// OpenDeals returns every non-closed deal of a region.
	OpenDeals(ctx context.Context, region string) ([]model.ActiveDeal, error)
	// Apply atomically records t.Observation (idempotent per game, region
	// and observed-at) and moves the deal into the state t.Kind describes.
	Apply(ctx context.Context, t model.Transition) (model.ActiveDeal, error)
	// CloseStale closes open deals of a region last seen before cutoff,
	// except those in keep, and returns them.
	CloseStale(ctx context.Context, region string, cutoff time.Time, keep []int64, closedAt time.Time) ([]model.ActiveDeal, error)
}

// Batch is one region's observations from one scrape cycle.
type Batch struct {
	Region       string
	ScrapedAt    time.Time // zero: earliest observation time
	Observations []model.PriceObservation
}

// Result summarises a reconciliation.
type Result struct {
	Region    string
	Events    []model.DealEvent
	Opened    int
	Changed   int
	Unchanged int
	Closed    int
	Skipped   int
}

// Summary returns a human-readable summary.
func (r *Result) Summary() string {
	return fmt.Sprintf("region=%s opened=%d changed=%d unchanged=%d closed=%d skipped=%d",
		r.Region, r.Opened, r.Changed, r.Unchanged, r.Closed, r.Skipped)
}

func (r *Result) add(ev model.DealEvent) {
	r.Events = append(r.Events, ev)
	switch ev.Kind {
	case model.EventOpened:
		r.Opened++
	case model.EventPriceChanged:
		r.Changed++
	case model.EventUnchanged:
		r.Unchanged++
	case model.EventClosed:
		r.Closed++
	}
}

// Reconciler applies batches to the store.
type Reconciler struct {
	store      Store
	staleAfter time.Duration
	logger     *slog.Logger
}

// New creates a Reconciler. Open deals missing from a batch are closed once
// their last sighting is older than the batch time minus staleAfter.
func New(store Store, staleAfter time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, staleAfter: staleAfter, logger: logger}
}

// Reconcile applies one batch. On error the events applied so far are
// returned alongside it; the remaining keys are picked up by the next batch.
func (r *Reconciler) Reconcile(ctx context.Context, b Batch) (Result, error) {
	res := Result{Region: b.Region}
	if !region.Valid(b.Region) {
		return res, fmt.Errorf("unknown region %q", b.Region)
	}

	latest := make(map[int64]model.PriceObservation, len(b.Observations))
	for _, o := range b.Observations {
		if o.Region != b.Region {
			r.logger.Warn("Observation for wrong region skipped",
				"batch_region", b.Region, "region", o.Region, "game_id", o.GameID)
			res.Skipped++
			continue
		}
		if prev, ok := latest[o.GameID]; ok && o.ObservedAt.Before(prev.ObservedAt) {
			continue
		}
		latest[o.GameID] = o
	}

	scrapedAt := b.ScrapedAt
	if scrapedAt.IsZero() {
		for _, o := range latest {
			if scrapedAt.IsZero() || o.ObservedAt.Before(scrapedAt) {
				scrapedAt = o.ObservedAt
			}
		}
	}

	open, err := r.store.OpenDeals(ctx, b.Region)
	if err != nil {
		return res, fmt.Errorf("load open deals: %w", err)
	}
	current := make(map[int64]model.ActiveDeal, len(open))
	for _, d := range open {
		current[d.GameID] = d
	}

	ids := make([]int64, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	keep := make([]int64, 0, len(current))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		obs := latest[id]
		var cur *model.ActiveDeal
		if d, ok := current[id]; ok {
			cur = &d
			keep = append(keep, d.ID)
		}

		t, ev := Decide(obs, cur)
		deal, err := r.store.Apply(ctx, t)
		if err != nil {
			return res, fmt.Errorf("apply game %d: %w", id, err)
		}
		if ev != nil {
			ev.Deal = deal
			res.add(*ev)
		} else {
			res.Skipped++
		}
	}

	if len(latest) == 0 {
		r.logger.Warn("Empty batch, skipping stale sweep", "region", b.Region)
		return res, nil
	}

	closed, err := r.store.CloseStale(ctx, b.Region, scrapedAt.Add(-r.staleAfter), keep, scrapedAt)
	if err != nil {
		return res, fmt.Errorf("close stale deals: %w", err)
	}
	for _, d := range closed {
		res.add(model.DealEvent{Kind: model.EventClosed, Deal: d, OldPrice: d.Price})
	}
	return res, nil
}

// Decide computes the store transition and event for one observation given
// the key's current open deal (nil if none). A nil event means the
// observation is only recorded.
func Decide(obs model.PriceObservation, cur *model.ActiveDeal) (model.Transition, *model.DealEvent) {
	o := obs
	t := model.Transition{Observation: &o}

	if cur == nil {
		if obs.DiscountPercent <= 0 {
			return t, nil
		}
		t.Kind = model.EventOpened
		t.Deal = model.ActiveDeal{
			GameID:          obs.GameID,
			Region:          obs.Region,
			Price:           obs.Price,
			ListPrice:       obs.ListPrice,
			Currency:        obs.Currency,
			DiscountPercent: obs.DiscountPercent,
			SourceURL:       obs.SourceURL,
			OpenedAt:        obs.ObservedAt,
			LastSeenAt:      obs.ObservedAt,
		}
		return t, &model.DealEvent{Kind: model.EventOpened, Observation: &o}
	}

	// Older than what the deal already reflects: a replay or late row.
	if obs.ObservedAt.Before(cur.LastSeenAt) {
		return t, nil
	}

	deal := *cur
	deal.LastSeenAt = obs.ObservedAt
	t.Deal = deal

	switch {
	case obs.DiscountPercent <= 0:
		closedAt := obs.ObservedAt
		t.Deal.ClosedAt = &closedAt
		t.Kind = model.EventClosed
	case obs.Price != cur.Price:
		t.Deal.Price = obs.Price
		t.Deal.ListPrice = obs.ListPrice
		t.Deal.DiscountPercent = obs.DiscountPercent
		t.Deal.SourceURL = obs.SourceURL
		t.Kind = model.EventPriceChanged
	default:
		t.Kind = model.EventUnchanged
	}
	return t, &model.DealEvent{Kind: t.Kind, OldPrice: cur.Price, Observation: &o}
}
