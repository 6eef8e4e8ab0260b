package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/metrics"
	"github.com/oshri1997/Deal-Hunter/internal/model"
)

// Dispatcher queues intents and delivers them through a Sender.
type Dispatcher struct {
	store   Store
	sender  Sender
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	// Serialises flushes within the process. ClaimDue guards across
	// processes.
	flushMu sync.Mutex
}

// NewDispatcher wires a dispatcher. A nil sender logs messages instead of
// delivering them.
func NewDispatcher(store Store, sender Sender, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if sender == nil {
		sender = NewLogSender(logger)
	}
	return &Dispatcher{
		store:   store,
		sender:  sender,
		cfg:     cfg.withDefaults(),
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// PolicyFor returns the delivery policy for a user. Premium users get
// immediate delivery unless they opted into the digest; everyone else gets
// the daily digest.
func (d *Dispatcher) PolicyFor(u model.User) Policy {
	if u.EffectiveTier(d.now()) == model.TierPremium && u.Cadence != model.CadenceDigest {
		return Immediate{}
	}
	return DailyDigest{
		Hour:     d.cfg.DigestHour,
		Minute:   d.cfg.DigestMinute,
		Location: d.cfg.DigestLocation,
	}
}

// Enqueue persists one queue row per (intent, reason). Rows whose log key
// is already queued are ignored by the store, so re-running a cycle does
// not duplicate them.
func (d *Dispatcher) Enqueue(ctx context.Context, intents []model.Intent) (EnqueueResult, error) {
	res := EnqueueResult{Intents: len(intents)}
	if len(intents) == 0 {
		return res, nil
	}

	ids := make([]int64, 0, len(intents))
	seen := make(map[int64]bool)
	for _, in := range intents {
		if !seen[in.UserID] {
			seen[in.UserID] = true
			ids = append(ids, in.UserID)
		}
	}
	users, err := d.store.GetUsers(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("load users: %w", err)
	}

	now := d.now().UTC()
	immediate := make(map[int64]bool)
	var items []model.QueueItem
	for _, in := range intents {
		u, ok := users[in.UserID]
		if !ok {
			res.UnknownUsers++
			d.logger.Warn("Dropping intent for unknown user", "user_id", in.UserID, "game_id", in.Deal.GameID)
			continue
		}
		policy := d.PolicyFor(u)
		if !policy.Buffered() {
			immediate[u.ID] = true
		}
		deliverAt := policy.DeliverAt(now).UTC()
		for _, r := range in.Reasons {
			items = append(items, queueItem(in, r, deliverAt, now))
		}
	}

	if len(items) > 0 {
		n, err := d.store.Enqueue(ctx, items)
		if err != nil {
			return res, fmt.Errorf("enqueue notifications: %w", err)
		}
		res.Queued = n
		d.metrics.AddEnqueued(n)
	}
	for id := range immediate {
		res.Immediate = append(res.Immediate, id)
	}
	sort.Slice(res.Immediate, func(i, j int) bool { return res.Immediate[i] < res.Immediate[j] })
	return res, nil
}

func queueItem(in model.Intent, r model.Reason, deliverAt, now time.Time) model.QueueItem {
	deal := in.Deal
	return model.QueueItem{
		UserID:          in.UserID,
		GameID:          deal.GameID,
		Region:          deal.Region,
		OpenedAt:        deal.OpenedAt.UTC(),
		ReasonKey:       r.Key(),
		Reason:          r.Kind,
		RuleID:          r.RuleID,
		AlertKind:       r.AlertKind,
		Threshold:       r.Threshold,
		Event:           in.Event,
		Price:           deal.Price,
		ListPrice:       deal.ListPrice,
		OldPrice:        in.OldPrice,
		Currency:        deal.Currency,
		DiscountPercent: deal.DiscountPercent,
		SourceURL:       deal.SourceURL,
		Status:          model.QueuePending,
		DeliverAfter:    deliverAt,
		CreatedAt:       now,
	}
}
