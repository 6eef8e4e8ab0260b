// Package alerts matches deal events against wishlists and price alert rules
// and produces one notification intent per user per deal.
//
// Rules fire once per excursion below their threshold: a fired rule stays
// silent until the deal stops satisfying it (re-arm), after which it may
// fire again.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/model"
)

// Store is the subscription data the matcher reads and the rule state it
// writes.
type Store interface {
	// WishlistWatchers returns users with the game wishlisted who subscribe
	// to region.
	WishlistWatchers(ctx context.Context, gameID int64, region string) ([]int64, error)
	// RulesForDeal returns rules on the game scoped to region, or scoped to
	// all regions of a user subscribed to region.
	RulesForDeal(ctx context.Context, gameID int64, region string) ([]model.AlertRule, error)
	MarkRuleFired(ctx context.Context, ruleID string, at time.Time) error
	RearmRule(ctx context.Context, ruleID string) error
}

// Result is the outcome of matching one event. Fire and Rearm are rule
// state changes to apply with Commit once the intents are safely queued.
type Result struct {
	Intents []model.Intent
	Fire    []string
	Rearm   []string
}

// Merge appends other into r.
func (r *Result) Merge(other Result) {
	r.Intents = append(r.Intents, other.Intents...)
	r.Fire = append(r.Fire, other.Fire...)
	r.Rearm = append(r.Rearm, other.Rearm...)
}

// Matcher evaluates events.
type Matcher struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewMatcher creates a Matcher.
func NewMatcher(store Store, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{store: store, logger: logger, now: time.Now}
}

// Match evaluates one event. Opened and PriceChanged notify wishlists and
// alert rules. Unchanged only fires armed rules the standing price already
// satisfies, such as a rule created while the deal was open. Closed re-arms
// fired rules the closing price no longer satisfies.
func (m *Matcher) Match(ctx context.Context, ev model.DealEvent) (Result, error) {
	switch ev.Kind {
	case model.EventClosed:
		return m.rearmOnClose(ctx, ev)
	case model.EventOpened, model.EventPriceChanged, model.EventUnchanged:
	default:
		return Result{}, nil
	}

	deal := ev.Deal
	var watchers []int64
	if ev.Kind != model.EventUnchanged {
		var err error
		watchers, err = m.store.WishlistWatchers(ctx, deal.GameID, deal.Region)
		if err != nil {
			return Result{}, fmt.Errorf("wishlist watchers: %w", err)
		}
	}
	rules, err := m.store.RulesForDeal(ctx, deal.GameID, deal.Region)
	if err != nil {
		return Result{}, fmt.Errorf("rules for deal: %w", err)
	}

	var res Result
	byUser := make(map[int64]*model.Intent)
	intentFor := func(userID int64) *model.Intent {
		in, ok := byUser[userID]
		if !ok {
			in = &model.Intent{UserID: userID, Event: ev.Kind, Deal: deal, OldPrice: ev.OldPrice}
			byUser[userID] = in
		}
		return in
	}

	for _, uid := range watchers {
		in := intentFor(uid)
		in.Reasons = append(in.Reasons, model.Reason{Kind: model.ReasonWishlist})
	}

	for _, r := range rules {
		holds := r.Matches(deal.Price, deal.DiscountPercent)
		switch {
		case holds && r.Armed():
			in := intentFor(r.UserID)
			in.Reasons = append(in.Reasons, model.Reason{
				Kind:      model.ReasonAlert,
				RuleID:    r.ID,
				Excursion: r.Excursion,
				AlertKind: r.Kind,
				Threshold: r.Threshold,
			})
			res.Fire = append(res.Fire, r.ID)
		case holds:
			m.logger.Debug("Alert suppressed until re-armed", "rule_id", r.ID, "user_id", r.UserID)
		case !r.Armed():
			res.Rearm = append(res.Rearm, r.ID)
		}
	}

	users := make([]int64, 0, len(byUser))
	for uid := range byUser {
		users = append(users, uid)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	for _, uid := range users {
		res.Intents = append(res.Intents, *byUser[uid])
	}
	return res, nil
}

func (m *Matcher) rearmOnClose(ctx context.Context, ev model.DealEvent) (Result, error) {
	rules, err := m.store.RulesForDeal(ctx, ev.Deal.GameID, ev.Deal.Region)
	if err != nil {
		return Result{}, fmt.Errorf("rules for deal: %w", err)
	}
	var res Result
	for _, r := range rules {
		if r.Armed() {
			continue
		}
		// Closed by absence: the sale is over, so the condition is gone.
		if o := ev.Observation; o != nil && r.Matches(o.Price, o.DiscountPercent) {
			continue
		}
		res.Rearm = append(res.Rearm, r.ID)
	}
	return res, nil
}

// Commit applies the rule state changes of a result.
func (m *Matcher) Commit(ctx context.Context, res Result) error {
	now := m.now().UTC()
	for _, id := range res.Fire {
		if err := m.store.MarkRuleFired(ctx, id, now); err != nil {
			return fmt.Errorf("mark rule %s fired: %w", id, err)
		}
	}
	for _, id := range res.Rearm {
		if err := m.store.RearmRule(ctx, id); err != nil {
			return fmt.Errorf("re-arm rule %s: %w", id, err)
		}
	}
	return nil
}
