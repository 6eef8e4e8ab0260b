// Package tier enforces per-tier membership limits. All checks are pure:
// callers load the user's current usage and ask before mutating.
package tier

import (
	"errors"
	"fmt"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/model"
)

// ErrLimitExceeded is matched by every *LimitError.
var ErrLimitExceeded = errors.New("limit exceeded")

// Unlimited disables a limit.
const Unlimited = -1

// Resource names a bounded membership.
type Resource string

const (
	ResourceRegions  Resource = "regions"
	ResourceWishlist Resource = "wishlist"
	ResourceAlerts   Resource = "alerts"
)

// LimitError is returned when a mutation would exceed the tier's limit.
type LimitError struct {
	Tier     model.Tier
	Resource Resource
	Limit    int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s tier allows at most %d %s; upgrade to premium for unlimited",
		e.Tier, e.Limit, e.Resource)
}

func (e *LimitError) Is(target error) bool { return target == ErrLimitExceeded }

// Limits bounds one tier. Unlimited (-1) disables a bound.
type Limits struct {
	Regions  int
	Wishlist int
	Alerts   int
}

// Usage is a user's current membership counts.
type Usage struct {
	Regions  int `json:"regions"`
	Wishlist int `json:"wishlist"`
	Alerts   int `json:"alerts"`
}

// Policy maps tiers to limits.
type Policy struct {
	limits map[model.Tier]Limits
	now    func() time.Time
}

// DefaultFree is the free tier's default limits.
var DefaultFree = Limits{Regions: 2, Wishlist: 5, Alerts: 3}

// NewPolicy builds a policy with the given free-tier limits. Premium is
// unlimited.
func NewPolicy(free Limits) *Policy {
	return &Policy{
		limits: map[model.Tier]Limits{
			model.TierFree:    free,
			model.TierPremium: {Regions: Unlimited, Wishlist: Unlimited, Alerts: Unlimited},
		},
		now: time.Now,
	}
}

// Validate rejects negative limits other than Unlimited.
func (l Limits) Validate() error {
	for name, v := range map[string]int{"regions": l.Regions, "wishlist": l.Wishlist, "alerts": l.Alerts} {
		if v < Unlimited {
			return fmt.Errorf("invalid %s limit %d", name, v)
		}
	}
	return nil
}

// LimitsFor returns the limits in force for a user right now.
func (p *Policy) LimitsFor(u model.User) (model.Tier, Limits) {
	t := u.EffectiveTier(p.now())
	return t, p.limits[t]
}

// CanAddRegion returns nil when the user may subscribe to one more region.
func (p *Policy) CanAddRegion(u model.User, usage Usage) error {
	t, l := p.LimitsFor(u)
	return check(t, ResourceRegions, l.Regions, usage.Regions)
}

// CanAddWishlistEntry returns nil when the user may add one more wishlist game.
func (p *Policy) CanAddWishlistEntry(u model.User, usage Usage) error {
	t, l := p.LimitsFor(u)
	return check(t, ResourceWishlist, l.Wishlist, usage.Wishlist)
}

// CanAddAlert returns nil when the user may add n more alert rules.
func (p *Policy) CanAddAlert(u model.User, usage Usage, n int) error {
	t, l := p.LimitsFor(u)
	if n < 1 {
		n = 1
	}
	return check(t, ResourceAlerts, l.Alerts, usage.Alerts+n-1)
}

func check(t model.Tier, r Resource, limit, current int) error {
	if limit == Unlimited || current < limit {
		return nil
	}
	return &LimitError{Tier: t, Resource: r, Limit: limit}
}
