package tier

import (
	"errors"
	"testing"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/model"
)

func fixedPolicy(now time.Time) *Policy {
	p := NewPolicy(DefaultFree)
	p.now = func() time.Time { return now }
	return p
}

func TestFreeRegionLimit(t *testing.T) {
	p := fixedPolicy(time.Now())
	free := model.User{ID: 1, Tier: model.TierFree}

	if err := p.CanAddRegion(free, Usage{Regions: 1}); err != nil {
		t.Fatalf("second region should be allowed: %v", err)
	}
	err := p.CanAddRegion(free, Usage{Regions: 2})
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	var le *LimitError
	if !errors.As(err, &le) || le.Limit != 2 || le.Resource != ResourceRegions {
		t.Fatalf("unexpected limit error: %#v", err)
	}
}

func TestFreeWishlistAndAlertLimits(t *testing.T) {
	p := fixedPolicy(time.Now())
	free := model.User{ID: 1, Tier: model.TierFree}

	if err := p.CanAddWishlistEntry(free, Usage{Wishlist: 4}); err != nil {
		t.Fatalf("fifth wishlist entry should be allowed: %v", err)
	}
	if err := p.CanAddWishlistEntry(free, Usage{Wishlist: 5}); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("sixth wishlist entry should be denied, got %v", err)
	}
	if err := p.CanAddAlert(free, Usage{Alerts: 2}, 1); err != nil {
		t.Fatalf("third alert should be allowed: %v", err)
	}
	if err := p.CanAddAlert(free, Usage{Alerts: 2}, 2); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("two alerts on top of two should be denied, got %v", err)
	}
}

func TestPremiumUnlimited(t *testing.T) {
	p := fixedPolicy(time.Now())
	prem := model.User{ID: 2, Tier: model.TierPremium}
	big := Usage{Regions: 50, Wishlist: 500, Alerts: 500}

	if err := p.CanAddRegion(prem, big); err != nil {
		t.Fatalf("premium region denied: %v", err)
	}
	if err := p.CanAddWishlistEntry(prem, big); err != nil {
		t.Fatalf("premium wishlist denied: %v", err)
	}
	if err := p.CanAddAlert(prem, big, 9); err != nil {
		t.Fatalf("premium alert denied: %v", err)
	}
}

func TestLapsedPremiumFallsBackToFree(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	expired := now.Add(-24 * time.Hour)
	p := fixedPolicy(now)
	u := model.User{ID: 3, Tier: model.TierPremium, PremiumExpiresAt: &expired}

	if err := p.CanAddRegion(u, Usage{Regions: 2}); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("lapsed premium should get free limits, got %v", err)
	}
}

func TestLimitsValidate(t *testing.T) {
	if err := (Limits{Regions: -2}).Validate(); err == nil {
		t.Fatalf("expected invalid limit error")
	}
	if err := (Limits{Regions: Unlimited, Wishlist: 0, Alerts: 3}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
