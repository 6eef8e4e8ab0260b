package membership

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/normalize"
	"github.com/oshri1997/Deal-Hunter/internal/store/memory"
	"github.com/oshri1997/Deal-Hunter/internal/tier"
)

var now = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	svc := New(st, tier.NewPolicy(tier.DefaultFree), normalize.New(st, normalize.DefaultThreshold, nil), nil)
	svc.now = func() time.Time { return now }
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("rule-%d", n)
	}
	if _, err := svc.Register(context.Background(), 1, "ada"); err != nil {
		t.Fatalf("register: %v", err)
	}
	return svc, st
}

func TestAddRegionLimitAndIdempotence(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	for _, code := range []string{"us", "IL"} {
		if added, err := svc.AddRegion(ctx, 1, code); err != nil || !added {
			t.Fatalf("AddRegion(%s) = %v, %v", code, added, err)
		}
	}
	// Re-adding at the limit is not an error.
	if added, err := svc.AddRegion(ctx, 1, "US"); err != nil || added {
		t.Fatalf("re-add = %v, %v", added, err)
	}
	_, err := svc.AddRegion(ctx, 1, "GB")
	if !errors.Is(err, tier.ErrLimitExceeded) {
		t.Fatalf("third region err = %v, want limit", err)
	}
	if _, err := svc.AddRegion(ctx, 1, "XX"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("unknown region err = %v", err)
	}
	if _, err := svc.AddRegion(ctx, 99, "US"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown user err = %v", err)
	}
}

func TestPremiumIsUnlimitedUntilExpiry(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	// Tier expiry is evaluated against the wall clock.
	expires := time.Now().Add(time.Hour)
	if err := svc.SetTier(ctx, 1, "premium", &expires); err != nil {
		t.Fatalf("SetTier: %v", err)
	}
	for _, code := range []string{"US", "IL", "GB"} {
		if _, err := svc.AddRegion(ctx, 1, code); err != nil {
			t.Fatalf("AddRegion(%s): %v", code, err)
		}
	}

	expired := time.Now().Add(-time.Hour)
	if err := svc.SetTier(ctx, 1, "premium", &expired); err != nil {
		t.Fatalf("SetTier: %v", err)
	}
	p, err := svc.Profile(ctx, 1)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.User.Tier != model.TierPremium || p.EffectiveTier != model.TierFree || len(p.Regions) != 3 {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if _, err := svc.AddRegion(ctx, 1, "FR"); !errors.Is(err, tier.ErrLimitExceeded) {
		t.Fatalf("expired premium err = %v, want limit", err)
	}
	if err := svc.SetTier(ctx, 1, "gold", nil); !errors.Is(err, ErrInvalid) {
		t.Fatalf("bad tier err = %v", err)
	}
}

func TestWishlistCreatesGameAndDedupes(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	g, added, err := svc.AddToWishlist(ctx, 1, "Elden Ring")
	if err != nil || !added {
		t.Fatalf("AddToWishlist = %v, %v", added, err)
	}
	g2, added, err := svc.AddToWishlist(ctx, 1, "ELDEN RING (PS5)")
	if err != nil || added || g2.ID != g.ID {
		t.Fatalf("second add = %+v, %v, %v", g2, added, err)
	}
	entries, err := svc.Wishlist(ctx, 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("Wishlist = %+v, %v", entries, err)
	}
	if _, _, err := svc.AddToWishlist(ctx, 1, "  "); !errors.Is(err, ErrInvalid) {
		t.Fatalf("empty title err = %v", err)
	}
}

func TestWishlistLimit(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	titles := []string{"Elden Ring", "Hades", "Celeste", "Hollow Knight", "Returnal"}
	for _, title := range titles {
		if _, _, err := svc.AddToWishlist(ctx, 1, title); err != nil {
			t.Fatalf("add %q: %v", title, err)
		}
	}
	_, _, err := svc.AddToWishlist(ctx, 1, "Astro Bot")
	var le *tier.LimitError
	if !errors.As(err, &le) || le.Resource != tier.ResourceWishlist {
		t.Fatalf("err = %v, want wishlist limit", err)
	}
}

func TestAddAlertRequiresKnownGame(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.AddAlert(ctx, 1, AlertRequest{Title: "Elden Ring", Kind: "discount_percent", Threshold: "50"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestAddAlertAbsoluteExpandsPerRegion(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	g, _ := st.CreateGame(ctx, "Elden Ring", "elden ring", now)
	svc.AddRegion(ctx, 1, "US")
	svc.AddRegion(ctx, 1, "IL")

	rules, err := svc.AddAlert(ctx, 1, AlertRequest{GameID: g.ID, Region: "all", Kind: "absolute_price", Threshold: "30"})
	if err != nil {
		t.Fatalf("AddAlert: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}
	got := map[string]int64{}
	for _, r := range rules {
		got[r.Region] = r.Threshold
	}
	if got["US"] != 3000 || got["IL"] != 3000 {
		t.Fatalf("thresholds = %v", got)
	}
	req := AlertRequest{GameID: g.ID, Region: "all", Kind: "absolute_price", Threshold: "30"}
	if regions, ok := ExpandedScope(req, rules); !ok || len(regions) != 2 {
		t.Fatalf("ExpandedScope = %v, %v", regions, ok)
	}
	if _, ok := ExpandedScope(AlertRequest{Region: "US", Kind: "absolute_price"}, rules[:1]); ok {
		t.Fatalf("single-region request reported as expanded")
	}
	if _, ok := ExpandedScope(AlertRequest{Kind: "discount_percent"}, rules); ok {
		t.Fatalf("discount request reported as expanded")
	}

	// Two of three free alerts are used; another expanding rule needs two.
	_, err = svc.AddAlert(ctx, 1, AlertRequest{GameID: g.ID, Kind: "absolute_price", Threshold: "20"})
	if !errors.Is(err, tier.ErrLimitExceeded) {
		t.Fatalf("err = %v, want limit", err)
	}
	if _, err := svc.AddAlert(ctx, 1, AlertRequest{GameID: g.ID, Kind: "discount_percent", Threshold: "60%"}); err != nil {
		t.Fatalf("discount alert: %v", err)
	}
}

func TestAddAlertValidation(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	g, _ := st.CreateGame(ctx, "Hades", "hades", now)

	cases := []struct {
		name string
		req  AlertRequest
	}{
		{"kind", AlertRequest{GameID: g.ID, Kind: "cheap", Threshold: "1"}},
		{"discount zero", AlertRequest{GameID: g.ID, Kind: "discount_percent", Threshold: "0"}},
		{"discount over", AlertRequest{GameID: g.ID, Kind: "discount_percent", Threshold: "101"}},
		{"price text", AlertRequest{GameID: g.ID, Region: "US", Kind: "absolute_price", Threshold: "cheap"}},
		{"price negative", AlertRequest{GameID: g.ID, Region: "US", Kind: "absolute_price", Threshold: "-1"}},
		{"region", AlertRequest{GameID: g.ID, Region: "ZZ", Kind: "discount_percent", Threshold: "10"}},
		{"no regions", AlertRequest{GameID: g.ID, Kind: "absolute_price", Threshold: "10"}},
		{"no game", AlertRequest{Kind: "discount_percent", Threshold: "10"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.AddAlert(ctx, 1, tc.req); !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want invalid", err)
			}
		})
	}
}

func TestRemoveAlertOnlyOwnRules(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	g, _ := st.CreateGame(ctx, "Hades", "hades", now)
	svc.Register(ctx, 2, "bob")

	rules, err := svc.AddAlert(ctx, 1, AlertRequest{GameID: g.ID, Kind: "discount_percent", Threshold: "50"})
	if err != nil {
		t.Fatalf("AddAlert: %v", err)
	}
	if ok, _ := svc.RemoveAlert(ctx, 2, rules[0].ID); ok {
		t.Fatalf("another user removed the rule")
	}
	if ok, _ := svc.RemoveAlert(ctx, 1, rules[0].ID); !ok {
		t.Fatalf("owner could not remove the rule")
	}
}

func TestDealsWithoutRegions(t *testing.T) {
	svc, _ := newService(t)
	deals, total, err := svc.Deals(context.Background(), 1, 0, 10)
	if err != nil || total != 0 || len(deals) != 0 {
		t.Fatalf("Deals = %v, %d, %v", deals, total, err)
	}
}

func TestSetCadence(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	if err := svc.SetCadence(ctx, 1, "Digest"); err != nil {
		t.Fatalf("SetCadence: %v", err)
	}
	u, _ := st.GetUser(ctx, 1)
	if u.Cadence != model.CadenceDigest {
		t.Fatalf("cadence = %q", u.Cadence)
	}
	if err := svc.SetCadence(ctx, 1, "hourly"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v", err)
	}
}
