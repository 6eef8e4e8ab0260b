package cycle

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/alerts"
	"github.com/oshri1997/Deal-Hunter/internal/cache"
	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/normalize"
	"github.com/oshri1997/Deal-Hunter/internal/notifications"
	"github.com/oshri1997/Deal-Hunter/internal/reconcile"
	"github.com/oshri1997/Deal-Hunter/internal/store/memory"
)

var t1 = time.Date(2026, 4, 1, 2, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	msgs map[int64][]string
}

func (r *recorder) Send(_ context.Context, userID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[userID] = append(r.msgs[userID], text)
	return nil
}

func (r *recorder) count(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs[userID])
}

// source serves a fixed batch per region and records the pages asked for.
type source struct {
	mu    sync.Mutex
	rows  map[string][]model.RawObservation
	fail  map[string]error
	pages []int
}

func (s *source) Name() string { return "test" }

func (s *source) Fetch(_ context.Context, region string, pages int) ([]model.RawObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, pages)
	if err := s.fail[region]; err != nil {
		return nil, err
	}
	return s.rows[region], nil
}

type engine struct {
	st     *memory.Store
	sender *recorder
	src    *source
	cache  *cache.Cache
	runner *Runner
}

func newEngine(t *testing.T) engine {
	t.Helper()
	st := memory.New()
	sender := &recorder{msgs: map[int64][]string{}}
	src := &source{rows: map[string][]model.RawObservation{}, fail: map[string]error{}}
	c := cache.New(true)
	t.Cleanup(c.Close)

	runner := NewRunner(Deps{
		Source:     src,
		Normalizer: normalize.New(st, normalize.DefaultThreshold, nil),
		Reconciler: reconcile.New(st, 0, nil),
		Matcher:    alerts.NewMatcher(st, nil),
		Dispatcher: notifications.NewDispatcher(st, sender, notifications.DefaultConfig(), nil, nil),
		Locker:     st,
		Cache:      c,
	}, nil)
	return engine{st: st, sender: sender, src: src, cache: c, runner: runner}
}

func (e engine) premiumUser(t *testing.T, id int64, regions ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.st.UpsertUser(ctx, id, "", t1); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := e.st.SetTier(ctx, id, model.TierPremium, nil); err != nil {
		t.Fatalf("set tier: %v", err)
	}
	for _, r := range regions {
		if _, err := e.st.AddUserRegion(ctx, id, r, t1); err != nil {
			t.Fatalf("add region: %v", err)
		}
	}
}

func (e engine) wishlist(t *testing.T, userID int64, title string) model.Game {
	t.Helper()
	ctx := context.Background()
	g, err := e.st.CreateGame(ctx, title, normalize.Fold(title), t1)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if _, err := e.st.AddWishlist(ctx, userID, g.ID, t1); err != nil {
		t.Fatalf("add wishlist: %v", err)
	}
	return g
}

func raw(title, price string, discount int, at time.Time) model.RawObservation {
	return model.RawObservation{
		Title:           title,
		PriceText:       price,
		DiscountPercent: &discount,
		Currency:        "USD",
		RegionCode:      "US",
		URL:             "https://store.example/" + strings.ReplaceAll(strings.ToLower(title), " ", "-"),
		ScrapedAt:       at,
	}
}

func TestWishlistOpenThenCloseNotifiesOnce(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.premiumUser(t, 1, "US")
	e.wishlist(t, 1, "Elden Ring")

	res, err := e.runner.Ingest(ctx, "US", []model.RawObservation{raw("Elden Ring", "$29.99", 50, t1)})
	if err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	if res.Opened != 1 || res.Delivered != 1 {
		t.Fatalf("cycle 1: %s", res.Summary())
	}

	res, err = e.runner.Ingest(ctx, "US", []model.RawObservation{raw("Elden Ring", "$59.99", 0, t1.Add(24*time.Hour))})
	if err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if res.Closed != 1 || res.Intents != 0 {
		t.Fatalf("cycle 2: %s", res.Summary())
	}
	if got := e.sender.count(1); got != 1 {
		t.Fatalf("sent %d notifications, want 1", got)
	}
}

func TestReplayIsIdempotent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.premiumUser(t, 1, "US")
	e.wishlist(t, 1, "Elden Ring")
	batch := []model.RawObservation{
		raw("Elden Ring", "$29.99", 50, t1),
		raw("Hades", "$12.49", 50, t1),
	}

	for i := 0; i < 3; i++ {
		if _, err := e.runner.Ingest(ctx, "US", batch); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if got := e.st.ObservationCount(); got != 2 {
		t.Fatalf("observations = %d, want 2", got)
	}
	deals, total, err := e.st.ListDeals(ctx, []string{"US"}, 0, 10)
	if err != nil || total != 2 || len(deals) != 2 {
		t.Fatalf("ListDeals = %d, %d, %v", len(deals), total, err)
	}
	if got := e.sender.count(1); got != 1 {
		t.Fatalf("sent %d notifications, want 1", got)
	}
}

func TestDiscountAlertFiresOncePerExcursion(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.premiumUser(t, 1, "US")
	g, err := e.st.CreateGame(ctx, "Elden Ring", "elden ring", t1)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	rule := model.AlertRule{ID: "r1", UserID: 1, GameID: g.ID, Kind: model.AlertDiscountPercent, Threshold: 50, CreatedAt: t1}
	if err := e.st.AddAlertRules(ctx, []model.AlertRule{rule}); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	steps := []struct {
		price    string
		discount int
		want     int
	}{
		{"$26.99", 55, 1},
		{"$26.99", 55, 1}, // unchanged
		{"$35.99", 40, 1}, // below threshold: re-arms
		{"$23.99", 60, 2}, // new excursion
	}
	for i, s := range steps {
		at := t1.Add(time.Duration(i) * time.Hour)
		if _, err := e.runner.Ingest(ctx, "US", []model.RawObservation{raw("Elden Ring", s.price, s.discount, at)}); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got := e.sender.count(1); got != s.want {
			t.Fatalf("step %d: sent %d, want %d", i, got, s.want)
		}
	}
}

func TestRuleAddedDuringOpenDealFiresOnNextCycle(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.premiumUser(t, 1, "US")

	res, err := e.runner.Ingest(ctx, "US", []model.RawObservation{raw("Elden Ring", "$26.99", 55, t1)})
	if err != nil || res.Opened != 1 {
		t.Fatalf("open: %s %v", res.Summary(), err)
	}
	games, err := e.st.ListGames(ctx)
	if err != nil || len(games) != 1 {
		t.Fatalf("ListGames = %+v, %v", games, err)
	}
	rule := model.AlertRule{ID: "r1", UserID: 1, GameID: games[0].ID, Region: "US", Kind: model.AlertDiscountPercent, Threshold: 50, CreatedAt: t1}
	if err := e.st.AddAlertRules(ctx, []model.AlertRule{rule}); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	for i := 1; i <= 3; i++ {
		at := t1.Add(time.Duration(i) * time.Hour)
		res, err := e.runner.Ingest(ctx, "US", []model.RawObservation{raw("Elden Ring", "$26.99", 55, at)})
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		if res.Unchanged != 1 {
			t.Fatalf("cycle %d: %s", i, res.Summary())
		}
		if got := e.sender.count(1); got != 1 {
			t.Fatalf("cycle %d: sent %d, want 1", i, got)
		}
	}
}

func TestCycleSeesGamesCreatedElsewhere(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	if _, err := e.runner.Ingest(ctx, "US", []model.RawObservation{raw("Hades", "$12.49", 50, t1)}); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	// Another process adds a game after the index was built.
	g, err := e.st.CreateGame(ctx, "Hogwarts Legacy", normalize.Fold("Hogwarts Legacy"), t1)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	res, err := e.runner.Ingest(ctx, "US", []model.RawObservation{raw("Hogwarts Legacy PS5", "$29.99", 50, t1.Add(time.Hour))})
	if err != nil || res.Opened != 1 {
		t.Fatalf("second cycle: %s %v", res.Summary(), err)
	}
	games, err := e.st.ListGames(ctx)
	if err != nil {
		t.Fatalf("ListGames: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("variant title created a duplicate game: %+v", games)
	}
	deals, _, err := e.st.ListDeals(ctx, []string{"US"}, 0, 10)
	if err != nil {
		t.Fatalf("ListDeals: %v", err)
	}
	found := false
	for _, d := range deals {
		if d.GameID == g.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("deal not attached to game %d: %+v", g.ID, deals)
	}
}

func TestFreeUserWaitsForDigest(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	if _, err := e.st.UpsertUser(ctx, 2, "", t1); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	e.st.AddUserRegion(ctx, 2, "US", t1)
	e.wishlist(t, 2, "Elden Ring")

	res, err := e.runner.Ingest(ctx, "US", []model.RawObservation{raw("Elden Ring", "$29.99", 50, t1)})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Queued != 1 || res.Delivered != 0 || e.sender.count(2) != 0 {
		t.Fatalf("free user notified immediately: %s", res.Summary())
	}
	if e.st.QueueLen() != 1 {
		t.Fatalf("queue = %d, want 1", e.st.QueueLen())
	}
}

func TestDroppedRowsDoNotAbortCycle(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	bad := raw("Broken", "free!", 50, t1)
	res, err := e.runner.Ingest(ctx, "US", []model.RawObservation{bad, raw("Hades", "$12.49", 50, t1)})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Dropped != 1 || res.Opened != 1 {
		t.Fatalf("unexpected result: %s", res.Summary())
	}
}

func TestCycleInvalidatesListingCache(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.cache.Set(cache.DealsKey("US", 0, 20), []byte("[]"), cache.TTLDeals)
	e.cache.Set(cache.DealsKey("IL", 0, 20), []byte("[]"), cache.TTLDeals)

	if _, err := e.runner.Ingest(ctx, "US", []model.RawObservation{raw("Hades", "$12.49", 50, t1)}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, _, ok := e.cache.Get(cache.DealsKey("US", 0, 20)); ok {
		t.Fatalf("US listing still cached")
	}
	if _, _, ok := e.cache.Get(cache.DealsKey("IL", 0, 20)); !ok {
		t.Fatalf("IL listing should be untouched")
	}
}

func TestRunAllIsolatesRegionFailures(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.src.rows["US"] = []model.RawObservation{raw("Hades", "$12.49", 50, t1)}
	e.src.fail["IL"] = errors.New("storefront down")

	results, err := e.runner.RunAll(ctx, []string{"US", "IL"}, 2)
	if err == nil || !strings.Contains(err.Error(), "storefront down") {
		t.Fatalf("err = %v, want IL failure", err)
	}
	if len(results) != 2 || results[0].Opened != 1 {
		t.Fatalf("US result = %+v", results[0])
	}
	for _, p := range e.src.pages {
		if p != 2 {
			t.Fatalf("pages = %v", e.src.pages)
		}
	}
}

func TestIngestAllSplitsRegions(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	il := raw("Hades", "₪39.90", 50, t1)
	il.RegionCode, il.Currency = "il", "ILS"
	unknown := raw("Hades", "$1", 50, t1)
	unknown.RegionCode = "XX"

	results, err := e.runner.IngestAll(ctx, []model.RawObservation{raw("Hades", "$12.49", 50, t1), il, unknown})
	if err != nil {
		t.Fatalf("IngestAll: %v", err)
	}
	if len(results) != 2 || results[0].Region != "IL" || results[1].Region != "US" {
		t.Fatalf("results = %+v", results)
	}
}

func TestRegionCyclesSerialised(t *testing.T) {
	e := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())

	release, err := e.runner.acquire(ctx, "US")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := e.runner.Ingest(ctx, "US", nil)
		done <- err
	}()
	select {
	case <-done:
		t.Fatalf("second cycle ran while the region was held")
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want cancelled", err)
	}
	release()
}

func TestUnknownRegion(t *testing.T) {
	e := newEngine(t)
	if _, err := e.runner.Ingest(context.Background(), "XX", nil); err == nil {
		t.Fatalf("expected error")
	}
}
