package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oshri1997/Deal-Hunter/internal/alerts"
	"github.com/oshri1997/Deal-Hunter/internal/config"
	"github.com/oshri1997/Deal-Hunter/internal/db"
	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/normalize"
	"github.com/oshri1997/Deal-Hunter/internal/notifications"
	"github.com/oshri1997/Deal-Hunter/internal/reconcile"
	"github.com/oshri1997/Deal-Hunter/internal/store"
)

var (
	_ normalize.GameStore = (*Store)(nil)
	_ reconcile.Store     = (*Store)(nil)
	_ alerts.Store        = (*Store)(nil)
	_ notifications.Store = (*Store)(nil)
)

func TestAdvisoryKeyStable(t *testing.T) {
	if advisoryKey("region:US") != advisoryKey("region:US") {
		t.Fatalf("advisory key must be deterministic")
	}
	if advisoryKey("region:US") == advisoryKey("region:IL") {
		t.Fatalf("distinct regions should not share a key")
	}
}

func TestNotFoundMapping(t *testing.T) {
	if err := notFound(pgx.ErrNoRows, "game 1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("ErrNoRows should map to ErrNotFound, got %v", err)
	}
	if err := notFound(errors.New("boom"), "game 1"); errors.Is(err, store.ErrNotFound) {
		t.Fatalf("other errors must not map to ErrNotFound")
	}
}

// TestOpenDealLifecycle runs against a real database when
// DEALHUNTER_TEST_DATABASE_URL is set.
func TestOpenDealLifecycle(t *testing.T) {
	url := os.Getenv("DEALHUNTER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("DEALHUNTER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.New(ctx, &config.Config{
		DatabaseURL: url, DBPoolMinConns: 1, DBPoolMaxConns: 4,
		DBPoolMaxLife: time.Minute, AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	st := New(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	g, err := st.CreateGame(ctx, "Lifecycle Test "+now.Format(time.RFC3339Nano), "lifecycle test "+now.Format(time.RFC3339Nano), now)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	obs := model.PriceObservation{GameID: g.ID, Region: "US", Price: 1999, ListPrice: 3999,
		Currency: "USD", DiscountPercent: 50, ObservedAt: now}
	d, err := st.Apply(ctx, model.Transition{
		Kind: model.EventOpened, Observation: &obs,
		Deal: model.ActiveDeal{GameID: g.ID, Region: "US", Price: 1999, ListPrice: 3999,
			Currency: "USD", DiscountPercent: 50, OpenedAt: now, LastSeenAt: now},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// A second open for the same game and region violates the partial index.
	if _, err := st.Apply(ctx, model.Transition{Kind: model.EventOpened, Deal: d}); err == nil {
		t.Fatalf("expected duplicate open deal to fail")
	}
	closed, err := st.CloseStale(ctx, "US", now.Add(time.Second), nil, now.Add(time.Second))
	if err != nil {
		t.Fatalf("close stale: %v", err)
	}
	found := false
	for _, c := range closed {
		if c.ID == d.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("deal %d not closed", d.ID)
	}
}
