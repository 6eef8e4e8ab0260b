package normalize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/region"
)

func TestParsePrice(t *testing.T) {
	cases := []struct {
		text   string
		region string
		code   string
		want   int64
	}{
		{"$29.99", "US", "USD", 2999},
		{"₹1,499.00", "IN", "INR", 149900},
		{"₪ 149.90", "IL", "ILS", 14990},
		{"59,99 €", "DE", "EUR", 5999},
		{"1.299,00 €", "DE", "EUR", 129900},
		{"1 299,00 €", "FR", "EUR", 129900},
		{"R$ 199,90", "BR", "BRL", 19990},
		{"¥1,980", "JP", "JPY", 1980},
		{"$30", "US", "USD", 3000},
		{".99", "US", "USD", 99},
	}
	for _, tc := range cases {
		got, err := ParsePrice(tc.text, region.MustLookup(tc.region), tc.code)
		if err != nil {
			t.Fatalf("ParsePrice(%q): %v", tc.text, err)
		}
		if got != tc.want {
			t.Fatalf("ParsePrice(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestParsePriceRejects(t *testing.T) {
	us := region.MustLookup("US")
	for _, text := range []string{"", "Free", "Included", "-$5.00", "1.2.3"} {
		if _, err := ParsePrice(text, us, "USD"); err == nil {
			t.Fatalf("expected error for %q", text)
		}
	}
	if _, err := ParsePrice("$5", us, "NOPE"); err == nil {
		t.Fatalf("expected unknown currency error")
	}
}

func TestDiscountDerivation(t *testing.T) {
	if got := discountOf(2999, 5999); got != 50 {
		t.Fatalf("discountOf = %d, want 50", got)
	}
	if got := discountOf(5999, 5999); got != 0 {
		t.Fatalf("discountOf = %d, want 0", got)
	}
	if got := listFromDiscount(3000, 50); got != 6000 {
		t.Fatalf("listFromDiscount = %d, want 6000", got)
	}
}

func TestFold(t *testing.T) {
	cases := map[string]string{
		"ELDEN RING™":             "elden ring",
		"  Elden   Ring ":         "elden ring",
		"God of War Ragnarök":     "god of war ragnarok",
		"Marvel’s Spider-Man 2":   "marvels spider man 2",
		"Marvel's Spider-Man 2":   "marvels spider man 2",
		"FINAL FANTASY VII REBIRTH": "final fantasy vii rebirth",
	}
	for in, want := range cases {
		if got := Fold(in); got != want {
			t.Fatalf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTokenSetRatio(t *testing.T) {
	if r := TokenSetRatio("ring elden", "elden ring"); r != 1 {
		t.Fatalf("reordered tokens should score 1, got %f", r)
	}
	if r := TokenSetRatio("hogwarts legacy ps5", "hogwarts legacy"); r != 1 {
		t.Fatalf("platform suffix should be ignored, got %f", r)
	}
	if r := TokenSetRatio("elden ring", "elden ring shadow of the erdtree"); r >= DefaultThreshold {
		t.Fatalf("expansion should not match base game, got %f", r)
	}
	if r := TokenSetRatio("", "elden ring"); r != 0 {
		t.Fatalf("empty title should score 0, got %f", r)
	}
}

func TestResolve(t *testing.T) {
	older := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	games := []model.Game{
		{ID: 1, Title: "Elden Ring", UpdatedAt: older},
		{ID: 2, Title: "Elden Ring Shadow of the Erdtree", UpdatedAt: older},
		{ID: 3, Title: "Cyberpunk 2077", Aliases: []string{"Cyberpunk 2077: Ultimate Edition"}, UpdatedAt: older},
	}

	m, ok := Resolve("ELDEN RING™", games, DefaultThreshold)
	if !ok || m.Game.ID != 1 || !m.Exact {
		t.Fatalf("expected exact match on game 1, got %+v ok=%v", m, ok)
	}

	m, ok = Resolve("Cyberpunk 2077 - Ultimate Edition", games, DefaultThreshold)
	if !ok || m.Game.ID != 3 || !m.Exact {
		t.Fatalf("expected alias match on game 3, got %+v ok=%v", m, ok)
	}

	m, ok = Resolve("Eldenn Ring", games, DefaultThreshold)
	if !ok || m.Game.ID != 1 || m.Exact {
		t.Fatalf("expected fuzzy match on game 1, got %+v ok=%v", m, ok)
	}

	if _, ok := Resolve("Astro Bot", games, DefaultThreshold); ok {
		t.Fatalf("expected no match for unrelated title")
	}

	// Equal scores: the most recently updated game wins.
	tied := []model.Game{
		{ID: 10, Title: "Tekken 8", UpdatedAt: older},
		{ID: 11, Title: "tekken 8", UpdatedAt: newer},
	}
	m, _ = Resolve("Tekken 8", tied, DefaultThreshold)
	if m.Game.ID != 11 {
		t.Fatalf("expected most recently updated game, got %d", m.Game.ID)
	}
}

// --------------------------------------------------------------------------
// Normalizer with a fake catalog
// --------------------------------------------------------------------------

type fakeGames struct {
	games  []model.Game
	nextID int64
}

func (f *fakeGames) ListGames(context.Context) ([]model.Game, error) {
	return append([]model.Game(nil), f.games...), nil
}

func (f *fakeGames) CreateGame(_ context.Context, title, folded string, at time.Time) (model.Game, error) {
	for _, g := range f.games {
		if Fold(g.Title) == folded {
			return g, nil
		}
	}
	f.nextID++
	g := model.Game{ID: f.nextID, Title: title, CreatedAt: at, UpdatedAt: at}
	f.games = append(f.games, g)
	return g, nil
}

func (f *fakeGames) SaveAliases(_ context.Context, id int64, aliases []string, at time.Time) error {
	for i := range f.games {
		if f.games[i].ID == id {
			f.games[i].Aliases = append([]string(nil), aliases...)
			f.games[i].UpdatedAt = at
			return nil
		}
	}
	return errors.New("no such game")
}

func intPtr(v int) *int { return &v }

func TestNormalizeBatch(t *testing.T) {
	store := &fakeGames{}
	n := New(store, 0, nil)
	at := time.Date(2026, 2, 1, 2, 0, 0, 0, time.UTC)

	res, err := n.NormalizeBatch(context.Background(), []model.RawObservation{
		{Title: "Elden Ring", PriceText: "$29.99", ListPriceText: "$59.99", RegionCode: "US", ScrapedAt: at},
		{Title: "ELDEN RING™", PriceText: "₪99.90", DiscountPercent: intPtr(50), RegionCode: "IL", ScrapedAt: at},
		{Title: "Eldenn Ring", PriceText: "₹1,499.00", RegionCode: "IN", ScrapedAt: at},
		{Title: "Broken", PriceText: "Free", RegionCode: "US", ScrapedAt: at},
		{Title: "Nowhere", PriceText: "$1", RegionCode: "ZZ", ScrapedAt: at},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Observations) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(res.Observations))
	}
	if len(res.Dropped) != 2 {
		t.Fatalf("expected 2 dropped, got %d", len(res.Dropped))
	}
	for _, d := range res.Dropped {
		if !errors.Is(d, ErrParse) {
			t.Fatalf("dropped error should match ErrParse: %v", d)
		}
	}
	if len(store.games) != 1 {
		t.Fatalf("expected all titles to resolve to one game, got %d", len(store.games))
	}

	us := res.Observations[0]
	if us.Price != 2999 || us.ListPrice != 5999 || us.DiscountPercent != 50 || us.Currency != "USD" {
		t.Fatalf("unexpected US observation: %+v", us)
	}
	il := res.Observations[1]
	if il.Price != 9990 || il.ListPrice != 19980 || il.DiscountPercent != 50 || il.Currency != "ILS" {
		t.Fatalf("unexpected IL observation: %+v", il)
	}
	in := res.Observations[2]
	if in.DiscountPercent != 0 || in.ListPrice != in.Price {
		t.Fatalf("unexpected IN observation: %+v", in)
	}

	// The fuzzy-matched spelling was recorded as an alias, the exact one was not.
	aliases := store.games[0].Aliases
	if len(aliases) != 1 || aliases[0] != "Eldenn Ring" {
		t.Fatalf("unexpected aliases: %v", aliases)
	}
}

func TestResolveTitleWithoutCreate(t *testing.T) {
	store := &fakeGames{}
	n := New(store, 0, nil)
	_, found, err := n.ResolveTitle(context.Background(), "Astro Bot", false)
	if err != nil || found {
		t.Fatalf("expected not found without error, got found=%v err=%v", found, err)
	}
	if len(store.games) != 0 {
		t.Fatalf("lookup must not create games")
	}
}
