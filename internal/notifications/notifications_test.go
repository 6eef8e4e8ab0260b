package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/store/memory"
)

var t0 = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

type sent struct {
	userID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
	fail map[int64]error
}

func (f *fakeSender) Send(_ context.Context, userID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[userID]; err != nil {
		return err
	}
	f.msgs = append(f.msgs, sent{userID, text})
	return nil
}

func (f *fakeSender) count(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.msgs {
		if m.userID == userID {
			n++
		}
	}
	return n
}

type harness struct {
	st     *memory.Store
	sender *fakeSender
	d      *Dispatcher
	clock  *time.Time
	game   model.Game
}

func newHarness(t *testing.T, cfg Config) harness {
	t.Helper()
	st := memory.New()
	g, err := st.CreateGame(context.Background(), "Elden Ring", "elden ring", t0)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	sender := &fakeSender{fail: map[int64]error{}}
	d := NewDispatcher(st, sender, cfg, nil, nil)
	clock := t0
	d.now = func() time.Time { return clock }
	return harness{st: st, sender: sender, d: d, clock: &clock, game: g}
}

func (h harness) user(t *testing.T, id int64, tier model.Tier) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.st.UpsertUser(ctx, id, fmt.Sprintf("user%d", id), t0); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if tier == model.TierPremium {
		if err := h.st.SetTier(ctx, id, tier, nil); err != nil {
			t.Fatalf("set tier: %v", err)
		}
	}
}

func (h harness) intent(userID, gameID int64, price int64, reasons ...model.Reason) model.Intent {
	if len(reasons) == 0 {
		reasons = []model.Reason{{Kind: model.ReasonWishlist}}
	}
	return model.Intent{
		UserID: userID,
		Event:  model.EventOpened,
		Deal: model.ActiveDeal{
			ID: gameID, GameID: gameID, Region: "US", Price: price, ListPrice: 5999,
			Currency: "USD", DiscountPercent: 50, OpenedAt: t0,
		},
		Reasons: reasons,
	}
}

func TestPolicyFor(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	past := t0.Add(-time.Hour)
	cases := []struct {
		name     string
		user     model.User
		buffered bool
	}{
		{"free", model.User{Tier: model.TierFree}, true},
		{"premium", model.User{Tier: model.TierPremium, Cadence: model.CadenceInstant}, false},
		{"premium digest", model.User{Tier: model.TierPremium, Cadence: model.CadenceDigest}, true},
		{"premium expired", model.User{Tier: model.TierPremium, PremiumExpiresAt: &past}, true},
	}
	for _, tc := range cases {
		if got := h.d.PolicyFor(tc.user).Buffered(); got != tc.buffered {
			t.Fatalf("%s: buffered = %v, want %v", tc.name, got, tc.buffered)
		}
	}
}

func TestDailyDigestDeliverAt(t *testing.T) {
	p := DailyDigest{Hour: 9, Location: time.UTC}
	cases := []struct {
		now, want time.Time
	}{
		{time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)},
		{time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)},
		{time.Date(2026, 4, 1, 9, 0, 1, 0, time.UTC), time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := p.DeliverAt(tc.now); !got.Equal(tc.want) {
			t.Fatalf("DeliverAt(%s) = %s, want %s", tc.now, got, tc.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("18:30")
	if err != nil || h != 18 || m != 30 {
		t.Fatalf("ParseClock = %d %d %v", h, m, err)
	}
	if _, _, err := ParseClock("25:00"); err == nil {
		t.Fatalf("expected error for invalid clock")
	}
}

func TestPremiumDeliveredOnceAcrossRepeatedCycles(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	h.user(t, 1, model.TierPremium)
	in := h.intent(1, h.game.ID, 2999)

	for cycle := 0; cycle < 3; cycle++ {
		res, err := h.d.Enqueue(ctx, []model.Intent{in})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		if len(res.Immediate) != 1 || res.Immediate[0] != 1 {
			t.Fatalf("premium user should be flushed immediately: %+v", res)
		}
		if _, err := h.d.Flush(ctx, res.Immediate); err != nil {
			t.Fatalf("flush: %v", err)
		}
	}
	if n := h.sender.count(1); n != 1 {
		t.Fatalf("expected exactly one notification, got %d", n)
	}
	if q := h.st.Queued(); len(q) != 0 {
		t.Fatalf("queue should be drained, got %+v", q)
	}
	if !strings.Contains(h.sender.msgs[0].text, "Elden Ring") {
		t.Fatalf("message missing title: %q", h.sender.msgs[0].text)
	}
}

func TestEnqueueDedupesQueuedKey(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	h.user(t, 1, model.TierFree)
	in := h.intent(1, h.game.ID, 2999)

	first, err := h.d.Enqueue(ctx, []model.Intent{in})
	if err != nil || first.Queued != 1 {
		t.Fatalf("first enqueue: %+v %v", first, err)
	}
	second, err := h.d.Enqueue(ctx, []model.Intent{in})
	if err != nil || second.Queued != 0 {
		t.Fatalf("second enqueue: %+v %v", second, err)
	}
}

func TestEnqueueUnknownUser(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	res, err := h.d.Enqueue(context.Background(), []model.Intent{h.intent(99, h.game.ID, 2999)})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if res.UnknownUsers != 1 || res.Queued != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestDigestWaitsForDigestTime(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	h.user(t, 1, model.TierFree)
	other, _ := h.st.CreateGame(ctx, "Hades", "hades", t0)

	_, err := h.d.Enqueue(ctx, []model.Intent{
		h.intent(1, h.game.ID, 2999),
		h.intent(1, other.ID, 1249),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := h.d.Flush(ctx, nil)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if res.Messages != 0 || h.sender.count(1) != 0 {
		t.Fatalf("digest delivered before digest time: %+v", res)
	}

	*h.clock = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	res, err = h.d.Flush(ctx, nil)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if res.Messages != 1 || res.Delivered != 2 {
		t.Fatalf("expected one digest with two rows, got %+v", res)
	}
	body := h.sender.msgs[0].text
	if !strings.Contains(body, "Elden Ring") || !strings.Contains(body, "Hades") {
		t.Fatalf("digest missing deals: %q", body)
	}
}

func TestDigestNeverSplitAcrossClaimBatches(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	h := newHarness(t, cfg)
	ctx := context.Background()
	for _, id := range []int64{1, 2, 3} {
		h.user(t, id, model.TierFree)
	}
	hades, _ := h.st.CreateGame(ctx, "Hades", "hades", t0)
	celeste, _ := h.st.CreateGame(ctx, "Celeste", "celeste", t0)

	_, err := h.d.Enqueue(ctx, []model.Intent{
		h.intent(1, h.game.ID, 2999),
		h.intent(1, hades.ID, 1249),
		h.intent(1, celeste.ID, 499),
		h.intent(2, hades.ID, 1249),
		h.intent(3, celeste.ID, 499),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	*h.clock = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	res, err := h.d.Flush(ctx, nil)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if res.Users != 3 || res.Messages != 3 || res.Delivered != 5 {
		t.Fatalf("expected one digest per user, got %+v", res)
	}
	for _, id := range []int64{1, 2, 3} {
		if n := h.sender.count(id); n != 1 {
			t.Fatalf("user %d got %d digest messages, want 1", id, n)
		}
	}
	if q := h.st.Queued(); len(q) != 0 {
		t.Fatalf("queue should be drained, got %+v", q)
	}
}

func TestPendingDigestRowTakesLatestPrice(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	h.user(t, 1, model.TierFree)

	first := h.intent(1, h.game.ID, 2999)
	if _, err := h.d.Enqueue(ctx, []model.Intent{first}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	drop := h.intent(1, h.game.ID, 2499)
	drop.Event = model.EventPriceChanged
	drop.OldPrice = 2999
	res, err := h.d.Enqueue(ctx, []model.Intent{drop})
	if err != nil || res.Queued != 0 {
		t.Fatalf("second enqueue: %+v %v", res, err)
	}

	*h.clock = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	fr, err := h.d.Flush(ctx, nil)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if fr.Messages != 1 || fr.Delivered != 1 {
		t.Fatalf("expected one digest row, got %+v", fr)
	}
	if body := h.sender.msgs[0].text; !strings.Contains(body, "24.99") {
		t.Fatalf("digest should carry the latest price: %q", body)
	}
}

func TestMultipleReasonsOneMessage(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	h.user(t, 1, model.TierPremium)
	in := h.intent(1, h.game.ID, 2999,
		model.Reason{Kind: model.ReasonWishlist},
		model.Reason{Kind: model.ReasonAlert, RuleID: "r1", AlertKind: model.AlertAbsolutePrice, Threshold: 3000},
	)
	res, err := h.d.Enqueue(ctx, []model.Intent{in})
	if err != nil || res.Queued != 2 {
		t.Fatalf("enqueue: %+v %v", res, err)
	}
	fr, err := h.d.Flush(ctx, res.Immediate)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if fr.Messages != 1 || fr.Delivered != 2 {
		t.Fatalf("expected one message for both reasons, got %+v", fr)
	}
	if body := h.sender.msgs[0].text; !strings.Contains(body, "wishlist") || !strings.Contains(body, "30.00") {
		t.Fatalf("reasons missing from %q", body)
	}
}

func TestFailureIsolationAndRetry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 2
	h := newHarness(t, cfg)
	ctx := context.Background()
	h.user(t, 1, model.TierPremium)
	h.user(t, 2, model.TierPremium)
	h.sender.fail[1] = errors.New("chat not found")

	res, err := h.d.Enqueue(ctx, []model.Intent{
		h.intent(1, h.game.ID, 2999),
		h.intent(2, h.game.ID, 2999),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	fr, err := h.d.Flush(ctx, res.Immediate)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if fr.Delivered != 1 || fr.Retried != 1 || h.sender.count(2) != 1 {
		t.Fatalf("user 2 should be delivered despite user 1 failing: %+v", fr)
	}

	q := h.st.Queued()
	if len(q) != 1 || q[0].Attempts != 1 || !q[0].DeliverAfter.Equal(t0.Add(time.Minute)) {
		t.Fatalf("unexpected retry state: %+v", q)
	}

	// Not yet due.
	if fr, _ := h.d.Flush(ctx, nil); fr.Retried+fr.GaveUp != 0 {
		t.Fatalf("retry ran early: %+v", fr)
	}

	*h.clock = t0.Add(2 * time.Minute)
	fr, err = h.d.Flush(ctx, nil)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if fr.GaveUp != 1 {
		t.Fatalf("expected give-up after max attempts, got %+v", fr)
	}
	if q := h.st.Queued(); len(q) != 1 || q[0].Status != model.QueueFailed {
		t.Fatalf("expected failed row, got %+v", q)
	}
}

func TestBackoff(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	want := []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute}
	for i, w := range want {
		if got := h.d.backoff(i + 1); got != w {
			t.Fatalf("backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
	if got := h.d.backoff(40); got != 24*time.Hour {
		t.Fatalf("backoff should cap at a day, got %s", got)
	}
}

func TestDigestMessageOverflow(t *testing.T) {
	var groups []dealGroup
	for i := 0; i < 12; i++ {
		groups = append(groups, dealGroup{items: []model.QueueItem{{
			GameID: int64(i + 1), GameTitle: fmt.Sprintf("Game %02d", i), Region: "US",
			Price: 999, ListPrice: 1999, Currency: "USD", DiscountPercent: 50,
		}}})
	}
	body := digestMessage(groups, 10)
	if !strings.Contains(body, "12 deals") {
		t.Fatalf("header should count every deal: %q", body)
	}
	if !strings.Contains(body, "and 2 more") {
		t.Fatalf("missing overflow line: %q", body)
	}
	if strings.Contains(body, "Game 11") {
		t.Fatalf("overflowed deal rendered: %q", body)
	}
}

func TestPriceLine(t *testing.T) {
	it := model.QueueItem{
		Region: "US", Currency: "USD", Price: 1999, ListPrice: 5999, DiscountPercent: 67,
		Event: model.EventPriceChanged, OldPrice: 2999,
	}
	got := priceLine(it)
	for _, want := range []string{"$19.99", "was $59.99", "-67%", "from $29.99"} {
		if !strings.Contains(got, want) {
			t.Fatalf("priceLine = %q, missing %q", got, want)
		}
	}
}

func TestNewSender(t *testing.T) {
	if _, err := NewSender("log", "", "", 0, nil); err != nil {
		t.Fatalf("log sender: %v", err)
	}
	if _, err := NewSender("telegram", "", "", 0, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := NewSender("pigeon", "", "", 0, nil); err == nil {
		t.Fatalf("expected error for unknown channel")
	}
}
