package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/cycle"
	"github.com/oshri1997/Deal-Hunter/internal/model"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type janitor struct {
	released, failed, observations int64
	cutoffs                        []time.Time
	err                            error
}

func (j *janitor) ReleaseStale(_ context.Context, cutoff time.Time) (int64, error) {
	j.cutoffs = append(j.cutoffs, cutoff)
	return j.released, j.err
}

func (j *janitor) PurgeFailed(_ context.Context, cutoff time.Time) (int64, error) {
	j.cutoffs = append(j.cutoffs, cutoff)
	return j.failed, nil
}

func (j *janitor) PurgeObservations(_ context.Context, before time.Time) (int64, error) {
	j.cutoffs = append(j.cutoffs, before)
	return j.observations, nil
}

func TestCleanup(t *testing.T) {
	j := &janitor{released: 1, failed: 2, observations: 3}
	res, err := Cleanup(context.Background(), j, DefaultConfig(), quiet)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if res.Released != 1 || res.Failed != 2 || res.Observations != 3 {
		t.Fatalf("unexpected result: %s", res.Summary())
	}
	if len(j.cutoffs) != 3 || !j.cutoffs[2].Before(j.cutoffs[1]) {
		t.Fatalf("observation cutoff should be older than the failed cutoff: %v", j.cutoffs)
	}
}

func TestCleanupSkipsZeroRetention(t *testing.T) {
	j := &janitor{}
	cfg := Config{ClaimTimeout: time.Minute}
	if _, err := Cleanup(context.Background(), j, cfg, quiet); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if len(j.cutoffs) != 1 {
		t.Fatalf("expected only the release step, got %d calls", len(j.cutoffs))
	}
}

func TestCleanupReleaseError(t *testing.T) {
	j := &janitor{err: errors.New("db down")}
	if _, err := Cleanup(context.Background(), j, DefaultConfig(), quiet); err == nil {
		t.Fatalf("expected error")
	}
}

type scraper struct {
	mu    sync.Mutex
	calls []string
	pages []int
}

func (s *scraper) RunAll(_ context.Context, regions []string, pages int) ([]cycle.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, regions...)
	s.pages = append(s.pages, pages)
	return nil, nil
}

func TestSchedulerScrape(t *testing.T) {
	sc := &scraper{}
	s := NewScheduler(sc, []string{"US", "IL"}, 2, 20, quiet)
	ctx := context.Background()

	s.Scrape(ctx, ScrapeAll(false))
	s.Scrape(ctx, model.ScrapeRequest{Region: "IL", Full: true})

	if len(sc.calls) != 3 || sc.calls[2] != "IL" {
		t.Fatalf("calls = %v", sc.calls)
	}
	if sc.pages[0] != 2 || sc.pages[1] != 20 {
		t.Fatalf("pages = %v", sc.pages)
	}
}

func TestSchedulerTrigger(t *testing.T) {
	s := NewScheduler(&scraper{}, []string{"US"}, 2, 20, quiet)
	if s.Trigger(model.ScrapeRequest{Region: "XX"}) {
		t.Fatalf("unknown region accepted")
	}
	for i := 0; i < pendingRequests; i++ {
		if !s.Trigger(model.ScrapeRequest{Region: "us"}) {
			t.Fatalf("request %d rejected", i)
		}
	}
	if s.Trigger(ScrapeAll(false)) {
		t.Fatalf("full queue accepted a request")
	}
	if req := <-s.reqs; req.Region != "US" {
		t.Fatalf("region not normalised: %q", req.Region)
	}
}

func TestSchedulerRunDrainsQueue(t *testing.T) {
	sc := &scraper{}
	s := NewScheduler(sc, []string{"US"}, 2, 20, quiet)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.Trigger(ScrapeAll(true))
	deadline := time.Now().Add(time.Second)
	for {
		sc.mu.Lock()
		n := len(sc.calls)
		sc.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("request not processed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}
