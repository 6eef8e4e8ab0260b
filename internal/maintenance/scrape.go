package maintenance

import (
	"context"
	"log/slog"
	"strings"

	"github.com/oshri1997/Deal-Hunter/internal/cycle"
	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/region"
)

const pendingRequests = 16

// Scraper runs cycles; satisfied by *cycle.Runner.
type Scraper interface {
	RunAll(ctx context.Context, regions []string, pages int) ([]cycle.Result, error)
}

// ScrapeAll requests every configured region.
func ScrapeAll(full bool) model.ScrapeRequest {
	return model.ScrapeRequest{Full: full}
}

// Scheduler serialises scrape requests from the ticker, the NOTIFY listener
// and the admin API onto one worker. Per-region ordering is still enforced
// by the runner; the scheduler only keeps triggers from piling up.
type Scheduler struct {
	runner    Scraper
	regions   []string
	pages     int
	fullPages int
	reqs      chan model.ScrapeRequest
	logger    *slog.Logger
}

// NewScheduler creates a Scheduler over the configured regions.
func NewScheduler(runner Scraper, regions []string, pages, fullPages int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:    runner,
		regions:   regions,
		pages:     pages,
		fullPages: fullPages,
		reqs:      make(chan model.ScrapeRequest, pendingRequests),
		logger:    logger,
	}
}

// Trigger queues a request without blocking. It reports false when the
// request is invalid or the queue is full.
func (s *Scheduler) Trigger(req model.ScrapeRequest) bool {
	req.Region = strings.ToUpper(strings.TrimSpace(req.Region))
	if req.Region != "" && !region.Valid(req.Region) {
		s.logger.Warn("Scrape request for unknown region ignored", "region", req.Region)
		return false
	}
	select {
	case s.reqs <- req:
		return true
	default:
		s.logger.Warn("Scrape queue full, request dropped", "region", req.Region, "full", req.Full)
		return false
	}
}

// Run consumes requests until ctx is cancelled. Intended to be called with
// `go`.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case req := <-s.reqs:
			s.Scrape(ctx, req)
		case <-ctx.Done():
			s.logger.Info("Scrape scheduler stopped")
			return
		}
	}
}

// Scrape executes one request synchronously.
func (s *Scheduler) Scrape(ctx context.Context, req model.ScrapeRequest) ([]cycle.Result, error) {
	regions := s.regions
	if req.Region != "" {
		regions = []string{req.Region}
	}
	pages := s.pages
	if req.Full {
		pages = s.fullPages
	}
	s.logger.Info("Scrape started", "regions", regions, "pages", pages, "full", req.Full)
	results, err := s.runner.RunAll(ctx, regions, pages)
	if err != nil {
		s.logger.Error("Scrape finished with errors", "error", err)
	}
	return results, err
}
