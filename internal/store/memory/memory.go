// Package memory is an in-process implementation of every store interface
// the engine uses. It backs the tests and `ingest replay --memory` dry runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/model"
)

type obsKey struct {
	GameID     int64
	Region     string
	ObservedAt time.Time
}

type dealKey struct {
	GameID int64
	Region string
}

type queueRow struct {
	item      model.QueueItem
	claimedAt time.Time
}

// Store keeps all state in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex

	games        map[int64]*model.Game
	gameByFolded map[string]int64
	nextGame     int64

	observations map[obsKey]model.PriceObservation
	deals        map[int64]*model.ActiveDeal
	openDeal     map[dealKey]int64
	nextDeal     int64

	users       map[int64]*model.User
	userRegions map[int64]map[string]time.Time
	wishlist    map[int64]map[int64]time.Time
	rules       map[string]*model.AlertRule

	queue     map[int64]*queueRow
	queueKeys map[model.LogKey]int64
	nextQueue int64
	sentLog   map[model.LogKey]time.Time

	regionLocks map[string]*sync.Mutex
}

// New returns an empty store.
func New() *Store {
	return &Store{
		games:        make(map[int64]*model.Game),
		gameByFolded: make(map[string]int64),
		observations: make(map[obsKey]model.PriceObservation),
		deals:        make(map[int64]*model.ActiveDeal),
		openDeal:     make(map[dealKey]int64),
		users:        make(map[int64]*model.User),
		userRegions:  make(map[int64]map[string]time.Time),
		wishlist:     make(map[int64]map[int64]time.Time),
		rules:        make(map[string]*model.AlertRule),
		queue:        make(map[int64]*queueRow),
		queueKeys:    make(map[model.LogKey]int64),
		sentLog:      make(map[model.LogKey]time.Time),
		regionLocks:  make(map[string]*sync.Mutex),
	}
}

// LockRegion serialises cycles for a region within the process.
func (s *Store) LockRegion(ctx context.Context, code string) (func(), error) {
	s.mu.Lock()
	l, ok := s.regionLocks[code]
	if !ok {
		l = &sync.Mutex{}
		s.regionLocks[code] = l
	}
	s.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		l.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
		return l.Unlock, nil
	case <-ctx.Done():
		go func() {
			<-acquired
			l.Unlock()
		}()
		return nil, ctx.Err()
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// SentCount returns the number of notification log rows.
func (s *Store) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sentLog)
}

// QueueLen returns the number of queued notification rows in any status.
func (s *Store) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// ObservationCount returns the number of recorded observations.
func (s *Store) ObservationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observations)
}

func cloneGame(g *model.Game) model.Game {
	out := *g
	out.Aliases = append([]string(nil), g.Aliases...)
	return out
}

func cloneDeal(d *model.ActiveDeal) model.ActiveDeal {
	out := *d
	if d.ClosedAt != nil {
		t := *d.ClosedAt
		out.ClosedAt = &t
	}
	return out
}

func cloneRule(r *model.AlertRule) model.AlertRule {
	out := *r
	if r.FiredAt != nil {
		t := *r.FiredAt
		out.FiredAt = &t
	}
	return out
}
