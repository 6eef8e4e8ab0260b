package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/store"
)

// --------------------------------------------------------------------------
// Games
// --------------------------------------------------------------------------

func (s *Store) ListGames(context.Context) ([]model.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Game, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, cloneGame(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateGame(_ context.Context, title, folded string, at time.Time) (model.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.gameByFolded[folded]; ok {
		return cloneGame(s.games[id]), nil
	}
	s.nextGame++
	g := &model.Game{ID: s.nextGame, Title: title, CreatedAt: at, UpdatedAt: at}
	s.games[g.ID] = g
	s.gameByFolded[folded] = g.ID
	return cloneGame(g), nil
}

func (s *Store) SaveAliases(_ context.Context, gameID int64, aliases []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return fmt.Errorf("game %d: %w", gameID, store.ErrNotFound)
	}
	g.Aliases = append([]string(nil), aliases...)
	g.UpdatedAt = at
	return nil
}

func (s *Store) GetGame(_ context.Context, id int64) (model.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return model.Game{}, fmt.Errorf("game %d: %w", id, store.ErrNotFound)
	}
	return cloneGame(g), nil
}

// --------------------------------------------------------------------------
// Deals
// --------------------------------------------------------------------------

func (s *Store) OpenDeals(_ context.Context, region string) ([]model.ActiveDeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ActiveDeal
	for k, id := range s.openDeal {
		if k.Region == region {
			out = append(out, cloneDeal(s.deals[id]))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Apply(_ context.Context, t model.Transition) (model.ActiveDeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o := t.Observation; o != nil {
		k := obsKey{GameID: o.GameID, Region: o.Region, ObservedAt: o.ObservedAt.UTC()}
		if _, exists := s.observations[k]; !exists {
			s.observations[k] = *o
		}
	}

	switch t.Kind {
	case "":
		return model.ActiveDeal{}, nil
	case model.EventOpened:
		k := dealKey{GameID: t.Deal.GameID, Region: t.Deal.Region}
		if _, exists := s.openDeal[k]; exists {
			return model.ActiveDeal{}, fmt.Errorf("open deal already exists for game %d in %s", k.GameID, k.Region)
		}
		s.nextDeal++
		d := t.Deal
		d.ID = s.nextDeal
		d.ClosedAt = nil
		s.deals[d.ID] = &d
		s.openDeal[k] = d.ID
		return cloneDeal(&d), nil
	}

	cur, ok := s.deals[t.Deal.ID]
	if !ok || cur.ClosedAt != nil {
		return model.ActiveDeal{}, fmt.Errorf("deal %d: %w", t.Deal.ID, store.ErrNotFound)
	}
	switch t.Kind {
	case model.EventPriceChanged:
		cur.Price = t.Deal.Price
		cur.ListPrice = t.Deal.ListPrice
		cur.DiscountPercent = t.Deal.DiscountPercent
		cur.SourceURL = t.Deal.SourceURL
		cur.LastSeenAt = t.Deal.LastSeenAt
	case model.EventUnchanged:
		if t.Deal.LastSeenAt.After(cur.LastSeenAt) {
			cur.LastSeenAt = t.Deal.LastSeenAt
		}
	case model.EventClosed:
		closedAt := t.Deal.LastSeenAt
		if t.Deal.ClosedAt != nil {
			closedAt = *t.Deal.ClosedAt
		}
		cur.LastSeenAt = t.Deal.LastSeenAt
		cur.ClosedAt = &closedAt
		delete(s.openDeal, dealKey{GameID: cur.GameID, Region: cur.Region})
	default:
		return model.ActiveDeal{}, fmt.Errorf("unknown transition %q", t.Kind)
	}
	return cloneDeal(cur), nil
}

func (s *Store) CloseStale(_ context.Context, region string, cutoff time.Time, keep []int64, closedAt time.Time) ([]model.ActiveDeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make(map[int64]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	var out []model.ActiveDeal
	for k, id := range s.openDeal {
		d := s.deals[id]
		if k.Region != region || kept[id] || !d.LastSeenAt.Before(cutoff) {
			continue
		}
		t := closedAt
		d.ClosedAt = &t
		delete(s.openDeal, k)
		out = append(out, cloneDeal(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListDeals pages through open deals of the given regions, newest first.
func (s *Store) ListDeals(_ context.Context, regions []string, offset, limit int) ([]model.DealView, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(regions))
	for _, r := range regions {
		want[strings.ToUpper(r)] = true
	}
	var all []model.DealView
	for k, id := range s.openDeal {
		if !want[k.Region] {
			continue
		}
		d := s.deals[id]
		all = append(all, model.DealView{ActiveDeal: cloneDeal(d), Title: s.titleLocked(d.GameID)})
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].OpenedAt.Equal(all[j].OpenedAt) {
			return all[i].OpenedAt.After(all[j].OpenedAt)
		}
		return all[i].ID > all[j].ID
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

// GameDeals returns the open deals of a game across regions.
func (s *Store) GameDeals(_ context.Context, gameID int64) ([]model.DealView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DealView
	for k, id := range s.openDeal {
		if k.GameID == gameID {
			d := s.deals[id]
			out = append(out, model.DealView{ActiveDeal: cloneDeal(d), Title: s.titleLocked(gameID)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Region < out[j].Region })
	return out, nil
}

// Deal returns a deal by id regardless of state.
func (s *Store) Deal(_ context.Context, id int64) (model.ActiveDeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[id]
	if !ok {
		return model.ActiveDeal{}, fmt.Errorf("deal %d: %w", id, store.ErrNotFound)
	}
	return cloneDeal(d), nil
}

// PriceHistory returns a game's observations in a region, oldest first.
func (s *Store) PriceHistory(_ context.Context, gameID int64, region string, limit int) ([]model.PriceObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PriceObservation
	for k, o := range s.observations {
		if k.GameID == gameID && k.Region == region {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// PurgeObservations deletes observations older than before.
func (s *Store) PurgeObservations(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.observations {
		if k.ObservedAt.Before(before) {
			delete(s.observations, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) titleLocked(gameID int64) string {
	if g, ok := s.games[gameID]; ok {
		return g.Title
	}
	return ""
}
