package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/store"
	"github.com/oshri1997/Deal-Hunter/internal/tier"
)

// --------------------------------------------------------------------------
// Users
// --------------------------------------------------------------------------

func (s *Store) UpsertUser(_ context.Context, id int64, username string, at time.Time) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		u = &model.User{ID: id, Tier: model.TierFree, Cadence: model.CadenceInstant, CreatedAt: at}
		s.users[id] = u
	}
	if username != "" {
		u.Username = username
	}
	return *u, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return *u, nil
}

func (s *Store) GetUsers(_ context.Context, ids []int64) (map[int64]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]model.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = *u
		}
	}
	return out, nil
}

func (s *Store) SetTier(_ context.Context, id int64, t model.Tier, expires *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	u.Tier = t
	u.PremiumExpiresAt = expires
	return nil
}

func (s *Store) SetCadence(_ context.Context, id int64, c model.Cadence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	u.Cadence = c
	return nil
}

func (s *Store) Usage(_ context.Context, id int64) (tier.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := tier.Usage{Regions: len(s.userRegions[id]), Wishlist: len(s.wishlist[id])}
	for _, r := range s.rules {
		if r.UserID == id {
			u.Alerts++
		}
	}
	return u, nil
}

// --------------------------------------------------------------------------
// Regions
// --------------------------------------------------------------------------

func (s *Store) UserRegions(_ context.Context, id int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.userRegions[id]))
	for code := range s.userRegions[id] {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) AddUserRegion(_ context.Context, id int64, code string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return false, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	m, ok := s.userRegions[id]
	if !ok {
		m = make(map[string]time.Time)
		s.userRegions[id] = m
	}
	if _, exists := m[code]; exists {
		return false, nil
	}
	m[code] = at
	return true, nil
}

func (s *Store) RemoveUserRegion(_ context.Context, id int64, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.userRegions[id][code]; !ok {
		return false, nil
	}
	delete(s.userRegions[id], code)
	return true, nil
}

func (s *Store) subscribedLocked(userID int64, region string) bool {
	_, ok := s.userRegions[userID][region]
	return ok
}

// --------------------------------------------------------------------------
// Wishlist
// --------------------------------------------------------------------------

func (s *Store) Wishlist(_ context.Context, id int64) ([]model.WishlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.WishlistEntry
	for gameID, at := range s.wishlist[id] {
		g, ok := s.games[gameID]
		if !ok {
			continue
		}
		out = append(out, model.WishlistEntry{Game: cloneGame(g), AddedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

func (s *Store) AddWishlist(_ context.Context, id, gameID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return false, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	if _, ok := s.games[gameID]; !ok {
		return false, fmt.Errorf("game %d: %w", gameID, store.ErrNotFound)
	}
	m, ok := s.wishlist[id]
	if !ok {
		m = make(map[int64]time.Time)
		s.wishlist[id] = m
	}
	if _, exists := m[gameID]; exists {
		return false, nil
	}
	m[gameID] = at
	return true, nil
}

func (s *Store) RemoveWishlist(_ context.Context, id, gameID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wishlist[id][gameID]; !ok {
		return false, nil
	}
	delete(s.wishlist[id], gameID)
	return true, nil
}

// WishlistWatchers returns users with the game on their wishlist who also
// subscribe to region.
func (s *Store) WishlistWatchers(_ context.Context, gameID int64, region string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for userID, games := range s.wishlist {
		if _, ok := games[gameID]; ok && s.subscribedLocked(userID, region) {
			out = append(out, userID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// --------------------------------------------------------------------------
// Alert rules
// --------------------------------------------------------------------------

func (s *Store) AlertRules(_ context.Context, userID int64) ([]model.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AlertRule
	for _, r := range s.rules {
		if r.UserID == userID {
			out = append(out, cloneRule(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) AddAlertRules(_ context.Context, rules []model.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rules {
		if _, ok := s.users[r.UserID]; !ok {
			return fmt.Errorf("user %d: %w", r.UserID, store.ErrNotFound)
		}
		if _, ok := s.games[r.GameID]; !ok {
			return fmt.Errorf("game %d: %w", r.GameID, store.ErrNotFound)
		}
	}
	for _, r := range rules {
		rr := r
		s.rules[r.ID] = &rr
	}
	return nil
}

func (s *Store) DeleteAlertRule(_ context.Context, userID int64, ruleID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok || r.UserID != userID {
		return false, nil
	}
	delete(s.rules, ruleID)
	return true, nil
}

// RulesForDeal returns rules on the game that apply to region: explicitly
// scoped to it, or scoped to all regions of a user subscribed to it.
func (s *Store) RulesForDeal(_ context.Context, gameID int64, region string) ([]model.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AlertRule
	for _, r := range s.rules {
		if r.GameID != gameID {
			continue
		}
		if r.Region == region || (r.Region == "" && s.subscribedLocked(r.UserID, region)) {
			out = append(out, cloneRule(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MarkRuleFired(_ context.Context, ruleID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok {
		return nil
	}
	if r.FiredAt == nil {
		t := at
		r.FiredAt = &t
	}
	return nil
}

func (s *Store) RearmRule(_ context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok || r.FiredAt == nil {
		return nil
	}
	r.FiredAt = nil
	r.Excursion++
	return nil
}
