// Package membership is the command layer over user state: region
// subscriptions, wishlists, alert rules, cadence and tier. Every mutation
// that grows a user's footprint passes the tier policy first.
//
// Limit checks read current usage and then insert without a lock, so two
// concurrent requests from the same user can each pass the check. Chat
// commands arrive one at a time per user, which keeps the window
// theoretical.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/money"
	"github.com/oshri1997/Deal-Hunter/internal/normalize"
	"github.com/oshri1997/Deal-Hunter/internal/region"
	"github.com/oshri1997/Deal-Hunter/internal/store"
	"github.com/oshri1997/Deal-Hunter/internal/tier"
)

// ErrNotFound is returned for unknown users, games and rules.
var ErrNotFound = store.ErrNotFound

// ErrInvalid marks a request the caller must fix.
var ErrInvalid = errors.New("invalid request")

// ScopeAll selects every region the user subscribes to.
const ScopeAll = "ALL"

// Store is the persistence the service needs.
type Store interface {
	UpsertUser(ctx context.Context, id int64, username string, at time.Time) (model.User, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	SetTier(ctx context.Context, id int64, t model.Tier, expires *time.Time) error
	SetCadence(ctx context.Context, id int64, c model.Cadence) error
	Usage(ctx context.Context, id int64) (tier.Usage, error)

	UserRegions(ctx context.Context, id int64) ([]string, error)
	AddUserRegion(ctx context.Context, id int64, code string, at time.Time) (bool, error)
	RemoveUserRegion(ctx context.Context, id int64, code string) (bool, error)

	Wishlist(ctx context.Context, id int64) ([]model.WishlistEntry, error)
	AddWishlist(ctx context.Context, id, gameID int64, at time.Time) (bool, error)
	RemoveWishlist(ctx context.Context, id, gameID int64) (bool, error)

	AlertRules(ctx context.Context, userID int64) ([]model.AlertRule, error)
	AddAlertRules(ctx context.Context, rules []model.AlertRule) error
	DeleteAlertRule(ctx context.Context, userID int64, ruleID string) (bool, error)

	GetGame(ctx context.Context, id int64) (model.Game, error)
	ListDeals(ctx context.Context, regions []string, offset, limit int) ([]model.DealView, int, error)
}

// Resolver maps free-text titles to catalog games.
type Resolver interface {
	ResolveTitle(ctx context.Context, title string, create bool) (model.Game, bool, error)
	Search(ctx context.Context, query string, limit int) ([]normalize.Match, error)
}

// Service executes membership commands.
type Service struct {
	store  Store
	policy *tier.Policy
	games  Resolver
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func New(st Store, policy *tier.Policy, games Resolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		policy: policy,
		games:  games,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// --------------------------------------------------------------------------
// Users
// --------------------------------------------------------------------------

// Profile is a user with the limits in force and current usage.
type Profile struct {
	User          model.User  `json:"user"`
	EffectiveTier model.Tier  `json:"effective_tier"`
	Limits        tier.Limits `json:"limits"`
	Usage         tier.Usage  `json:"usage"`
	Regions       []string    `json:"regions"`
}

// Register creates the user on first contact, or refreshes the username.
func (s *Service) Register(ctx context.Context, id int64, username string) (model.User, error) {
	if id <= 0 {
		return model.User{}, fmt.Errorf("user id %d: %w", id, ErrInvalid)
	}
	u, err := s.store.UpsertUser(ctx, id, strings.TrimSpace(username), s.now().UTC())
	if err != nil {
		return model.User{}, fmt.Errorf("register user: %w", err)
	}
	return u, nil
}

func (s *Service) Profile(ctx context.Context, id int64) (Profile, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	usage, err := s.store.Usage(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	regions, err := s.store.UserRegions(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	t, limits := s.policy.LimitsFor(u)
	return Profile{User: u, EffectiveTier: t, Limits: limits, Usage: usage, Regions: regions}, nil
}

func (s *Service) SetCadence(ctx context.Context, id int64, cadence string) error {
	c, err := model.ParseCadence(cadence)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalid)
	}
	return s.store.SetCadence(ctx, id, c)
}

// SetTier changes a user's tier. expires only applies to premium.
func (s *Service) SetTier(ctx context.Context, id int64, tierName string, expires *time.Time) error {
	t, err := model.ParseTier(tierName)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalid)
	}
	if t == model.TierFree {
		expires = nil
	}
	if err := s.store.SetTier(ctx, id, t, expires); err != nil {
		return err
	}
	s.logger.Info("Tier changed", "user_id", id, "tier", t, "expires", expires)
	return nil
}

// --------------------------------------------------------------------------
// Regions
// --------------------------------------------------------------------------

func (s *Service) Regions(ctx context.Context, id int64) ([]string, error) {
	if _, err := s.store.GetUser(ctx, id); err != nil {
		return nil, err
	}
	return s.store.UserRegions(ctx, id)
}

// AddRegion subscribes the user to a region. Re-adding a subscribed region
// is a no-op that never counts against the limit.
func (s *Service) AddRegion(ctx context.Context, id int64, code string) (bool, error) {
	r, ok := region.Lookup(code)
	if !ok {
		return false, fmt.Errorf("unknown region %q: %w", code, ErrInvalid)
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return false, err
	}
	current, err := s.store.UserRegions(ctx, id)
	if err != nil {
		return false, err
	}
	for _, c := range current {
		if c == r.Code {
			return false, nil
		}
	}
	usage, err := s.store.Usage(ctx, id)
	if err != nil {
		return false, err
	}
	if err := s.policy.CanAddRegion(u, usage); err != nil {
		return false, err
	}
	return s.store.AddUserRegion(ctx, id, r.Code, s.now().UTC())
}

func (s *Service) RemoveRegion(ctx context.Context, id int64, code string) (bool, error) {
	r, ok := region.Lookup(code)
	if !ok {
		return false, fmt.Errorf("unknown region %q: %w", code, ErrInvalid)
	}
	return s.store.RemoveUserRegion(ctx, id, r.Code)
}

// --------------------------------------------------------------------------
// Wishlist
// --------------------------------------------------------------------------

func (s *Service) Wishlist(ctx context.Context, id int64) ([]model.WishlistEntry, error) {
	if _, err := s.store.GetUser(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Wishlist(ctx, id)
}

// AddToWishlist adds a game by title, creating the catalog entry when the
// title is new.
func (s *Service) AddToWishlist(ctx context.Context, id int64, title string) (model.Game, bool, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return model.Game{}, false, err
	}
	g, _, err := s.games.ResolveTitle(ctx, title, true)
	if err != nil {
		var pe *normalize.ParseError
		if errors.As(err, &pe) {
			return model.Game{}, false, fmt.Errorf("%v: %w", err, ErrInvalid)
		}
		return model.Game{}, false, err
	}

	entries, err := s.store.Wishlist(ctx, id)
	if err != nil {
		return model.Game{}, false, err
	}
	for _, e := range entries {
		if e.Game.ID == g.ID {
			return g, false, nil
		}
	}
	if err := s.policy.CanAddWishlistEntry(u, tier.Usage{Wishlist: len(entries)}); err != nil {
		return model.Game{}, false, err
	}
	added, err := s.store.AddWishlist(ctx, id, g.ID, s.now().UTC())
	if err != nil {
		return model.Game{}, false, err
	}
	return g, added, nil
}

func (s *Service) RemoveFromWishlist(ctx context.Context, id, gameID int64) (bool, error) {
	return s.store.RemoveWishlist(ctx, id, gameID)
}

// --------------------------------------------------------------------------
// Alerts
// --------------------------------------------------------------------------

// AlertRequest describes a new alert. Threshold is a price in the region's
// currency ("29.99") for absolute rules and a whole percentage for discount
// rules. Region may be a code, empty, or "ALL".
type AlertRequest struct {
	GameID    int64  `json:"game_id,omitempty"`
	Title     string `json:"title,omitempty"`
	Region    string `json:"region,omitempty"`
	Kind      string `json:"kind"`
	Threshold string `json:"threshold"`
}

func (s *Service) Alerts(ctx context.Context, id int64) ([]model.AlertRule, error) {
	if _, err := s.store.GetUser(ctx, id); err != nil {
		return nil, err
	}
	return s.store.AlertRules(ctx, id)
}

// AddAlert creates alert rules. The game must already be in the catalog.
// Absolute-price rules are per currency, so an all-regions absolute rule is
// stored as one rule per subscribed region; discount rules keep the
// all-regions scope.
func (s *Service) AddAlert(ctx context.Context, id int64, req AlertRequest) ([]model.AlertRule, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	g, err := s.alertGame(ctx, req)
	if err != nil {
		return nil, err
	}

	kind := model.AlertKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if kind != model.AlertAbsolutePrice && kind != model.AlertDiscountPercent {
		return nil, fmt.Errorf("unknown alert kind %q: %w", req.Kind, ErrInvalid)
	}

	scope := strings.ToUpper(strings.TrimSpace(req.Region))
	var regions []string
	switch {
	case scope == "" || scope == ScopeAll:
		scope = ""
		if kind == model.AlertAbsolutePrice {
			if regions, err = s.store.UserRegions(ctx, id); err != nil {
				return nil, err
			}
			if len(regions) == 0 {
				return nil, fmt.Errorf("subscribe to a region before adding a price alert: %w", ErrInvalid)
			}
		}
	case region.Valid(scope):
		regions = []string{scope}
	default:
		return nil, fmt.Errorf("unknown region %q: %w", req.Region, ErrInvalid)
	}

	now := s.now().UTC()
	var rules []model.AlertRule
	if kind == model.AlertDiscountPercent {
		pct, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(req.Threshold), "%"))
		if err != nil || pct < 1 || pct > 100 {
			return nil, fmt.Errorf("discount threshold must be 1-100, got %q: %w", req.Threshold, ErrInvalid)
		}
		rules = append(rules, s.rule(id, g.ID, scope, kind, int64(pct), now))
	} else {
		d, err := decimal.NewFromString(strings.TrimSpace(req.Threshold))
		if err != nil || !d.IsPositive() {
			return nil, fmt.Errorf("price threshold must be a positive amount, got %q: %w", req.Threshold, ErrInvalid)
		}
		for _, code := range regions {
			r := region.MustLookup(code)
			rules = append(rules, s.rule(id, g.ID, r.Code, kind, money.FromDecimal(d, r.Currency), now))
		}
	}

	usage, err := s.store.Usage(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanAddAlert(u, usage, len(rules)); err != nil {
		return nil, err
	}
	if err := s.store.AddAlertRules(ctx, rules); err != nil {
		return nil, err
	}
	s.logger.Info("Alert added", "user_id", id, "game_id", g.ID, "kind", kind, "rules", len(rules))
	return rules, nil
}

// ExpandedScope reports the regions an all-regions absolute-price request
// was expanded to. The set is fixed when the alert is created: regions
// subscribed later are not covered. ok is false for any other request.
func ExpandedScope(req AlertRequest, rules []model.AlertRule) (regions []string, ok bool) {
	if model.AlertKind(strings.ToLower(strings.TrimSpace(req.Kind))) != model.AlertAbsolutePrice {
		return nil, false
	}
	if scope := strings.ToUpper(strings.TrimSpace(req.Region)); scope != "" && scope != ScopeAll {
		return nil, false
	}
	for _, r := range rules {
		regions = append(regions, r.Region)
	}
	return regions, len(regions) > 0
}

func (s *Service) RemoveAlert(ctx context.Context, id int64, ruleID string) (bool, error) {
	return s.store.DeleteAlertRule(ctx, id, ruleID)
}

func (s *Service) alertGame(ctx context.Context, req AlertRequest) (model.Game, error) {
	if req.GameID > 0 {
		return s.store.GetGame(ctx, req.GameID)
	}
	if strings.TrimSpace(req.Title) == "" {
		return model.Game{}, fmt.Errorf("game_id or title required: %w", ErrInvalid)
	}
	g, found, err := s.games.ResolveTitle(ctx, req.Title, false)
	if err != nil {
		var pe *normalize.ParseError
		if errors.As(err, &pe) {
			return model.Game{}, fmt.Errorf("%v: %w", err, ErrInvalid)
		}
		return model.Game{}, err
	}
	if !found {
		return model.Game{}, fmt.Errorf("game %q: %w", req.Title, ErrNotFound)
	}
	return g, nil
}

func (s *Service) rule(userID, gameID int64, regionCode string, kind model.AlertKind, threshold int64, at time.Time) model.AlertRule {
	return model.AlertRule{
		ID:        s.newID(),
		UserID:    userID,
		GameID:    gameID,
		Region:    regionCode,
		Kind:      kind,
		Threshold: threshold,
		CreatedAt: at,
	}
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

// Deals pages through open deals in the user's regions, newest first.
func (s *Service) Deals(ctx context.Context, id int64, offset, limit int) ([]model.DealView, int, error) {
	regions, err := s.Regions(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if len(regions) == 0 {
		return []model.DealView{}, 0, nil
	}
	return s.store.ListDeals(ctx, regions, offset, limit)
}

func (s *Service) SearchGames(ctx context.Context, query string, limit int) ([]normalize.Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query: %w", ErrInvalid)
	}
	return s.games.Search(ctx, query, limit)
}
