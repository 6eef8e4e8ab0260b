// Package model holds the domain types shared by the ingestion engine, the
// stores and the command API.
package model

import (
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// MaxAliases bounds Game.Aliases; the oldest alias is dropped first.
const MaxAliases = 10

// Tier is a user's subscription level.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// ParseTier validates a tier name.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFree:
		return TierFree, nil
	case TierPremium:
		return TierPremium, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// Cadence is a user's notification delivery preference.
type Cadence string

const (
	CadenceInstant Cadence = "instant"
	CadenceDigest  Cadence = "digest"
)

// ParseCadence validates a cadence name.
func ParseCadence(s string) (Cadence, error) {
	switch Cadence(strings.ToLower(strings.TrimSpace(s))) {
	case CadenceInstant:
		return CadenceInstant, nil
	case CadenceDigest:
		return CadenceDigest, nil
	}
	return "", fmt.Errorf("unknown cadence %q", s)
}

// --------------------------------------------------------------------------
// Catalog
// --------------------------------------------------------------------------

// Game is a canonical catalog entry. Games are never deleted.
type Game struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Aliases   []string  `json:"aliases"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AddAlias appends alias unless present (compared with eq), dropping the
// oldest entries beyond MaxAliases. Reports whether the list changed.
func (g *Game) AddAlias(alias string, eq func(a, b string) bool) bool {
	for _, a := range g.Aliases {
		if eq(a, alias) {
			return false
		}
	}
	g.Aliases = append(g.Aliases, alias)
	if n := len(g.Aliases); n > MaxAliases {
		g.Aliases = append([]string(nil), g.Aliases[n-MaxAliases:]...)
	}
	return true
}

// --------------------------------------------------------------------------
// Observations and deals
// --------------------------------------------------------------------------

// RawObservation is one scraped storefront row before normalisation.
type RawObservation struct {
	Title           string    `json:"title"`
	PriceText       string    `json:"price_text"`
	ListPriceText   string    `json:"list_price_text,omitempty"`
	DiscountPercent *int      `json:"discount_percent,omitempty"`
	Currency        string    `json:"currency"`
	RegionCode      string    `json:"region_code"`
	URL             string    `json:"url"`
	ScrapedAt       time.Time `json:"scraped_at"`
}

// PriceObservation is a normalised, immutable price sample. Prices are in
// the currency's minor units.
type PriceObservation struct {
	GameID          int64     `json:"game_id"`
	Region          string    `json:"region"`
	Price           int64     `json:"price"`
	ListPrice       int64     `json:"list_price"`
	Currency        string    `json:"currency"`
	DiscountPercent int       `json:"discount_percent"`
	SourceURL       string    `json:"source_url"`
	ObservedAt      time.Time `json:"observed_at"`
}

// ActiveDeal is the current sale state of a game in a region. A nil
// ClosedAt means the deal is open.
type ActiveDeal struct {
	ID              int64      `json:"id"`
	GameID          int64      `json:"game_id"`
	Region          string     `json:"region"`
	Price           int64      `json:"price"`
	ListPrice       int64      `json:"list_price"`
	Currency        string     `json:"currency"`
	DiscountPercent int        `json:"discount_percent"`
	SourceURL       string     `json:"source_url"`
	OpenedAt        time.Time  `json:"opened_at"`
	LastSeenAt      time.Time  `json:"last_seen_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

// Open reports whether the deal has not been closed.
func (d ActiveDeal) Open() bool { return d.ClosedAt == nil }

// DealView is an ActiveDeal joined with its game title for listings.
type DealView struct {
	ActiveDeal
	Title string `json:"title"`
}

// EventKind classifies a reconciliation outcome.
type EventKind string

const (
	EventOpened       EventKind = "opened"
	EventPriceChanged EventKind = "price_changed"
	EventUnchanged    EventKind = "unchanged"
	EventClosed       EventKind = "closed"
)

// DealEvent is the result of reconciling one (game, region) key.
type DealEvent struct {
	Kind     EventKind
	Deal     ActiveDeal
	OldPrice int64

	// Observation that produced the event; nil for closures by absence.
	Observation *PriceObservation
}

// Notifiable reports whether the event can produce notifications.
func (e DealEvent) Notifiable() bool {
	return e.Kind == EventOpened || e.Kind == EventPriceChanged
}

// Transition is a single atomic store mutation: record the observation (if
// any) and move the deal into the state described by Kind. An empty Kind
// records the observation only.
type Transition struct {
	Kind        EventKind
	Observation *PriceObservation
	Deal        ActiveDeal
}

// --------------------------------------------------------------------------
// Users and rules
// --------------------------------------------------------------------------

// User is a subscriber identified by their chat identity.
type User struct {
	ID               int64      `json:"id"`
	Username         string     `json:"username"`
	Tier             Tier       `json:"tier"`
	Cadence          Cadence    `json:"cadence"`
	PremiumExpiresAt *time.Time `json:"premium_expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// EffectiveTier returns the tier in force at now. Premium with a past
// expiry counts as free.
func (u User) EffectiveTier(now time.Time) Tier {
	if u.Tier == TierPremium && u.PremiumExpiresAt != nil && !now.Before(*u.PremiumExpiresAt) {
		return TierFree
	}
	if u.Tier == "" {
		return TierFree
	}
	return u.Tier
}

// WishlistEntry is a game on a user's wishlist.
type WishlistEntry struct {
	Game    Game      `json:"game"`
	AddedAt time.Time `json:"added_at"`
}

// AlertKind selects how an alert threshold is compared.
type AlertKind string

const (
	AlertAbsolutePrice   AlertKind = "absolute_price"
	AlertDiscountPercent AlertKind = "discount_percent"
)

// AlertRule is a user's price alert on a game. An empty Region scopes the
// rule to every region the user subscribes to. Threshold is minor units for
// absolute-price rules and a whole percentage for discount rules.
type AlertRule struct {
	ID        string     `json:"id"`
	UserID    int64      `json:"user_id"`
	GameID    int64      `json:"game_id"`
	Region    string     `json:"region,omitempty"`
	Kind      AlertKind  `json:"kind"`
	Threshold int64      `json:"threshold"`
	CreatedAt time.Time  `json:"created_at"`
	FiredAt   *time.Time `json:"fired_at,omitempty"`
	Excursion int        `json:"excursion"`
}

// Matches reports whether the deal satisfies the rule's condition.
func (r AlertRule) Matches(price int64, discount int) bool {
	switch r.Kind {
	case AlertAbsolutePrice:
		return price <= r.Threshold
	case AlertDiscountPercent:
		return int64(discount) >= r.Threshold
	}
	return false
}

// Armed reports whether the rule may fire.
func (r AlertRule) Armed() bool { return r.FiredAt == nil }

// --------------------------------------------------------------------------
// Notifications
// --------------------------------------------------------------------------

// ReasonKind says why a user is notified about a deal.
type ReasonKind string

const (
	ReasonWishlist ReasonKind = "wishlist"
	ReasonAlert    ReasonKind = "alert"
)

// Reason is one cause of a notification.
type Reason struct {
	Kind      ReasonKind
	RuleID    string
	Excursion int
	AlertKind AlertKind
	Threshold int64
}

// Key identifies the reason in the notification log. Alert keys carry the
// excursion so a re-armed rule fires again within the same deal period.
func (r Reason) Key() string {
	if r.Kind == ReasonAlert {
		return fmt.Sprintf("alert:%s#%d", r.RuleID, r.Excursion)
	}
	return string(ReasonWishlist)
}

// Intent is one user's pending notification about one deal event, with all
// reasons merged.
type Intent struct {
	UserID   int64
	Event    EventKind
	Deal     ActiveDeal
	OldPrice int64
	Reasons  []Reason
}

// LogKey is the at-most-once identity of a delivered notification.
type LogKey struct {
	UserID    int64
	GameID    int64
	Region    string
	OpenedAt  time.Time
	ReasonKey string
}

// QueueStatus is the lifecycle of a queued notification.
type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueueSending QueueStatus = "sending"
	QueueFailed  QueueStatus = "failed"
)

// QueueItem is a persisted intent reason awaiting delivery.
type QueueItem struct {
	ID              int64
	UserID          int64
	GameID          int64
	GameTitle       string
	Region          string
	OpenedAt        time.Time
	ReasonKey       string
	Reason          ReasonKind
	RuleID          string
	AlertKind       AlertKind
	Threshold       int64
	Event           EventKind
	Price           int64
	ListPrice       int64
	OldPrice        int64
	Currency        string
	DiscountPercent int
	SourceURL       string
	Status          QueueStatus
	DeliverAfter    time.Time
	Attempts        int
	LastError       string
	CreatedAt       time.Time
}

// LogKey returns the notification log identity of the item.
func (q QueueItem) LogKey() LogKey {
	return LogKey{
		UserID:    q.UserID,
		GameID:    q.GameID,
		Region:    q.Region,
		OpenedAt:  q.OpenedAt.UTC(),
		ReasonKey: q.ReasonKey,
	}
}

// --------------------------------------------------------------------------
// Triggers
// --------------------------------------------------------------------------

// ScrapeRequest asks the long-running service for an out-of-band scrape.
// An empty Region means every configured region; Full selects the deep
// page count.
type ScrapeRequest struct {
	Region string `json:"region,omitempty"`
	Full   bool   `json:"full,omitempty"`
}
