// Package normalize turns raw scraped rows into PriceObservations: it parses
// localized price strings into minor units and resolves free-form titles to
// catalog games, creating games the first time a title is seen.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/region"
)

// GameStore persists the game catalog.
type GameStore interface {
	ListGames(ctx context.Context) ([]model.Game, error)
	// CreateGame inserts a game keyed by its folded title. If another writer
	// already created that key, the existing game is returned.
	CreateGame(ctx context.Context, title, folded string, at time.Time) (model.Game, error)
	SaveAliases(ctx context.Context, gameID int64, aliases []string, at time.Time) error
}

// Normalizer holds the in-memory title index. Resolution is serialised so
// concurrent region batches cannot create the same game twice.
type Normalizer struct {
	store     GameStore
	threshold float64
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	loaded bool
	games  map[int64]candidate
	exact  map[string]int64
}

// New creates a Normalizer. A threshold outside (0, 1] falls back to
// DefaultThreshold.
func New(store GameStore, threshold float64, logger *slog.Logger) *Normalizer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		store:     store,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// Reload rebuilds the index from the store.
func (n *Normalizer) Reload(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loadLocked(ctx)
}

func (n *Normalizer) loadLocked(ctx context.Context) error {
	games, err := n.store.ListGames(ctx)
	if err != nil {
		return fmt.Errorf("list games: %w", err)
	}
	n.games = make(map[int64]candidate, len(games))
	n.exact = make(map[string]int64, len(games))
	for _, g := range games {
		n.putLocked(g)
	}
	n.loaded = true
	return nil
}

func (n *Normalizer) ensureLoaded(ctx context.Context) error {
	if n.loaded {
		return nil
	}
	return n.loadLocked(ctx)
}

func (n *Normalizer) putLocked(g model.Game) {
	if prev, ok := n.games[g.ID]; ok {
		for _, f := range prev.folded {
			if n.exact[f] == g.ID {
				delete(n.exact, f)
			}
		}
	}
	c := newCandidate(g)
	n.games[g.ID] = c
	for _, f := range c.folded {
		if id, ok := n.exact[f]; ok && id != g.ID {
			// Keep the most recently updated owner of a shared alias.
			if other := n.games[id].game; !g.UpdatedAt.After(other.UpdatedAt) {
				continue
			}
		}
		n.exact[f] = g.ID
	}
}

func (n *Normalizer) resolveLocked(folded string) (Match, bool) {
	if id, ok := n.exact[folded]; ok {
		return Match{Game: n.games[id].game, Score: 1, Exact: true}, true
	}
	cands := make([]candidate, 0, len(n.games))
	for _, c := range n.games {
		cands = append(cands, c)
	}
	return resolve(folded, cands, n.threshold)
}

// ResolveTitle maps a title to a catalog game. With create set, an unknown
// title becomes a new game; otherwise found is false.
func (n *Normalizer) ResolveTitle(ctx context.Context, title string, create bool) (game model.Game, found bool, err error) {
	title = strings.TrimSpace(title)
	folded := Fold(title)
	if folded == "" {
		return model.Game{}, false, &ParseError{Title: title, Field: "title", Value: title, Reason: "empty title"}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ensureLoaded(ctx); err != nil {
		return model.Game{}, false, err
	}

	now := n.now().UTC()
	if m, ok := n.resolveLocked(folded); ok {
		g := m.Game
		if !m.Exact && g.AddAlias(title, SameTitle) {
			if err := n.store.SaveAliases(ctx, g.ID, g.Aliases, now); err != nil {
				return model.Game{}, false, fmt.Errorf("save aliases: %w", err)
			}
			g.UpdatedAt = now
			n.putLocked(g)
			n.logger.Debug("Alias added", "game_id", g.ID, "title", g.Title, "alias", title, "score", m.Score)
		}
		return g, true, nil
	}
	if !create {
		return model.Game{}, false, nil
	}

	g, err := n.store.CreateGame(ctx, title, folded, now)
	if err != nil {
		return model.Game{}, false, fmt.Errorf("create game: %w", err)
	}
	n.putLocked(g)
	n.logger.Info("Game created", "game_id", g.ID, "title", g.Title)
	return g, true, nil
}

// Search returns up to limit games ranked by similarity to query.
func (n *Normalizer) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	folded := Fold(query)
	if folded == "" {
		return nil, nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	var out []Match
	for _, c := range n.games {
		m := Match{Game: c.game}
		for _, f := range c.folded {
			if f == folded {
				m.Exact, m.Score = true, 1
				break
			}
			s := TokenSetRatio(folded, f)
			if strings.Contains(f, folded) {
				s = max(s, 0.75)
			}
			m.Score = max(m.Score, s)
		}
		if m.Exact || m.Score >= 0.5 {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Normalize converts one raw observation. Errors other than *ParseError are
// store failures.
func (n *Normalizer) Normalize(ctx context.Context, raw model.RawObservation) (model.PriceObservation, error) {
	title := strings.TrimSpace(raw.Title)
	reg, ok := region.Lookup(raw.RegionCode)
	if !ok {
		return model.PriceObservation{}, &ParseError{Title: title, Field: "region_code", Value: raw.RegionCode, Reason: "unknown region"}
	}
	code := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if code == "" {
		code = reg.Currency
	}

	price, err := ParsePrice(raw.PriceText, reg, code)
	if err != nil {
		return model.PriceObservation{}, &ParseError{Title: title, Field: "price_text", Value: raw.PriceText, Reason: err.Error()}
	}

	list := price
	discount := 0
	switch {
	case strings.TrimSpace(raw.ListPriceText) != "":
		list, err = ParsePrice(raw.ListPriceText, reg, code)
		if err != nil {
			return model.PriceObservation{}, &ParseError{Title: title, Field: "list_price_text", Value: raw.ListPriceText, Reason: err.Error()}
		}
		if list < price {
			return model.PriceObservation{}, &ParseError{Title: title, Field: "list_price_text", Value: raw.ListPriceText, Reason: "list price below sale price"}
		}
		discount = discountOf(price, list)
	case raw.DiscountPercent != nil:
		discount = *raw.DiscountPercent
		if discount < 0 || discount > 100 {
			return model.PriceObservation{}, &ParseError{Title: title, Field: "discount_percent", Value: fmt.Sprint(discount), Reason: "out of range"}
		}
		list = listFromDiscount(price, discount)
	}

	observed := raw.ScrapedAt
	if observed.IsZero() {
		observed = n.now()
	}

	game, _, err := n.ResolveTitle(ctx, title, true)
	if err != nil {
		return model.PriceObservation{}, err
	}

	return model.PriceObservation{
		GameID:          game.ID,
		Region:          reg.Code,
		Price:           price,
		ListPrice:       list,
		Currency:        code,
		DiscountPercent: discount,
		SourceURL:       strings.TrimSpace(raw.URL),
		ObservedAt:      observed.UTC().Truncate(time.Microsecond),
	}, nil
}

// BatchResult is the outcome of normalising one batch.
type BatchResult struct {
	Observations []model.PriceObservation
	Dropped      []*ParseError
}

// NormalizeBatch converts a batch, dropping and logging unparseable rows.
// A store failure aborts the batch.
func (n *Normalizer) NormalizeBatch(ctx context.Context, raws []model.RawObservation) (BatchResult, error) {
	var res BatchResult
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		obs, err := n.Normalize(ctx, raw)
		var pe *ParseError
		switch {
		case errors.As(err, &pe):
			n.logger.Warn("Dropped observation", "region", raw.RegionCode, "title", pe.Title,
				"field", pe.Field, "value", pe.Value, "reason", pe.Reason)
			res.Dropped = append(res.Dropped, pe)
		case err != nil:
			return res, fmt.Errorf("normalize %q: %w", raw.Title, err)
		default:
			res.Observations = append(res.Observations, obs)
		}
	}
	return res, nil
}
