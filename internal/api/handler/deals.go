package handler

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oshri1997/Deal-Hunter/internal/api/respond"
	"github.com/oshri1997/Deal-Hunter/internal/cache"
	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/money"
	"github.com/oshri1997/Deal-Hunter/internal/region"
)

type regionView struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Symbol   string `json:"symbol"`
	Flag     string `json:"flag"`
	StoreURL string `json:"store_url"`
}

// GetRegions returns the region catalog.
// @Summary Region catalog
// @Tags regions
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /regions [get]
func (h *Handler) GetRegions(w http.ResponseWriter, r *http.Request) {
	key := "regions:all"
	if data, etag, ok := h.cache.Get(key); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, cache.TTLRegions, true)
		return
	}

	all := region.All()
	out := make([]regionView, 0, len(all))
	for _, rg := range all {
		out = append(out, regionView{rg.Code, rg.Name, rg.Currency, rg.Symbol, rg.Flag, rg.StoreURL})
	}
	h.writeCached(w, key, map[string]interface{}{"regions": out}, cache.TTLRegions)
}

// GetRegionDeals returns open deals of one region, newest first. Pages are
// cached until the next cycle of the region.
// @Summary Region deal listing
// @Tags deals
// @Produce json
// @Param region path string true "Region code"
// @Param offset query int false "Offset"
// @Param limit query int false "Page size (1-100, default 20)"
// @Success 200 {object} map[string]interface{}
// @Success 304
// @Failure 400 {object} respond.ErrorResponse
// @Router /deals/{region} [get]
func (h *Handler) GetRegionDeals(w http.ResponseWriter, r *http.Request) {
	reg, ok := region.Lookup(chi.URLParam(r, "region"))
	if !ok {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_REGION", "unknown region")
		return
	}
	offset, limit := page(r)
	key := cache.DealsKey(reg.Code, offset, limit)

	if data, etag, ok := h.cache.Get(key); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, cache.TTLDeals, true)
		return
	}

	deals, total, err := h.deals.ListDeals(r.Context(), []string{reg.Code}, offset, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeCached(w, key, map[string]interface{}{
		"region": reg.Code,
		"deals":  deals,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	}, cache.TTLDeals)
}

// SearchGames ranks catalog games by similarity to q.
// @Summary Search games
// @Tags games
// @Produce json
// @Param q query string true "Title query"
// @Param limit query int false "Max results (1-50, default 10)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /games/search [get]
func (h *Handler) SearchGames(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_QUERY", "q query parameter is required")
		return
	}
	limit := 10
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l >= 1 && l <= 50 {
		limit = l
	}
	matches, err := h.members.SearchGames(r.Context(), q, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	type result struct {
		Game  model.Game `json:"game"`
		Score float64    `json:"score"`
		Exact bool       `json:"exact"`
	}
	out := make([]result, 0, len(matches))
	for _, m := range matches {
		out = append(out, result{m.Game, m.Score, m.Exact})
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"query": q, "results": out})
}

type comparedDeal struct {
	Region          string  `json:"region"`
	Flag            string  `json:"flag"`
	Price           string  `json:"price"`
	ListPrice       string  `json:"list_price"`
	Currency        string  `json:"currency"`
	DiscountPercent int     `json:"discount_percent"`
	Converted       *string `json:"converted,omitempty"`
	SourceURL       string  `json:"source_url,omitempty"`

	sortKey *float64
}

// CompareGame lists a game's open deals across regions converted to the
// base currency, cheapest first. Deals without a known rate sort last.
// @Summary Cross-region price comparison
// @Tags games
// @Produce json
// @Param gameID path int true "Game ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /games/{gameID}/compare [get]
func (h *Handler) CompareGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := idParam(w, r, "gameID", "INVALID_GAME_ID")
	if !ok {
		return
	}
	if h.rates == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "RATES_UNAVAILABLE", "exchange rates are not configured")
		return
	}
	ctx := r.Context()
	g, err := h.deals.GetGame(ctx, gameID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	deals, err := h.deals.GameDeals(ctx, gameID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]comparedDeal, 0, len(deals))
	for _, d := range deals {
		c := comparedDeal{
			Region:          d.Region,
			Price:           money.Format(d.Price, d.Currency),
			ListPrice:       money.Format(d.ListPrice, d.Currency),
			Currency:        d.Currency,
			DiscountPercent: d.DiscountPercent,
			SourceURL:       d.SourceURL,
		}
		if rg, ok := region.Lookup(d.Region); ok {
			c.Flag = rg.Flag
		}
		if v, ok := h.rates.Convert(ctx, d.Price, d.Currency); ok {
			s := v.String()
			f := v.InexactFloat64()
			c.Converted, c.sortKey = &s, &f
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].sortKey, out[j].sortKey
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return *a < *b
	})

	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"game":          g,
		"base_currency": h.rates.Base,
		"deals":         out,
	})
}

// writeCached marshals v, stores it under key and writes it with its ETag.
func (h *Handler) writeCached(w http.ResponseWriter, key string, v interface{}, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Marshal response failed", "key", key, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	etag := h.cache.Set(key, data, ttl)
	respond.WriteJSON(w, data, etag, ttl, false)
}
