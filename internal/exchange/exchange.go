// Package exchange converts regional prices into a base currency for
// cross-region comparison. Rates come from an open exchange-rate API, are
// cached for a day, and fall back to fixed rates when the API is down.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oshri1997/Deal-Hunter/internal/cache"
	"github.com/oshri1997/Deal-Hunter/internal/money"
)

// FallbackToILS holds the value of one unit of a currency in ILS, used when
// no live rate is available.
var FallbackToILS = map[string]decimal.Decimal{
	"ILS": decimal.NewFromInt(1),
	"USD": decimal.RequireFromString("3.7"),
	"INR": decimal.RequireFromString("0.044"),
}

// Service resolves rates into Base.
type Service struct {
	Base string

	httpClient *http.Client
	baseURL    string
	cache      *cache.Cache
	logger     *slog.Logger

	mu   sync.Mutex
	last map[string]decimal.Decimal
}

// New creates a rate service. c may be nil to disable caching.
func New(baseURL, base string, c *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Base:       strings.ToUpper(base),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		cache:      c,
		logger:     logger,
	}
}

// apiResponse is the rates API payload: units of each currency per one
// unit of the base.
type apiResponse struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

// Rates returns the value of one unit of each currency in Base.
func (s *Service) Rates(ctx context.Context) map[string]decimal.Decimal {
	key := "rates:" + s.Base
	if data, _, ok := s.cache.Get(key); ok {
		var cached map[string]decimal.Decimal
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached
		}
	}

	rates, err := s.fetch(ctx)
	if err != nil {
		s.logger.Warn("Exchange rate refresh failed, using cached or fallback rates", "base", s.Base, "error", err)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.last != nil {
			return s.last
		}
		return s.fallback()
	}

	if data, err := json.Marshal(rates); err == nil {
		s.cache.Set(key, data, cache.TTLRates)
	}
	s.mu.Lock()
	s.last = rates
	s.mu.Unlock()
	s.logger.Info("Exchange rates refreshed", "base", s.Base, "currencies", len(rates))
	return rates
}

// Convert turns minor units of currency into a Base amount rounded to the
// base currency's scale. ok is false when no rate is known.
func (s *Service) Convert(ctx context.Context, amount int64, currency string) (decimal.Decimal, bool) {
	currency = strings.ToUpper(currency)
	major := money.Decimal(amount, currency)
	if currency == s.Base {
		return major, true
	}
	rate, ok := s.Rates(ctx)[currency]
	if !ok {
		return decimal.Zero, false
	}
	scale, err := money.MinorUnits(s.Base)
	if err != nil {
		scale = 2
	}
	return major.Mul(rate).Round(int32(scale)), true
}

func (s *Service) fetch(ctx context.Context) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+s.Base, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rates API returned %d", resp.StatusCode)
	}

	var payload apiResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if payload.Result != "" && payload.Result != "success" {
		return nil, fmt.Errorf("rates API result %q", payload.Result)
	}

	one := decimal.NewFromInt(1)
	rates := map[string]decimal.Decimal{s.Base: one}
	for code, perBase := range payload.Rates {
		if perBase <= 0 {
			continue
		}
		rates[strings.ToUpper(code)] = one.Div(decimal.NewFromFloat(perBase))
	}
	return rates, nil
}

func (s *Service) fallback() map[string]decimal.Decimal {
	if s.Base == "ILS" {
		return FallbackToILS
	}
	return map[string]decimal.Decimal{s.Base: decimal.NewFromInt(1)}
}
