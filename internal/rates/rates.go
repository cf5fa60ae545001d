// Package rates fetches USD exchange rates used to convert fiat-denominated
// transfer amounts into token amounts.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when no fresh rates could be obtained.
var ErrUnavailable = errors.New("rates: exchange rates unavailable")

const (
	defaultRatesURL = "https://open.er-api.com/v6/latest/USD"
	cacheKey        = "rates:usd"
)

// Service provides USD-base exchange rates keyed by currency code.
type Service interface {
	USDRates(ctx context.Context) (map[string]decimal.Decimal, error)
}

// HTTPService fetches rates from an open.er-api.com compatible endpoint and
// caches them in Redis.
type HTTPService struct {
	url        string
	httpClient *http.Client
	cache      *redis.Client
	cacheTTL   time.Duration
}

var _ Service = (*HTTPService)(nil)

// NewHTTPService creates a rates service. cache may be nil to disable caching.
func NewHTTPService(url string, cache *redis.Client, cacheTTL time.Duration) *HTTPService {
	if url == "" {
		url = defaultRatesURL
	}
	return &HTTPService{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

func (s *HTTPService) USDRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	if cached := s.fromCache(ctx); cached != nil {
		return cached, nil
	}

	fetched, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, fetched)
	return fetched, nil
}

func (s *HTTPService) fetch(ctx context.Context) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned %d", ErrUnavailable, resp.StatusCode)
	}

	var payload struct {
		Result string                     `json:"result"`
		Rates  map[string]decimal.Decimal `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	if payload.Result != "success" || len(payload.Rates) == 0 {
		return nil, fmt.Errorf("%w: provider result %q", ErrUnavailable, payload.Result)
	}
	return payload.Rates, nil
}

func (s *HTTPService) fromCache(ctx context.Context) map[string]decimal.Decimal {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("rates cache read failed", zap.Error(err))
		}
		return nil
	}
	var rates map[string]decimal.Decimal
	if err := json.Unmarshal(raw, &rates); err != nil {
		return nil
	}
	return rates
}

func (s *HTTPService) toCache(ctx context.Context, rates map[string]decimal.Decimal) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(rates)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey, raw, s.cacheTTL).Err(); err != nil {
		zap.L().Warn("rates cache write failed", zap.Error(err))
	}
}

// Static serves a fixed rate table. Used in tests and as a degraded fallback.
type Static map[string]decimal.Decimal

var _ Service = Static{}

func (s Static) USDRates(context.Context) (map[string]decimal.Decimal, error) {
	if len(s) == 0 {
		return nil, ErrUnavailable
	}
	return s, nil
}
