package rates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/icpay/backend/internal/clock"
	"github.com/icpay/backend/internal/models"
)

// rateValidity is how long a cached entry counts as fresh.
const rateValidity = int64(5 * time.Minute)

var (
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	// ErrNoRateAvailable is returned only when every fetch attempt failed and
	// no cache entry of any age exists.
	ErrNoRateAvailable = errors.New("no exchange rate available")
)

// Quote is a rate plus how it was obtained: "live", "cached", "recent"
// (rate-limited, cache still valid), or "stale_<n>min".
type Quote struct {
	Currency  string  `json:"currency"`
	Rate      float64 `json:"rate"`
	FetchedAt int64   `json:"fetched_at"`
	Source    string  `json:"source"`
	Freshness string  `json:"freshness"`
	IsFresh   bool    `json:"is_fresh"`
}

// Fetcher performs a live price lookup. *Client satisfies it; tests inject a
// scripted fake.
type Fetcher interface {
	Fetch(ctx context.Context, currency string) (*models.ExchangeRate, error)
}

// Cache holds the single current entry per currency. Get returns (nil, nil)
// on a miss. *RedisCache satisfies it.
type Cache interface {
	Get(ctx context.Context, currency string) (*models.ExchangeRate, error)
	Set(ctx context.Context, rate *models.ExchangeRate) error
}

type Service interface {
	GetOrFetch(ctx context.Context, currency string) (*Quote, error)
	ForceRefresh(ctx context.Context, currency string) (*Quote, error)
	Convert(ctx context.Context, fiatAmount float64, currency string) (tokenAmount int64, rate *Quote, err error)
}

type service struct {
	fetcher Fetcher
	cache   Cache
	clock   clock.Clock
	log     *slog.Logger
}

func NewService(fetcher Fetcher, cache Cache, clk clock.Clock, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{fetcher: fetcher, cache: cache, clock: clk, log: log}
}

var _ Service = (*service)(nil)

// GetOrFetch returns a fresh cached entry when one exists, otherwise fetches
// with retries. Availability wins over freshness: after exhausted retries any
// cached entry of any age is returned, explicitly tagged stale. The call only
// fails when no cache entry exists at all.
func (s *service) GetOrFetch(ctx context.Context, currency string) (*Quote, error) {
	ccy := strings.ToUpper(currency)
	if !IsSupported(ccy) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, ccy)
	}

	cached, err := s.cache.Get(ctx, ccy)
	if err != nil {
		s.log.Warn("rate cache read failed", "currency", ccy, "error", err)
		cached = nil
	}
	now := s.clock.Now()
	if cached != nil && now-cached.FetchedAt < rateValidity {
		return s.quote(cached, "cached"), nil
	}

	fetched, err := s.fetchWithRetry(ctx, ccy, true)
	if err == nil {
		if cerr := s.cache.Set(ctx, fetched); cerr != nil {
			s.log.Warn("rate cache write failed", "currency", ccy, "error", cerr)
		}
		return s.quote(fetched, "live"), nil
	}

	// Re-read the cache: a concurrent request may have refreshed it while we
	// were backing off.
	if c, cerr := s.cache.Get(ctx, ccy); cerr == nil && c != nil {
		cached = c
	}
	now = s.clock.Now()
	if errors.Is(err, ErrRateLimited) && cached != nil && now-cached.FetchedAt < rateValidity {
		// Rate-limited with a still-valid cache entry: stop hammering the
		// source and serve what we have.
		return s.quote(cached, "recent"), nil
	}
	if cached != nil {
		ageMin := (now - cached.FetchedAt) / int64(time.Minute)
		s.log.Warn("serving stale exchange rate", "currency", ccy, "age_min", ageMin, "error", err)
		return s.quote(cached, fmt.Sprintf("stale_%dmin", ageMin)), nil
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrNoRateAvailable, ccy, err)
}

// ForceRefresh bypasses cache validity entirely. Retries still apply but a
// genuine failure propagates; there is no stale fallback.
func (s *service) ForceRefresh(ctx context.Context, currency string) (*Quote, error) {
	ccy := strings.ToUpper(currency)
	if !IsSupported(ccy) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, ccy)
	}
	fetched, err := s.fetchWithRetry(ctx, ccy, false)
	if err != nil {
		return nil, err
	}
	if cerr := s.cache.Set(ctx, fetched); cerr != nil {
		s.log.Warn("rate cache write failed", "currency", ccy, "error", cerr)
	}
	return s.quote(fetched, "live"), nil
}

// Convert resolves a rate via GetOrFetch and converts a fiat amount into
// token minor units.
func (s *service) Convert(ctx context.Context, fiatAmount float64, currency string) (int64, *Quote, error) {
	q, err := s.GetOrFetch(ctx, currency)
	if err != nil {
		return 0, nil, err
	}
	tokenAmount, err := ConvertFiatToToken(fiatAmount, q.Rate)
	if err != nil {
		return 0, nil, err
	}
	return tokenAmount, q, nil
}

// fetchWithRetry makes up to 3 attempts with exponential backoff. When
// abortOnRateLimit is set, a 429 stops the retry loop immediately so the
// caller can fall back to the cache.
func (s *service) fetchWithRetry(ctx context.Context, currency string, abortOnRateLimit bool) (*models.ExchangeRate, error) {
	var fetched *models.ExchangeRate
	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		rate, ferr := s.fetcher.Fetch(ctx, currency)
		if ferr != nil {
			if abortOnRateLimit && errors.Is(ferr, ErrRateLimited) {
				return ferr
			}
			s.log.Warn("rate fetch attempt failed", "currency", currency, "error", ferr)
			return retry.RetryableError(ferr)
		}
		fetched = rate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fetched, nil
}

func (s *service) quote(rate *models.ExchangeRate, freshness string) *Quote {
	return &Quote{
		Currency:  rate.Currency,
		Rate:      rate.Rate,
		FetchedAt: rate.FetchedAt,
		Source:    rate.Source,
		Freshness: freshness,
		IsFresh:   s.clock.Now()-rate.FetchedAt < rateValidity,
	}
}
