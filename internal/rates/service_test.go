package rates

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/icpay/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Scripted fetcher and in-memory cache.
// ---------------------------------------------------------------------------

type fakeFetcher struct {
	calls int
	rate  *models.ExchangeRate
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (*models.ExchangeRate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.rate
	return &cp, nil
}

type memCache struct {
	entries map[string]*models.ExchangeRate
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*models.ExchangeRate)}
}

func (m *memCache) Get(_ context.Context, currency string) (*models.ExchangeRate, error) {
	r, ok := m.entries[currency]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memCache) Set(_ context.Context, rate *models.ExchangeRate) error {
	cp := *rate
	m.entries[rate.Currency] = &cp
	return nil
}

type fixedClock int64

func (c fixedClock) Now() int64 { return int64(c) }

const baseTime = int64(1_000_000_000_000_000_000)

func entry(currency string, rate float64, fetchedAt int64) *models.ExchangeRate {
	return &models.ExchangeRate{Currency: currency, Rate: rate, FetchedAt: fetchedAt, Source: "coingecko"}
}

// ---------------------------------------------------------------------------
// Cache validity window
// ---------------------------------------------------------------------------

func TestFreshCacheEntryIsReturnedWithoutFetch(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("should not be called")}
	cache := newMemCache()
	// Fetched 3 minutes ago: still within the 5-minute window.
	_ = cache.Set(context.Background(), entry("USD", 5.0, baseTime-int64(3*time.Minute)))
	svc := NewService(fetcher, cache, fixedClock(baseTime), nil)

	q, err := svc.GetOrFetch(context.Background(), "usd")
	if err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetcher called %d times for a fresh cache entry", fetcher.calls)
	}
	if !q.IsFresh || q.Freshness != "cached" {
		t.Errorf("fresh entry: is_fresh=%v freshness=%q", q.IsFresh, q.Freshness)
	}
}

func TestExpiredCacheEntryTriggersLiveFetch(t *testing.T) {
	fetcher := &fakeFetcher{rate: entry("USD", 6.0, baseTime)}
	cache := newMemCache()
	// Fetched 10 minutes ago: past the 5-minute window.
	_ = cache.Set(context.Background(), entry("USD", 5.0, baseTime-int64(10*time.Minute)))
	svc := NewService(fetcher, cache, fixedClock(baseTime), nil)

	q, err := svc.GetOrFetch(context.Background(), "USD")
	if err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetcher calls = %d, want 1", fetcher.calls)
	}
	if q.Rate != 6.0 || q.Freshness != "live" || !q.IsFresh {
		t.Errorf("live fetch: rate=%v freshness=%q is_fresh=%v", q.Rate, q.Freshness, q.IsFresh)
	}
	// The cache slot must be overwritten with the new rate.
	if cached, _ := cache.Get(context.Background(), "USD"); cached.Rate != 6.0 {
		t.Errorf("cache not refreshed: rate=%v", cached.Rate)
	}
}

// ---------------------------------------------------------------------------
// Failure fallbacks
// ---------------------------------------------------------------------------

func TestAllAttemptsFailFallsBackToStaleEntry(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("upstream down")}
	cache := newMemCache()
	_ = cache.Set(context.Background(), entry("USD", 5.0, baseTime-int64(12*time.Minute)))
	svc := NewService(fetcher, cache, fixedClock(baseTime), nil)

	q, err := svc.GetOrFetch(context.Background(), "USD")
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if fetcher.calls != 3 {
		t.Errorf("fetcher calls = %d, want 3 (initial + 2 retries)", fetcher.calls)
	}
	if !strings.HasPrefix(q.Freshness, "stale_") {
		t.Errorf("freshness = %q, want stale_<n>min", q.Freshness)
	}
	if q.IsFresh {
		t.Error("a 12-minute-old entry must not be reported fresh")
	}
}

func TestRateLimitAbortsRetriesAndServesRecentEntry(t *testing.T) {
	fetcher := &fakeFetcher{err: ErrRateLimited}
	cache := &refreshingCache{memCache: newMemCache()}
	svc := NewService(fetcher, cache, fixedClock(baseTime), nil)

	q, err := svc.GetOrFetch(context.Background(), "USD")
	if err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetcher calls = %d, want 1 (rate limit must abort retries)", fetcher.calls)
	}
	if q.Freshness != "recent" {
		t.Errorf("freshness = %q, want recent", q.Freshness)
	}
}

// refreshingCache simulates a concurrent request refreshing the cache while
// this one was fetching: the first Get misses, later Gets see a valid entry.
type refreshingCache struct {
	*memCache
	gets int
}

func (c *refreshingCache) Get(ctx context.Context, currency string) (*models.ExchangeRate, error) {
	c.gets++
	if c.gets == 1 {
		return nil, nil
	}
	return entry(currency, 5.5, baseTime-int64(time.Minute)), nil
}

func TestNoCacheAndAllAttemptsFailReturnsError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("upstream down")}
	svc := NewService(fetcher, newMemCache(), fixedClock(baseTime), nil)

	_, err := svc.GetOrFetch(context.Background(), "USD")
	if !errors.Is(err, ErrNoRateAvailable) {
		t.Errorf("expected ErrNoRateAvailable, got %v", err)
	}
}

func TestUnsupportedCurrencyFailsBeforeFetch(t *testing.T) {
	fetcher := &fakeFetcher{rate: entry("XYZ", 1.0, baseTime)}
	svc := NewService(fetcher, newMemCache(), fixedClock(baseTime), nil)

	_, err := svc.GetOrFetch(context.Background(), "XYZ")
	if !errors.Is(err, ErrUnsupportedCurrency) {
		t.Errorf("expected ErrUnsupportedCurrency, got %v", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("fetcher called for unsupported currency")
	}
}

func TestForceRefreshDoesNotFallBackToStale(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("upstream down")}
	cache := newMemCache()
	_ = cache.Set(context.Background(), entry("USD", 5.0, baseTime-int64(time.Minute)))
	svc := NewService(fetcher, cache, fixedClock(baseTime), nil)

	if _, err := svc.ForceRefresh(context.Background(), "USD"); err == nil {
		t.Error("ForceRefresh must propagate a genuine failure")
	}
	if fetcher.calls != 3 {
		t.Errorf("fetcher calls = %d, want 3", fetcher.calls)
	}
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

func TestConvertFiatToToken(t *testing.T) {
	// 10 USD at 5 USD/token = 2 tokens = 200,000,000 minor units.
	got, err := ConvertFiatToToken(10, 5.0)
	if err != nil {
		t.Fatalf("ConvertFiatToToken: %v", err)
	}
	if got != 200_000_000 {
		t.Errorf("ConvertFiatToToken(10, 5) = %d, want 200000000", got)
	}

	if _, err := ConvertFiatToToken(0.0000000001, 100.0); !errors.Is(err, ErrConversionTooSmall) {
		t.Errorf("expected ErrConversionTooSmall, got %v", err)
	}
	if _, err := ConvertFiatToToken(0, 5.0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := ConvertFiatToToken(10, 0); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("expected ErrInvalidRate, got %v", err)
	}
}

func TestConvertUsesFetchedRate(t *testing.T) {
	fetcher := &fakeFetcher{rate: entry("USD", 5.0, baseTime)}
	svc := NewService(fetcher, newMemCache(), fixedClock(baseTime), nil)

	tokenAmount, q, err := svc.Convert(context.Background(), 10, "USD")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if tokenAmount != 200_000_000 {
		t.Errorf("token amount = %d, want 200000000", tokenAmount)
	}
	if q.Rate != 5.0 {
		t.Errorf("quote rate = %v, want 5.0", q.Rate)
	}
}

func TestFormatFiat(t *testing.T) {
	if got := FormatFiat(10.5, "USD"); got != "10.50 USD" {
		t.Errorf("FormatFiat USD = %q", got)
	}
	if got := FormatFiat(15000, "IDR"); got != "15000 IDR" {
		t.Errorf("FormatFiat IDR = %q", got)
	}
}
