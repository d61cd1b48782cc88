package rates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/icpay/backend/internal/clock"
	"github.com/icpay/backend/internal/models"
)

// ErrRateLimited signals that the upstream price source rejected the request
// with HTTP 429. The cache policy treats it differently from other failures.
var ErrRateLimited = errors.New("rate source is rate limiting")

// Client fetches live token prices from the CoinGecko simple-price endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	clock      clock.Clock
}

func NewClient(baseURL string, clk clock.Clock) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		clock:      clk,
	}
}

// Fetch retrieves the current fiat price of one token. The response nests the
// price under "internet-computer.<currency>".
func (c *Client) Fetch(ctx context.Context, currency string) (*models.ExchangeRate, error) {
	lower := strings.ToLower(currency)
	url := fmt.Sprintf("%s?ids=internet-computer&vs_currencies=%s", c.baseURL, lower)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "icpay-backend/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rate fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate fetch: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if err != nil {
		return nil, fmt.Errorf("rate fetch: read body: %w", err)
	}

	price := gjson.GetBytes(body, "internet-computer."+lower)
	if !price.Exists() {
		return nil, fmt.Errorf("rate fetch: no price for %q in response", lower)
	}
	rate := price.Float()
	if rate <= 0 {
		return nil, fmt.Errorf("rate fetch: invalid rate %v for %q", rate, lower)
	}

	return &models.ExchangeRate{
		Currency:  strings.ToUpper(currency),
		Rate:      rate,
		FetchedAt: c.clock.Now(),
		Source:    "coingecko",
	}, nil
}
