package models

// ExchangeRate is a cached fiat/token quote. One current entry per currency;
// the cache slot is overwritten on refresh (a cache, not a ledger).
type ExchangeRate struct {
	Currency  string  `json:"currency"`
	Rate      float64 `json:"rate"`
	FetchedAt int64   `json:"fetched_at"`
	Source    string  `json:"source"`
}
