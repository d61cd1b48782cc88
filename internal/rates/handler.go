package rates

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// GetRate serves GET /v1/rates/{currency}. ?refresh=true bypasses the cache.
func (h *Handler) GetRate(w http.ResponseWriter, r *http.Request) {
	currency := r.PathValue("currency")
	var (
		q   *Quote
		err error
	)
	if r.URL.Query().Get("refresh") == "true" {
		q, err = h.svc.ForceRefresh(r.Context(), currency)
	} else {
		q, err = h.svc.GetOrFetch(r.Context(), currency)
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrUnsupportedCurrency):
			http.Error(w, "unsupported currency", http.StatusBadRequest)
		case errors.Is(err, ErrNoRateAvailable):
			http.Error(w, "exchange rate unavailable", http.StatusServiceUnavailable)
		default:
			h.log.Error("get rate failed", "currency", currency, "error", err)
			http.Error(w, "exchange rate unavailable", http.StatusServiceUnavailable)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(q)
}

// Currencies serves GET /v1/currencies.
func (h *Handler) Currencies(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"currencies": SupportedCurrencies,
	})
}
