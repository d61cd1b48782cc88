package main

import (
	"encoding/json"
	"net/http"

	"github.com/icpay/backend/internal/auth"
	"github.com/icpay/backend/internal/ledger"
	"github.com/icpay/backend/internal/middleware"
	"github.com/icpay/backend/internal/payments"
	"github.com/icpay/backend/internal/qr"
	"github.com/icpay/backend/internal/rates"
	"github.com/icpay/backend/internal/topup"
)

type handlers struct {
	auth     *auth.Handler
	rates    *rates.Handler
	qr       *qr.Handler
	ledger   *ledger.Handler
	payments *payments.Handler
	topups   *topup.Handler
}

// registerRoutes wires the HTTP surface. Everything under /v1/ except rate
// lookups requires a bearer token.
func registerRoutes(mux *http.ServeMux, h *handlers, authSvc auth.Service) {
	authed := middleware.RequireAuth(authSvc)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/auth/register", h.auth.Register)
	mux.HandleFunc("POST /api/auth/login", h.auth.Login)

	mux.HandleFunc("GET /v1/rates/{currency}", h.rates.GetRate)
	mux.HandleFunc("GET /v1/currencies", h.rates.Currencies)

	mux.Handle("POST /v1/qr", authed(http.HandlerFunc(h.qr.Create)))
	mux.Handle("GET /v1/qr", authed(http.HandlerFunc(h.qr.List)))
	mux.Handle("GET /v1/qr/{id}", authed(http.HandlerFunc(h.qr.Get)))

	mux.Handle("GET /v1/balance", authed(http.HandlerFunc(h.ledger.Balance)))
	mux.Handle("GET /v1/balance/history", authed(http.HandlerFunc(h.ledger.History)))

	mux.Handle("POST /v1/payments", authed(http.HandlerFunc(h.payments.Settle)))
	mux.Handle("GET /v1/transactions", authed(http.HandlerFunc(h.payments.List)))
	mux.Handle("GET /v1/transactions/summary", authed(http.HandlerFunc(h.payments.Summary)))
	mux.Handle("GET /v1/transactions/{base_id}", authed(http.HandlerFunc(h.payments.History)))

	mux.Handle("POST /v1/topups", authed(http.HandlerFunc(h.topups.Create)))
	mux.Handle("GET /v1/topups", authed(http.HandlerFunc(h.topups.List)))
	mux.Handle("GET /v1/topups/{id}", authed(http.HandlerFunc(h.topups.Get)))
	mux.Handle("POST /v1/topups/{id}/claim", authed(http.HandlerFunc(h.topups.Claim)))
}
