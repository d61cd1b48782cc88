package topup

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/icpay/backend/internal/middleware"
	"github.com/icpay/backend/internal/models"
	"github.com/icpay/backend/internal/rates"
)

type CreateRequest struct {
	Method models.TopUpMethod `json:"method"`

	// QRIS and card funding are denominated in fiat.
	FiatAmount   float64 `json:"fiat_amount,omitempty"`
	FiatCurrency string  `json:"fiat_currency,omitempty"`

	// Card funding only. The number is validated, masked, and discarded.
	CardNumber string `json:"card_number,omitempty"`

	// Web3 funding is denominated directly in token minor units.
	TokenAmount       int64  `json:"token_amount,omitempty"`
	WalletAddress     string `json:"wallet_address,omitempty"`
	BlockchainNetwork string `json:"blockchain_network,omitempty"`
}

type ClaimRequest struct {
	TransactionHash *string `json:"transaction_hash,omitempty"`
}

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

// Create serves POST /v1/topups, dispatching on the funding method.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	if accountID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	var (
		t   *models.TopUpTransaction
		err error
	)
	switch req.Method {
	case models.TopUpQRIS:
		t, err = h.svc.CreateQRIS(r.Context(), accountID, req.FiatAmount, req.FiatCurrency)
	case models.TopUpCreditCard, models.TopUpDebitCard:
		t, err = h.svc.CreateCard(r.Context(), accountID, req.Method, req.CardNumber, req.FiatAmount, req.FiatCurrency)
	case models.TopUpWeb3Wallet:
		t, err = h.svc.CreateWeb3(r.Context(), accountID, req.TokenAmount, req.WalletAddress, req.BlockchainNetwork)
	default:
		http.Error(w, "unsupported topup method", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(t)
}

// Claim serves POST /v1/topups/{id}/claim.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	if accountID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req ClaimRequest
	if r.Body != nil {
		// The body is optional; only web3 claims carry a hash.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	t, err := h.svc.Claim(r.Context(), accountID, r.PathValue("id"), req.TransactionHash)
	if err != nil && !errors.Is(err, ErrExpired) {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if errors.Is(err, ErrExpired) {
		w.WriteHeader(http.StatusGone)
	}
	_ = json.NewEncoder(w).Encode(t)
}

// Get serves GET /v1/topups/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	if accountID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	t, err := h.svc.Get(r.Context(), accountID, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(t)
}

// List serves GET /v1/topups.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	if accountID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.svc.ListByAccount(r.Context(), accountID)
	if err != nil {
		h.log.Error("list topups failed", "error", err)
		http.Error(w, "list topups failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.TopUpTransaction{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotOwner):
		http.Error(w, "topup not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrCardInvalid), errors.Is(err, ErrBadMethod):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrCardDeclined):
		http.Error(w, "card declined", http.StatusPaymentRequired)
	case errors.Is(err, ErrNotClaimable):
		http.Error(w, "topup is not pending", http.StatusConflict)
	case errors.Is(err, rates.ErrUnsupportedCurrency):
		http.Error(w, "unsupported currency", http.StatusBadRequest)
	case errors.Is(err, rates.ErrNoRateAvailable):
		http.Error(w, "exchange rate unavailable", http.StatusServiceUnavailable)
	default:
		h.log.Error("topup request failed", "error", err)
		http.Error(w, "topup request failed", http.StatusInternalServerError)
	}
}
