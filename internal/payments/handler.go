package payments

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/icpay/backend/internal/middleware"
	"github.com/icpay/backend/internal/models"
	"github.com/icpay/backend/internal/qr"
)

type SettleRequest struct {
	QRID         string  `json:"qr_id"`
	ExternalHash *string `json:"external_hash,omitempty"`
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

// Settle serves POST /v1/payments: the authenticated caller pays the QR code.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	payerID := middleware.AccountIDFromCtx(r.Context())
	if payerID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if !qr.ValidateIDFormat(req.QRID) {
		http.Error(w, "malformed qr id", http.StatusBadRequest)
		return
	}
	t, err := h.svc.Settle(r.Context(), payerID, req.QRID, req.ExternalHash)
	if err != nil {
		switch {
		case errors.Is(err, qr.ErrNotFound):
			http.Error(w, "qr code not found", http.StatusNotFound)
		case errors.Is(err, qr.ErrAlreadyUsed):
			http.Error(w, "qr code already used", http.StatusConflict)
		case errors.Is(err, qr.ErrExpired):
			http.Error(w, "qr code expired", http.StatusGone)
		case errors.Is(err, ErrSelfPayment):
			http.Error(w, "cannot pay your own qr code", http.StatusBadRequest)
		case errors.Is(err, ErrRecipientNotRegistered):
			http.Error(w, "recipient not registered", http.StatusUnprocessableEntity)
		case errors.Is(err, ErrAmountOutOfBounds):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, ErrInsufficientBalance):
			http.Error(w, "insufficient balance", http.StatusPaymentRequired)
		default:
			h.log.Error("settle failed", "qr_id", req.QRID, "error", err)
			http.Error(w, "settlement failed", http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(t)
}

// List serves GET /v1/transactions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	if accountID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.svc.ListByAccount(r.Context(), accountID)
	if err != nil {
		h.log.Error("list transactions failed", "error", err)
		http.Error(w, "list transactions failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Transaction{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

// Summary serves GET /v1/transactions/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	if accountID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sum, err := h.svc.Summary(r.Context(), accountID)
	if err != nil {
		h.log.Error("transaction summary failed", "error", err)
		http.Error(w, "transaction summary failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sum)
}

// History serves GET /v1/transactions/{base_id}: the transition rows of one
// payment. Only a party to the payment may read it.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	if accountID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	rows, err := h.svc.History(r.Context(), r.PathValue("base_id"))
	if err != nil {
		h.log.Error("transaction history failed", "error", err)
		http.Error(w, "transaction history failed", http.StatusInternalServerError)
		return
	}
	if len(rows) == 0 || (rows[0].Payer != accountID && rows[0].Payee != accountID) {
		http.Error(w, "transaction not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}
