package ledger

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/icpay/backend/internal/middleware"
	"github.com/icpay/backend/internal/models"
)

type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
	Formatted string `json:"formatted"`
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

// Balance serves GET /v1/balance. The balance is folded from the event
// history on every call.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	if accountID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	balance, err := h.svc.Balance(r.Context(), accountID)
	if err != nil {
		h.log.Error("balance failed", "account", accountID, "error", err)
		http.Error(w, "balance failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(BalanceResponse{
		AccountID: accountID.String(),
		Balance:   balance,
		Formatted: models.FormatToken(balance),
	})
}

// History serves GET /v1/balance/history: the full event stream, oldest
// first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	if accountID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	events, err := h.svc.History(r.Context(), accountID)
	if err != nil {
		h.log.Error("history failed", "account", accountID, "error", err)
		http.Error(w, "history failed", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*models.BalanceChangeEvent{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}
