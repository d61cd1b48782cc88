package qr

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
	FiatAmount   float64 `json:"fiat_amount"`
	FiatCurrency string  `json:"fiat_currency"`
	Description  string  `json:"description"`
}

type CodeResponse struct {
	*models.QRCode
	Display *models.QRDisplayInfo `json:"display"`
	Status  string                `json:"status"`
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

// Create serves POST /v1/qr.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.AccountIDFromCtx(r.Context())
	if ownerID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	q, err := h.svc.Create(r.Context(), ownerID, req.FiatAmount, req.FiatCurrency, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, rates.ErrConversionTooSmall):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, rates.ErrUnsupportedCurrency):
			http.Error(w, "unsupported currency", http.StatusBadRequest)
		case errors.Is(err, rates.ErrNoRateAvailable):
			http.Error(w, "exchange rate unavailable", http.StatusServiceUnavailable)
		default:
			h.log.Error("create qr failed", "error", err)
			http.Error(w, "create qr failed", http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(h.toResponse(r, q))
}

// Get serves GET /v1/qr/{id}, used by payers to inspect a scanned code.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !ValidateIDFormat(id) {
		http.Error(w, "malformed qr id", http.StatusBadRequest)
		return
	}
	q, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "qr code not found", http.StatusNotFound)
			return
		}
		h.log.Error("get qr failed", "id", id, "error", err)
		http.Error(w, "get qr failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.toResponse(r, q))
}

// List serves GET /v1/qr, returning the caller's own codes.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.AccountIDFromCtx(r.Context())
	if ownerID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.svc.ListByOwner(r.Context(), ownerID)
	if err != nil {
		h.log.Error("list qr failed", "error", err)
		http.Error(w, "list qr failed", http.StatusInternalServerError)
		return
	}
	resp := make([]*CodeResponse, 0, len(list))
	for _, q := range list {
		resp = append(resp, h.toResponse(r, q))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) toResponse(r *http.Request, q *models.QRCode) *CodeResponse {
	status := "active"
	switch err := h.svc.IsRedeemable(r.Context(), q); {
	case errors.Is(err, ErrAlreadyUsed):
		status = "used"
	case errors.Is(err, ErrExpired):
		status = "expired"
	case err != nil:
		status = "unknown"
	}
	return &CodeResponse{
		QRCode:  q,
		Display: h.svc.DisplayInfo(q),
		Status:  status,
	}
}
