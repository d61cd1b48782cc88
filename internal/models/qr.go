package models

import (
	"github.com/google/uuid"
)

// QRCode is a time-boxed one-time payment request. Used is advisory only: the
// authoritative single-use guarantee is a PaymentCompleted row in qr_usage_log.
type QRCode struct {
	ID           string    `json:"id"`
	OwnerID      uuid.UUID `json:"owner_id"`
	FiatAmount   float64   `json:"fiat_amount"`
	FiatCurrency string    `json:"fiat_currency"`
	TokenAmount  int64     `json:"token_amount"`
	CreatedAt    int64     `json:"created_at"`
	ExpireTime   int64     `json:"expire_time"`
	Used         bool      `json:"used"`
	Description  string    `json:"description,omitempty"`
}

type QRUsageType string

const (
	QRUsagePaymentCompleted QRUsageType = "payment_completed"
	QRUsagePaymentFailed    QRUsageType = "payment_failed"
	QRUsagePaymentExpired   QRUsageType = "payment_expired"
)

// QRUsageLog is an append-only record of a redemption attempt against a QR code.
type QRUsageLog struct {
	ID            uuid.UUID   `json:"id"`
	QRID          string      `json:"qr_id"`
	OwnerID       uuid.UUID   `json:"owner_id"`
	UsedBy        uuid.UUID   `json:"used_by"`
	TransactionID string      `json:"transaction_id"`
	Timestamp     int64       `json:"timestamp"`
	UsageType     QRUsageType `json:"usage_type"`
}

// QRDisplayInfo is a read-only projection of a QR code for presentation.
type QRDisplayInfo struct {
	ID                   string  `json:"id"`
	FiatAmount           float64 `json:"fiat_amount"`
	FiatCurrency         string  `json:"fiat_currency"`
	TokenAmount          int64   `json:"token_amount"`
	FormattedFiat        string  `json:"formatted_fiat"`
	FormattedToken       string  `json:"formatted_token"`
	TimeRemainingSeconds *int64  `json:"time_remaining_seconds,omitempty"`
	IsExpired            bool    `json:"is_expired"`
	IsUsed               bool    `json:"is_used"`
	Description          string  `json:"description,omitempty"`
}
