package models

import (
	"github.com/google/uuid"
)

type TransactionStatus string

const (
	TxPending    TransactionStatus = "pending"
	TxProcessing TransactionStatus = "processing"
	TxCompleted  TransactionStatus = "completed"
	TxFailed     TransactionStatus = "failed"
	TxExpired    TransactionStatus = "expired"
)

// Transaction is one immutable row of a logical payment. A payment is recorded
// as a sequence of rows sharing BaseID, one per status transition; the latest
// row for a BaseID is the current state. Rows are never updated in place.
type Transaction struct {
	ID           string            `json:"id"`
	BaseID       string            `json:"base_id"`
	Payer        uuid.UUID         `json:"payer"`
	Payee        uuid.UUID         `json:"payee"`
	TokenAmount  int64             `json:"token_amount"`
	FiatAmount   float64           `json:"fiat_amount"`
	FiatCurrency string            `json:"fiat_currency"`
	Fee          int64             `json:"fee"`
	Status       TransactionStatus `json:"status"`
	QRID         string            `json:"qr_id"`
	Timestamp    int64             `json:"timestamp"`
	ExternalHash *string           `json:"external_hash,omitempty"`
}
