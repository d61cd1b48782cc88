package models

import (
	"github.com/google/uuid"
)

// BalanceChangeType classifies how an event moves an account balance.
type BalanceChangeType string

const (
	ChangeTopupCompleted  BalanceChangeType = "topup_completed"
	ChangePaymentSent     BalanceChangeType = "payment_sent"
	ChangePaymentReceived BalanceChangeType = "payment_received"
	ChangeFeeDeducted     BalanceChangeType = "fee_deducted"
	ChangeRefund          BalanceChangeType = "refund"
	ChangeAdjustment      BalanceChangeType = "adjustment"
)

// BalanceChangeEvent is one immutable entry in the balance ledger. Balances
// are never stored; they are folded from these events on every read.
// PreviousBalance and NewBalance are an audit snapshot of what the fold saw
// at append time, not inputs to later reads.
type BalanceChangeEvent struct {
	ID              int64             `json:"id"`
	AccountID       uuid.UUID         `json:"account_id"`
	Kind            BalanceChangeType `json:"kind"`
	Amount          int64             `json:"amount"`
	PreviousBalance int64             `json:"previous_balance"`
	NewBalance      int64             `json:"new_balance"`
	Timestamp       int64             `json:"timestamp"`
	ReferenceID     string            `json:"reference_id,omitempty"`
	Description     string            `json:"description,omitempty"`
}

// ApplyChange folds a single event into a balance. Credits add, debits
// subtract saturating at zero, and adjustments overwrite.
func ApplyChange(kind BalanceChangeType, balance, amount int64) int64 {
	switch kind {
	case ChangeTopupCompleted, ChangePaymentReceived, ChangeRefund:
		return balance + amount
	case ChangePaymentSent, ChangeFeeDeducted:
		if amount > balance {
			return 0
		}
		return balance - amount
	case ChangeAdjustment:
		return amount
	}
	return balance
}
