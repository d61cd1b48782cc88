package models

import (
	"github.com/google/uuid"
)

// Account is the registry record for a principal. It deliberately carries no
// balance column: balances exist only as folds over balance_events.
type Account struct {
	ID            uuid.UUID `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	Username      *string   `json:"username,omitempty"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	CreatedAt     int64     `json:"created_at"`
}
