package models

import (
	"github.com/google/uuid"
)

type TopUpMethod string

const (
	TopUpQRIS       TopUpMethod = "qris"
	TopUpCreditCard TopUpMethod = "credit_card"
	TopUpDebitCard  TopUpMethod = "debit_card"
	TopUpWeb3Wallet TopUpMethod = "web3_wallet"
)

type TopUpStatus string

const (
	TopUpPending    TopUpStatus = "pending"
	TopUpProcessing TopUpStatus = "processing"
	TopUpCompleted  TopUpStatus = "completed"
	TopUpFailed     TopUpStatus = "failed"
	TopUpExpired    TopUpStatus = "expired"
)

// QRISData is the provider payload for a QRIS funding request.
type QRISData struct {
	QRCodeURL  string `json:"qr_code_url"`
	QRCodeData string `json:"qr_code_data"`
	MerchantID string `json:"merchant_id"`
	ExpireTime int64  `json:"expire_time"`
}

// CardData stores only the masked PAN and detected brand, never the raw card.
type CardData struct {
	MaskedNumber   string `json:"masked_number"`
	CardType       string `json:"card_type"`
	PaymentGateway string `json:"payment_gateway"`
	TransactionID  string `json:"transaction_id"`
}

type Web3Data struct {
	WalletAddress     string  `json:"wallet_address"`
	BlockchainNetwork string  `json:"blockchain_network"`
	TransactionHash   *string `json:"transaction_hash,omitempty"`
	ConfirmationCount uint32  `json:"confirmation_count"`
}

// TopUpTransaction follows the same append-per-transition discipline as
// Transaction: one immutable row per status change, correlated by BaseID.
type TopUpTransaction struct {
	ID           string      `json:"id"`
	BaseID       string      `json:"base_id"`
	AccountID    uuid.UUID   `json:"account_id"`
	TokenAmount  int64       `json:"token_amount"`
	FiatAmount   float64     `json:"fiat_amount"`
	FiatCurrency string      `json:"fiat_currency"`
	Method       TopUpMethod `json:"method"`
	QRIS         *QRISData   `json:"qris_data,omitempty"`
	Card         *CardData   `json:"card_data,omitempty"`
	Web3         *Web3Data   `json:"web3_data,omitempty"`
	Status       TopUpStatus `json:"status"`
	CreatedAt    int64       `json:"created_at"`
	ExpireTime   int64       `json:"expire_time"`
	ProcessedAt  *int64      `json:"processed_at,omitempty"`
	ReferenceID  string      `json:"reference_id"`
}
