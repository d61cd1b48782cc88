package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/icpay/backend/internal/clock"
	"github.com/icpay/backend/internal/ledger"
	"github.com/icpay/backend/internal/models"
	"github.com/icpay/backend/internal/qr"
)

var (
	ErrAnonymousPayer         = errors.New("payer must be authenticated")
	ErrSelfPayment            = errors.New("cannot pay your own qr code")
	ErrRecipientNotRegistered = errors.New("qr code owner is not a registered account")
	ErrInsufficientBalance    = errors.New("insufficient balance")
)

// QRRegistry resolves and vets QR codes. qr.Service satisfies it.
type QRRegistry interface {
	Get(ctx context.Context, id string) (*models.QRCode, error)
	IsRedeemable(ctx context.Context, q *models.QRCode) error
}

// UsageStore records QR redemptions inside the settlement transaction.
// *qr.Repository satisfies it.
type UsageStore interface {
	HasCompletedUsageTx(ctx context.Context, tx pgx.Tx, qrID string) (bool, error)
	InsertUsageTx(ctx context.Context, tx pgx.Tx, u *models.QRUsageLog) error
	MarkUsedTx(ctx context.Context, tx pgx.Tx, id string) error
}

// AccountDirectory answers whether an account id is registered.
type AccountDirectory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Store persists transaction rows. *Repository satisfies it.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	InsertTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Transaction, error)
	ListByBaseID(ctx context.Context, baseID string) ([]*models.Transaction, error)
}

// AccountSummary aggregates an account's completed payments.
type AccountSummary struct {
	Incoming  int64 `json:"incoming"`
	Outgoing  int64 `json:"outgoing"`
	FeesPaid  int64 `json:"fees_paid"`
	Completed int   `json:"completed"`
}

type Service interface {
	Settle(ctx context.Context, payerID uuid.UUID, qrID string, externalHash *string) (*models.Transaction, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Transaction, error)
	History(ctx context.Context, baseID string) ([]*models.Transaction, error)
	Summary(ctx context.Context, accountID uuid.UUID) (*AccountSummary, error)
}

type service struct {
	txs      Store
	qrs      QRRegistry
	usage    UsageStore
	accounts AccountDirectory
	ledger   ledger.Service
	clock    clock.Clock
	logger   *slog.Logger
}

func NewService(txs Store, qrs QRRegistry, usage UsageStore, accounts AccountDirectory, led ledger.Service, clk clock.Clock, logger *slog.Logger) Service {
	return &service{
		txs:      txs,
		qrs:      qrs,
		usage:    usage,
		accounts: accounts,
		ledger:   led,
		clock:    clk,
		logger:   logger,
	}
}

var _ Service = (*service)(nil)

// Settle redeems a QR code: it validates the request, debits the payer for
// amount plus fee, credits the payee, and marks the code used. All writes
// that change balances or consume the QR happen in one storage transaction,
// so a crash mid-settlement leaves either no trace or a complete settlement.
func (s *service) Settle(ctx context.Context, payerID uuid.UUID, qrID string, externalHash *string) (*models.Transaction, error) {
	if payerID == uuid.Nil {
		return nil, ErrAnonymousPayer
	}

	q, err := s.qrs.Get(ctx, qrID)
	if err != nil {
		return nil, err
	}
	if err := s.qrs.IsRedeemable(ctx, q); err != nil {
		return nil, err
	}
	if payerID == q.OwnerID {
		return nil, ErrSelfPayment
	}
	registered, err := s.accounts.Exists(ctx, q.OwnerID)
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, ErrRecipientNotRegistered
	}
	if err := ValidateAmount(q.TokenAmount); err != nil {
		return nil, err
	}

	fee := CalculateFee(q.TokenAmount)
	baseID := GenerateBaseID(s.clock.Now(), payerID, q.OwnerID, q.TokenAmount)

	tx, err := s.txs.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Re-check single-use through the transaction. The pre-transaction check
	// can race with a concurrent settlement of the same code.
	used, err := s.usage.HasCompletedUsageTx(ctx, tx, q.ID)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, qr.ErrAlreadyUsed
	}

	if err := s.txs.InsertTx(ctx, tx, s.row(q, baseID, payerID, fee, models.TxPending, externalHash)); err != nil {
		return nil, err
	}
	if err := s.txs.InsertTx(ctx, tx, s.row(q, baseID, payerID, fee, models.TxProcessing, externalHash)); err != nil {
		return nil, err
	}

	balance, err := s.ledger.BalanceTx(ctx, tx, payerID)
	if err != nil {
		return nil, err
	}
	if balance < q.TokenAmount+fee {
		tx.Rollback(ctx)
		s.recordFailure(ctx, q, baseID, payerID, fee, externalHash)
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, balance, q.TokenAmount+fee)
	}

	desc := fmt.Sprintf("payment for qr %s", q.ID)
	sent, err := s.ledger.AppendTx(ctx, tx, payerID, models.ChangePaymentSent, q.TokenAmount, baseID, desc)
	if err != nil {
		return nil, err
	}
	feeEvent, err := s.ledger.AppendTx(ctx, tx, payerID, models.ChangeFeeDeducted, fee, baseID, "settlement fee")
	if err != nil {
		return nil, err
	}
	received, err := s.ledger.AppendTx(ctx, tx, q.OwnerID, models.ChangePaymentReceived, q.TokenAmount, baseID, desc)
	if err != nil {
		return nil, err
	}

	completed := s.row(q, baseID, payerID, fee, models.TxCompleted, externalHash)
	if err := s.txs.InsertTx(ctx, tx, completed); err != nil {
		return nil, err
	}
	if err := s.usage.InsertUsageTx(ctx, tx, &models.QRUsageLog{
		ID:            uuid.New(),
		QRID:          q.ID,
		OwnerID:       q.OwnerID,
		UsedBy:        payerID,
		TransactionID: completed.ID,
		Timestamp:     completed.Timestamp,
		UsageType:     models.QRUsagePaymentCompleted,
	}); err != nil {
		return nil, err
	}
	if err := s.usage.MarkUsedTx(ctx, tx, q.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.ledger.Publish(sent, feeEvent, received)

	s.logger.Info("payment settled",
		"base_id", baseID,
		"qr_id", q.ID,
		"payer", payerID,
		"payee", q.OwnerID,
		"amount", q.TokenAmount,
		"fee", fee,
	)
	return completed, nil
}

func (s *service) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Transaction, error) {
	return s.txs.ListByAccount(ctx, accountID)
}

func (s *service) History(ctx context.Context, baseID string) ([]*models.Transaction, error) {
	return s.txs.ListByBaseID(ctx, baseID)
}

// Summary totals an account's completed rows: received amounts, sent amounts,
// and fees paid as payer.
func (s *service) Summary(ctx context.Context, accountID uuid.UUID) (*AccountSummary, error) {
	list, err := s.txs.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	sum := &AccountSummary{}
	for _, t := range list {
		if t.Status != models.TxCompleted {
			continue
		}
		sum.Completed++
		if t.Payee == accountID {
			sum.Incoming += t.TokenAmount
		}
		if t.Payer == accountID {
			sum.Outgoing += t.TokenAmount + t.Fee
			sum.FeesPaid += t.Fee
		}
	}
	return sum, nil
}

func (s *service) row(q *models.QRCode, baseID string, payerID uuid.UUID, fee int64, status models.TransactionStatus, hash *string) *models.Transaction {
	return &models.Transaction{
		ID:           fmt.Sprintf("%s:%s", baseID, status),
		BaseID:       baseID,
		Payer:        payerID,
		Payee:        q.OwnerID,
		TokenAmount:  q.TokenAmount,
		FiatAmount:   q.FiatAmount,
		FiatCurrency: q.FiatCurrency,
		Fee:          fee,
		Status:       status,
		QRID:         q.ID,
		Timestamp:    s.clock.Now(),
		ExternalHash: hash,
	}
}

// recordFailure replays the attempt's transition rows (the rollback discarded
// the originals) and adds a payment_failed usage entry, in a fresh transaction
// after the settlement transaction rolled back. Best effort: the settlement
// outcome does not depend on it.
func (s *service) recordFailure(ctx context.Context, q *models.QRCode, baseID string, payerID uuid.UUID, fee int64, hash *string) {
	tx, err := s.txs.Begin(ctx)
	if err != nil {
		s.logger.Warn("recording failed settlement", "base_id", baseID, "error", err)
		return
	}
	defer tx.Rollback(ctx)

	for _, status := range []models.TransactionStatus{models.TxPending, models.TxProcessing} {
		if err := s.txs.InsertTx(ctx, tx, s.row(q, baseID, payerID, fee, status, hash)); err != nil {
			s.logger.Warn("recording failed settlement", "base_id", baseID, "error", err)
			return
		}
	}
	failed := s.row(q, baseID, payerID, fee, models.TxFailed, hash)
	if err := s.txs.InsertTx(ctx, tx, failed); err != nil {
		s.logger.Warn("recording failed settlement", "base_id", baseID, "error", err)
		return
	}
	if err := s.usage.InsertUsageTx(ctx, tx, &models.QRUsageLog{
		ID:            uuid.New(),
		QRID:          q.ID,
		OwnerID:       q.OwnerID,
		UsedBy:        payerID,
		TransactionID: failed.ID,
		Timestamp:     failed.Timestamp,
		UsageType:     models.QRUsagePaymentFailed,
	}); err != nil {
		s.logger.Warn("recording failed settlement", "base_id", baseID, "error", err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		s.logger.Warn("recording failed settlement", "base_id", baseID, "error", err)
	}
}

// GenerateBaseID derives the logical payment id from the settlement inputs:
// TX_ followed by 29 uppercase hex characters.
func GenerateBaseID(timestamp int64, payer, payee uuid.UUID, amount int64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d-%s-%s-%d", timestamp, payer, payee, amount))
	return "TX_" + strings.ToUpper(hex.EncodeToString(sum[:])[:29])
}
