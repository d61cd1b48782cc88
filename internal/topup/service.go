package topup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/icpay/backend/internal/clock"
	"github.com/icpay/backend/internal/ledger"
	"github.com/icpay/backend/internal/models"
	"github.com/icpay/backend/internal/rates"
	"github.com/icpay/backend/internal/workers"
)

// Funding windows per method. A top-up not completed inside its window is
// finalized as expired by the sweep or on claim.
const (
	qrisValidity = int64(15 * time.Minute)
	cardValidity = int64(time.Hour)
	web3Validity = int64(30 * time.Minute)
)

var (
	ErrInvalidAmount = errors.New("topup amount must be greater than 0")
	ErrCardDeclined  = errors.New("card declined by gateway")
	ErrNotClaimable  = errors.New("topup is not pending")
	ErrExpired       = errors.New("topup has expired")
	ErrNotOwner      = errors.New("topup belongs to another account")
	ErrBadMethod     = errors.New("unsupported topup method")
)

// Converter resolves fiat amounts into token minor units. rates.Service
// satisfies it.
type Converter interface {
	Convert(ctx context.Context, fiatAmount float64, currency string) (int64, *rates.Quote, error)
}

// Store persists top-up rows. *Repository satisfies it.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Insert(ctx context.Context, t *models.TopUpTransaction) error
	InsertTx(ctx context.Context, tx pgx.Tx, t *models.TopUpTransaction) error
	Latest(ctx context.Context, baseID string) (*models.TopUpTransaction, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.TopUpTransaction, error)
	ListStale(ctx context.Context, now int64) ([]*models.TopUpTransaction, error)
}

// EnqueueAuthorizeTxFunc enqueues a card authorization job within the given
// transaction. Provided by main as a closure over river.Client.InsertTx.
type EnqueueAuthorizeTxFunc func(ctx context.Context, tx pgx.Tx, args workers.AuthorizeTopUpArgs) error

type Service interface {
	CreateQRIS(ctx context.Context, accountID uuid.UUID, fiatAmount float64, currency string) (*models.TopUpTransaction, error)
	CreateCard(ctx context.Context, accountID uuid.UUID, method models.TopUpMethod, cardNumber string, fiatAmount float64, currency string) (*models.TopUpTransaction, error)
	CreateWeb3(ctx context.Context, accountID uuid.UUID, tokenAmount int64, walletAddress, network string) (*models.TopUpTransaction, error)
	Claim(ctx context.Context, accountID uuid.UUID, baseID string, txHash *string) (*models.TopUpTransaction, error)
	Authorize(ctx context.Context, baseID string) error
	Get(ctx context.Context, accountID uuid.UUID, baseID string) (*models.TopUpTransaction, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.TopUpTransaction, error)
	ExpireStale(ctx context.Context) (int, error)
}

type service struct {
	store     Store
	converter Converter
	ledger    ledger.Service
	enqueue   EnqueueAuthorizeTxFunc
	clock     clock.Clock
	logger    *slog.Logger
}

// NewService creates the top-up processor. enqueue may be nil, in which case
// card top-ups are authorized synchronously.
func NewService(store Store, converter Converter, led ledger.Service, enqueue EnqueueAuthorizeTxFunc, clk clock.Clock, logger *slog.Logger) Service {
	return &service{
		store:     store,
		converter: converter,
		ledger:    led,
		enqueue:   enqueue,
		clock:     clk,
		logger:    logger,
	}
}

var _ Service = (*service)(nil)

// CreateQRIS opens a QRIS funding request: the fiat amount is converted at
// the current rate and an EMV-style payload is issued with a 15-minute
// window. The user confirms payment via Claim.
func (s *service) CreateQRIS(ctx context.Context, accountID uuid.UUID, fiatAmount float64, currency string) (*models.TopUpTransaction, error) {
	if fiatAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	tokenAmount, _, err := s.converter.Convert(ctx, fiatAmount, currency)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	t := s.newTopUp(accountID, models.TopUpQRIS, models.TopUpPending, tokenAmount, fiatAmount, currency, now, qrisValidity)
	merchantID := "ICPAY" + strings.ToUpper(hex.EncodeToString(accountID[:4]))
	t.QRIS = &models.QRISData{
		QRCodeURL:  fmt.Sprintf("https://qris.icpay.example/%s.png", t.BaseID),
		QRCodeData: qrisPayload(merchantID, fiatAmount, t.BaseID),
		MerchantID: merchantID,
		ExpireTime: t.ExpireTime,
	}
	if err := s.store.Insert(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateCard opens a card funding request. The card is Luhn-validated, only
// the masked PAN is stored, and authorization runs asynchronously through the
// job queue. Card top-ups skip the pending state: the gateway charge is in
// flight from the moment the request is accepted, so the first row is already
// processing. The configured test card is declined immediately.
func (s *service) CreateCard(ctx context.Context, accountID uuid.UUID, method models.TopUpMethod, cardNumber string, fiatAmount float64, currency string) (*models.TopUpTransaction, error) {
	if method != models.TopUpCreditCard && method != models.TopUpDebitCard {
		return nil, ErrBadMethod
	}
	if fiatAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	brand, err := ValidateCard(cardNumber)
	if err != nil {
		return nil, err
	}
	tokenAmount, _, err := s.converter.Convert(ctx, fiatAmount, currency)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	t := s.newTopUp(accountID, method, models.TopUpProcessing, tokenAmount, fiatAmount, currency, now, cardValidity)
	t.Card = &models.CardData{
		MaskedNumber:   MaskCardNumber(cardNumber),
		CardType:       brand,
		PaymentGateway: "simulated",
		TransactionID:  t.ReferenceID,
	}

	if NormalizeCardNumber(cardNumber) == DeclinedTestCard {
		if err := s.store.Insert(ctx, t); err != nil {
			return nil, err
		}
		failed := s.transition(t, models.TopUpFailed)
		if err := s.store.Insert(ctx, failed); err != nil {
			return nil, err
		}
		s.logger.Info("card topup declined", "base_id", t.BaseID, "account", accountID)
		return failed, ErrCardDeclined
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	if err := s.store.InsertTx(ctx, tx, t); err != nil {
		return nil, err
	}
	if s.enqueue != nil {
		if err := s.enqueue(ctx, tx, workers.AuthorizeTopUpArgs{BaseID: t.BaseID}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if s.enqueue == nil {
		if err := s.Authorize(ctx, t.BaseID); err != nil {
			return nil, err
		}
		return s.store.Latest(ctx, t.BaseID)
	}
	return t, nil
}

// CreateWeb3 opens a web3 funding request denominated directly in tokens.
// The user claims it with the on-chain transaction hash.
func (s *service) CreateWeb3(ctx context.Context, accountID uuid.UUID, tokenAmount int64, walletAddress, network string) (*models.TopUpTransaction, error) {
	if tokenAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	if walletAddress == "" {
		return nil, errors.New("wallet address required")
	}
	if network == "" {
		network = "icp"
	}

	now := s.clock.Now()
	t := s.newTopUp(accountID, models.TopUpWeb3Wallet, models.TopUpPending, tokenAmount, 0, "", now, web3Validity)
	t.Web3 = &models.Web3Data{
		WalletAddress:     walletAddress,
		BlockchainNetwork: network,
	}
	if err := s.store.Insert(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Claim completes a pending QRIS or web3 top-up: it writes the completed row
// and credits the ledger in one transaction. Claiming past the window writes
// the expired row instead. Cards are never pending, so claiming one fails the
// pending check: they complete through gateway authorization.
func (s *service) Claim(ctx context.Context, accountID uuid.UUID, baseID string, txHash *string) (*models.TopUpTransaction, error) {
	t, err := s.store.Latest(ctx, baseID)
	if err != nil {
		return nil, err
	}
	if t.AccountID != accountID {
		return nil, ErrNotOwner
	}
	if t.Status != models.TopUpPending {
		return nil, ErrNotClaimable
	}
	if s.clock.Now() > t.ExpireTime {
		expired := s.transition(t, models.TopUpExpired)
		if err := s.store.Insert(ctx, expired); err != nil {
			return nil, err
		}
		return expired, ErrExpired
	}
	if t.Web3 != nil && txHash != nil {
		t.Web3.TransactionHash = txHash
		t.Web3.ConfirmationCount = 12
	}
	return s.complete(ctx, t)
}

// Authorize is the simulated gateway callback for card top-ups, invoked by
// the job queue. Idempotent: a finalized top-up is left alone, and a top-up
// still processing resumes completion, so a job redelivered after a transient
// completion failure picks up where it stopped.
func (s *service) Authorize(ctx context.Context, baseID string) error {
	t, err := s.store.Latest(ctx, baseID)
	if err != nil {
		return err
	}
	if t.Status != models.TopUpPending && t.Status != models.TopUpProcessing {
		return nil
	}
	if s.clock.Now() > t.ExpireTime {
		return s.store.Insert(ctx, s.transition(t, models.TopUpExpired))
	}
	if t.Status == models.TopUpPending {
		if err := s.store.Insert(ctx, s.transition(t, models.TopUpProcessing)); err != nil {
			return err
		}
	}
	_, err = s.complete(ctx, t)
	return err
}

func (s *service) Get(ctx context.Context, accountID uuid.UUID, baseID string) (*models.TopUpTransaction, error) {
	t, err := s.store.Latest(ctx, baseID)
	if err != nil {
		return nil, err
	}
	if t.AccountID != accountID {
		return nil, ErrNotOwner
	}
	return t, nil
}

func (s *service) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.TopUpTransaction, error) {
	return s.store.ListByAccount(ctx, accountID)
}

// ExpireStale finalizes every pending or processing top-up whose window has
// closed.
func (s *service) ExpireStale(ctx context.Context) (int, error) {
	stale, err := s.store.ListStale(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	for _, t := range stale {
		if err := s.store.Insert(ctx, s.transition(t, models.TopUpExpired)); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// complete writes the completed row and the TopupCompleted ledger event in
// one transaction.
func (s *service) complete(ctx context.Context, t *models.TopUpTransaction) (*models.TopUpTransaction, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	done := s.transition(t, models.TopUpCompleted)
	if err := s.store.InsertTx(ctx, tx, done); err != nil {
		return nil, err
	}
	desc := fmt.Sprintf("topup via %s", t.Method)
	credit, err := s.ledger.AppendTx(ctx, tx, t.AccountID, models.ChangeTopupCompleted, t.TokenAmount, t.BaseID, desc)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.ledger.Publish(credit)
	s.logger.Info("topup completed",
		"base_id", t.BaseID,
		"account", t.AccountID,
		"method", t.Method,
		"amount", t.TokenAmount,
	)
	return done, nil
}

func (s *service) newTopUp(accountID uuid.UUID, method models.TopUpMethod, status models.TopUpStatus, tokenAmount int64, fiatAmount float64, currency string, now, validity int64) *models.TopUpTransaction {
	baseID := GenerateBaseID(now, accountID)
	return &models.TopUpTransaction{
		ID:           fmt.Sprintf("%s:%s", baseID, status),
		BaseID:       baseID,
		AccountID:    accountID,
		TokenAmount:  tokenAmount,
		FiatAmount:   fiatAmount,
		FiatCurrency: strings.ToUpper(currency),
		Method:       method,
		Status:       status,
		CreatedAt:    now,
		ExpireTime:   now + validity,
		ReferenceID:  "REF_" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:12],
	}
}

// transition clones the top-up into its next status row.
func (s *service) transition(t *models.TopUpTransaction, status models.TopUpStatus) *models.TopUpTransaction {
	cp := *t
	cp.ID = fmt.Sprintf("%s:%s", t.BaseID, status)
	cp.Status = status
	cp.CreatedAt = s.clock.Now()
	if status == models.TopUpCompleted || status == models.TopUpFailed || status == models.TopUpExpired {
		ts := cp.CreatedAt
		cp.ProcessedAt = &ts
	}
	return &cp
}

// GenerateBaseID derives the logical top-up id: TOPUP_ plus 26 uppercase hex
// characters.
func GenerateBaseID(timestamp int64, accountID uuid.UUID) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d-%s", timestamp, accountID))
	return "TOPUP_" + strings.ToUpper(hex.EncodeToString(sum[:])[:26])
}

// qrisPayload assembles a simplified EMV merchant-presented payload.
func qrisPayload(merchantID string, amount float64, baseID string) string {
	body := fmt.Sprintf("00020101021226%02d0014ID.CO.QRIS.WWW02%02d%s520454995303360540%.2f5802ID", len(merchantID)+20, len(merchantID), merchantID, amount)
	sum := sha256.Sum256([]byte(body + baseID))
	return body + "6304" + strings.ToUpper(hex.EncodeToString(sum[:2]))
}
