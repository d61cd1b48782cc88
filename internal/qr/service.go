package qr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/icpay/backend/internal/clock"
	"github.com/icpay/backend/internal/models"
	"github.com/icpay/backend/internal/rates"
)

// qrValidity is how long a payment request stays redeemable after creation.
const qrValidity = int64(30 * time.Minute)

var (
	ErrAlreadyUsed   = errors.New("qr code has already been used")
	ErrExpired       = errors.New("qr code has expired")
	ErrInvalidAmount = errors.New("fiat amount must be greater than 0")
)

// Converter resolves fiat amounts into token minor units. rates.Service
// satisfies it; tests inject a fixed-rate fake.
type Converter interface {
	Convert(ctx context.Context, fiatAmount float64, currency string) (int64, *rates.Quote, error)
}

// UsageChecker answers the authoritative "was this QR redeemed" question.
type UsageChecker interface {
	HasCompletedUsage(ctx context.Context, qrID string) (bool, error)
}

// Store persists QR codes. *Repository satisfies both Store and UsageChecker.
type Store interface {
	Insert(ctx context.Context, q *models.QRCode) error
	Get(ctx context.Context, id string) (*models.QRCode, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.QRCode, error)
}

type Service interface {
	Create(ctx context.Context, ownerID uuid.UUID, fiatAmount float64, fiatCurrency, description string) (*models.QRCode, error)
	Get(ctx context.Context, id string) (*models.QRCode, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.QRCode, error)
	IsRedeemable(ctx context.Context, q *models.QRCode) error
	DisplayInfo(q *models.QRCode) *models.QRDisplayInfo
}

type service struct {
	store     Store
	usage     UsageChecker
	converter Converter
	clock     clock.Clock
}

func NewService(store Store, usage UsageChecker, converter Converter, clk clock.Clock) Service {
	return &service{store: store, usage: usage, converter: converter, clock: clk}
}

var _ Service = (*service)(nil)

// Create converts the fiat amount at the current rate, freezing the token
// amount into the QR code, and stamps a 30-minute expiry.
func (s *service) Create(ctx context.Context, ownerID uuid.UUID, fiatAmount float64, fiatCurrency, description string) (*models.QRCode, error) {
	if fiatAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	tokenAmount, _, err := s.converter.Convert(ctx, fiatAmount, fiatCurrency)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	q := &models.QRCode{
		ID:           GenerateID(now, ownerID),
		OwnerID:      ownerID,
		FiatAmount:   fiatAmount,
		FiatCurrency: strings.ToUpper(fiatCurrency),
		TokenAmount:  tokenAmount,
		CreatedAt:    now,
		ExpireTime:   now + qrValidity,
		Used:         false,
		Description:  description,
	}
	if err := s.store.Insert(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *service) Get(ctx context.Context, id string) (*models.QRCode, error) {
	return s.store.Get(ctx, id)
}

func (s *service) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.QRCode, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// IsRedeemable checks the usage log first (authoritative single-use), then
// expiry. The advisory used flag on the record is deliberately not consulted.
func (s *service) IsRedeemable(ctx context.Context, q *models.QRCode) error {
	used, err := s.usage.HasCompletedUsage(ctx, q.ID)
	if err != nil {
		return err
	}
	if used {
		return ErrAlreadyUsed
	}
	if s.clock.Now() > q.ExpireTime {
		return ErrExpired
	}
	return nil
}

// DisplayInfo is a read-only projection for presentation; it never mutates.
func (s *service) DisplayInfo(q *models.QRCode) *models.QRDisplayInfo {
	now := s.clock.Now()
	info := &models.QRDisplayInfo{
		ID:             q.ID,
		FiatAmount:     q.FiatAmount,
		FiatCurrency:   q.FiatCurrency,
		TokenAmount:    q.TokenAmount,
		FormattedFiat:  rates.FormatFiat(q.FiatAmount, q.FiatCurrency),
		FormattedToken: models.FormatToken(q.TokenAmount),
		IsExpired:      now > q.ExpireTime,
		IsUsed:         q.Used,
		Description:    q.Description,
	}
	if now < q.ExpireTime {
		remaining := (q.ExpireTime - now) / int64(time.Second)
		info.TimeRemainingSeconds = &remaining
	}
	return info
}

// GenerateID derives a 16-character uppercase hex identifier from a
// collision-resistant hash of (timestamp, owner).
func GenerateID(timestamp int64, ownerID uuid.UUID) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d-%s", timestamp, ownerID))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:16])
}

// ValidateIDFormat reports whether id is a 16-character uppercase hex string.
func ValidateIDFormat(id string) bool {
	if len(id) != 16 {
		return false
	}
	for _, c := range id {
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
