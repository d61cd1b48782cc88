package qr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/icpay/backend/internal/models"
	"github.com/icpay/backend/internal/rates"
)

// ---------------------------------------------------------------------------
// In-memory store, fixed-rate converter, settable clock.
// ---------------------------------------------------------------------------

type memQRStore struct {
	codes map[string]*models.QRCode
}

func newMemQRStore() *memQRStore {
	return &memQRStore{codes: make(map[string]*models.QRCode)}
}

func (m *memQRStore) Insert(_ context.Context, q *models.QRCode) error {
	cp := *q
	m.codes[q.ID] = &cp
	return nil
}

func (m *memQRStore) Get(_ context.Context, id string) (*models.QRCode, error) {
	q, ok := m.codes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (m *memQRStore) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*models.QRCode, error) {
	var out []*models.QRCode
	for _, q := range m.codes {
		if q.OwnerID == ownerID {
			cp := *q
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memUsage struct {
	completed map[string]bool
}

func (m *memUsage) HasCompletedUsage(_ context.Context, qrID string) (bool, error) {
	return m.completed[qrID], nil
}

type fixedConverter struct {
	rate float64
}

func (c fixedConverter) Convert(_ context.Context, fiatAmount float64, currency string) (int64, *rates.Quote, error) {
	if !rates.IsSupported(currency) {
		return 0, nil, rates.ErrUnsupportedCurrency
	}
	amount, err := rates.ConvertFiatToToken(fiatAmount, c.rate)
	if err != nil {
		return 0, nil, err
	}
	return amount, &rates.Quote{Currency: currency, Rate: c.rate}, nil
}

type settableClock struct{ now int64 }

func (c *settableClock) Now() int64 { return c.now }

const t0 = int64(1_000_000_000_000_000_000)

func newTestService(clk *settableClock) (Service, *memQRStore, *memUsage) {
	store := newMemQRStore()
	usage := &memUsage{completed: make(map[string]bool)}
	svc := NewService(store, usage, fixedConverter{rate: 5.0}, clk)
	return svc, store, usage
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreateFreezesConvertedAmountAndExpiry(t *testing.T) {
	clk := &settableClock{now: t0}
	svc, _, _ := newTestService(clk)
	owner := uuid.New()

	q, err := svc.Create(context.Background(), owner, 10, "usd", "coffee")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if q.TokenAmount != 200_000_000 {
		t.Errorf("token amount = %d, want 200000000 (10 USD at rate 5)", q.TokenAmount)
	}
	if q.FiatCurrency != "USD" {
		t.Errorf("currency = %q, want USD", q.FiatCurrency)
	}
	if q.ExpireTime != t0+int64(30*time.Minute) {
		t.Errorf("expire_time = %d, want created_at + 30min", q.ExpireTime)
	}
	if q.Used {
		t.Error("new QR code must not be marked used")
	}
	if !ValidateIDFormat(q.ID) {
		t.Errorf("id %q is not 16-char uppercase hex", q.ID)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(&settableClock{now: t0})
	owner := uuid.New()

	if _, err := svc.Create(context.Background(), owner, 0, "USD", ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amount: got %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.Create(context.Background(), owner, -5, "USD", ""); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative amount: got %v, want ErrInvalidAmount", err)
	}
	if _, err := svc.Create(context.Background(), owner, 10, "XYZ", ""); !errors.Is(err, rates.ErrUnsupportedCurrency) {
		t.Errorf("unsupported currency: got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Redeemability
// ---------------------------------------------------------------------------

func TestIsRedeemable(t *testing.T) {
	clk := &settableClock{now: t0}
	svc, _, usage := newTestService(clk)
	owner := uuid.New()

	q, err := svc.Create(context.Background(), owner, 10, "USD", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.IsRedeemable(context.Background(), q); err != nil {
		t.Errorf("fresh QR should be redeemable: %v", err)
	}

	// A completed usage-log entry makes it non-redeemable, regardless of the
	// advisory flag (still false here).
	usage.completed[q.ID] = true
	if err := svc.IsRedeemable(context.Background(), q); !errors.Is(err, ErrAlreadyUsed) {
		t.Errorf("used QR: got %v, want ErrAlreadyUsed", err)
	}

	// AlreadyUsed wins over Expired when both hold.
	clk.now = q.ExpireTime + 1
	if err := svc.IsRedeemable(context.Background(), q); !errors.Is(err, ErrAlreadyUsed) {
		t.Errorf("used+expired QR: got %v, want ErrAlreadyUsed", err)
	}

	usage.completed[q.ID] = false
	if err := svc.IsRedeemable(context.Background(), q); !errors.Is(err, ErrExpired) {
		t.Errorf("expired QR: got %v, want ErrExpired", err)
	}
}

// ---------------------------------------------------------------------------
// Display projection
// ---------------------------------------------------------------------------

func TestDisplayInfo(t *testing.T) {
	clk := &settableClock{now: t0}
	svc, _, _ := newTestService(clk)

	q, _ := svc.Create(context.Background(), uuid.New(), 10, "USD", "lunch")

	clk.now = t0 + int64(10*time.Minute)
	info := svc.DisplayInfo(q)
	if info.FormattedFiat != "10.00 USD" {
		t.Errorf("formatted fiat = %q", info.FormattedFiat)
	}
	if info.FormattedToken != "2.00000000 ICP" {
		t.Errorf("formatted token = %q", info.FormattedToken)
	}
	if info.TimeRemainingSeconds == nil || *info.TimeRemainingSeconds != 20*60 {
		t.Errorf("time remaining = %v, want 1200s", info.TimeRemainingSeconds)
	}
	if info.IsExpired {
		t.Error("not expired yet")
	}

	clk.now = q.ExpireTime + 1
	info = svc.DisplayInfo(q)
	if !info.IsExpired || info.TimeRemainingSeconds != nil {
		t.Errorf("expired projection: is_expired=%v remaining=%v", info.IsExpired, info.TimeRemainingSeconds)
	}
}

// ---------------------------------------------------------------------------
// Identifier scheme
// ---------------------------------------------------------------------------

func TestGenerateID(t *testing.T) {
	owner := uuid.New()
	id1 := GenerateID(t0, owner)
	id2 := GenerateID(t0+1, owner)

	if !ValidateIDFormat(id1) || !ValidateIDFormat(id2) {
		t.Errorf("ids %q, %q must be 16-char uppercase hex", id1, id2)
	}
	if id1 == id2 {
		t.Error("different timestamps must yield different ids")
	}
	if other := GenerateID(t0, uuid.New()); other == id1 {
		t.Error("different owners must yield different ids")
	}
}

func TestValidateIDFormat(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"1234567890ABCDEF", true},
		{"1234567890abcdef", false},
		{"1234567890ABCDEG", false},
		{"1234567890ABCDE", false},
		{"1234567890ABCDEF1", false},
	}
	for _, c := range cases {
		if got := ValidateIDFormat(c.id); got != c.want {
			t.Errorf("ValidateIDFormat(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}
