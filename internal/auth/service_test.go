package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/icpay/backend/internal/models"
)

type memAccounts struct {
	byEmail map[string]*models.Account
	byID    map[uuid.UUID]*models.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{
		byEmail: make(map[string]*models.Account),
		byID:    make(map[uuid.UUID]*models.Account),
	}
}

func (m *memAccounts) Create(_ context.Context, a *models.Account) error {
	if _, ok := m.byEmail[a.Email]; ok {
		return ErrDuplicateEmail
	}
	cp := *a
	m.byEmail[a.Email] = &cp
	m.byID[a.ID] = &cp
	return nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	a, ok := m.byEmail[email]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *a
	return &cp, nil
}

type fixedClock int64

func (c fixedClock) Now() int64 { return int64(c) }

func newTestService() (Service, *memAccounts) {
	store := newMemAccounts()
	return NewService(store, []byte("test-secret"), fixedClock(1)), store
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	a, err := svc.Register(ctx, "Merchant@Example.com", "s3cretpass", "merchant", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if a.Email != "merchant@example.com" {
		t.Errorf("email not normalized: %q", a.Email)
	}
	if a.WalletAddress == "" || len(a.WalletAddress) != 40 {
		t.Errorf("derived wallet address = %q, want 40 hex chars", a.WalletAddress)
	}
	if a.PasswordHash == "s3cretpass" {
		t.Error("password stored in the clear")
	}

	token, got, err := svc.Login(ctx, "merchant@example.com", "s3cretpass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("login returned account %s, want %s", got.ID, a.ID)
	}

	id, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if id != a.ID {
		t.Errorf("token subject = %s, want %s", id, a.ID)
	}
}

func TestRegisterKeepsExplicitWallet(t *testing.T) {
	svc, _ := newTestService()
	a, err := svc.Register(context.Background(), "w3@example.com", "s3cretpass", "", "0xabc123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if a.WalletAddress != "0xabc123" {
		t.Errorf("wallet = %q, want the one supplied", a.WalletAddress)
	}
}

func TestRegisterRejections(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "no-at-sign", "s3cretpass", "", ""); err == nil {
		t.Error("invalid email accepted")
	}
	if _, err := svc.Register(ctx, "a@b.com", "short", "", ""); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("weak password: got %v", err)
	}

	if _, err := svc.Register(ctx, "a@b.com", "s3cretpass", "", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(ctx, "a@b.com", "otherpass99", "", ""); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("duplicate email: got %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.Register(ctx, "a@b.com", "s3cretpass", "", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, _, err := svc.Login(ctx, "a@b.com", "wrongpass1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@b.com", "s3cretpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: got %v", err)
	}
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, "a@b.com", "s3cretpass", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	token, _, _ := svc.Login(ctx, "a@b.com", "s3cretpass")

	other := NewService(newMemAccounts(), []byte("other-secret"), fixedClock(1))
	if _, err := other.ValidateToken(ctx, token); err == nil {
		t.Error("token signed with a different secret accepted")
	}
	if _, err := svc.ValidateToken(ctx, token+"x"); err == nil {
		t.Error("tampered token accepted")
	}
}
