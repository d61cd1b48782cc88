package ledger

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/icpay/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory Store and fixed-step clock.
// ---------------------------------------------------------------------------

type memStore struct {
	mu     sync.Mutex
	nextID int64
	events map[uuid.UUID][]*models.BalanceChangeEvent
}

func newMemStore() *memStore {
	return &memStore{nextID: 1, events: make(map[uuid.UUID][]*models.BalanceChangeEvent)}
}

func (m *memStore) InsertTx(_ context.Context, _ pgx.Tx, e *models.BalanceChangeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.nextID
	m.nextID++
	cp := *e
	m.events[e.AccountID] = append(m.events[e.AccountID], &cp)
	return nil
}

func (m *memStore) ListByAccountTx(ctx context.Context, _ pgx.Tx, accountID uuid.UUID) ([]*models.BalanceChangeEvent, error) {
	return m.ListByAccount(ctx, accountID)
}

func (m *memStore) ListByAccount(_ context.Context, accountID uuid.UUID) ([]*models.BalanceChangeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.BalanceChangeEvent, len(m.events[accountID]))
	copy(out, m.events[accountID])
	return out, nil
}

type stepClock struct{ now int64 }

func (c *stepClock) Now() int64 {
	c.now += 1_000
	return c.now
}

// ---------------------------------------------------------------------------
// Append / fold invariant
// ---------------------------------------------------------------------------

func TestAppendMaintainsFoldInvariant(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &stepClock{}, nil)
	ctx := context.Background()
	account := uuid.New()

	steps := []struct {
		kind   models.BalanceChangeType
		amount int64
		want   int64
	}{
		{models.ChangeTopupCompleted, 1_000_000_000, 1_000_000_000},
		{models.ChangePaymentSent, 200_000_000, 800_000_000},
		{models.ChangeFeeDeducted, 2_000_000, 798_000_000},
		{models.ChangePaymentReceived, 50_000_000, 848_000_000},
		{models.ChangeRefund, 2_000_000, 850_000_000},
	}

	for _, st := range steps {
		e, err := svc.AppendTx(ctx, nil, account, st.kind, st.amount, "ref", "")
		if err != nil {
			t.Fatalf("AppendTx(%s): %v", st.kind, err)
		}
		if e.NewBalance != st.want {
			t.Errorf("%s: new_balance = %d, want %d", st.kind, e.NewBalance, st.want)
		}
	}

	// The fold over the full history must match the last event's new_balance.
	balance, err := svc.Balance(ctx, account)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != 850_000_000 {
		t.Errorf("balance = %d, want 850000000", balance)
	}

	events, _ := svc.History(ctx, account)
	if got := Fold(events); got != events[len(events)-1].NewBalance {
		t.Errorf("Fold(%d events) = %d, want last new_balance %d", len(events), got, events[len(events)-1].NewBalance)
	}
}

func TestDebitSaturatesAtZero(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &stepClock{}, nil)
	ctx := context.Background()
	account := uuid.New()

	if _, err := svc.AppendTx(ctx, nil, account, models.ChangeTopupCompleted, 100, "ref", ""); err != nil {
		t.Fatalf("AppendTx: %v", err)
	}
	e, err := svc.AppendTx(ctx, nil, account, models.ChangeFeeDeducted, 500, "ref", "")
	if err != nil {
		t.Fatalf("AppendTx: %v", err)
	}
	if e.NewBalance != 0 {
		t.Errorf("saturating debit: new_balance = %d, want 0", e.NewBalance)
	}
}

func TestAdjustmentOverwrites(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &stepClock{}, nil)
	ctx := context.Background()
	account := uuid.New()

	_, _ = svc.AppendTx(ctx, nil, account, models.ChangeTopupCompleted, 999, "ref", "")
	e, err := svc.AppendTx(ctx, nil, account, models.ChangeAdjustment, 42, "ref", "manual correction")
	if err != nil {
		t.Fatalf("AppendTx: %v", err)
	}
	if e.NewBalance != 42 {
		t.Errorf("adjustment: new_balance = %d, want 42", e.NewBalance)
	}
}

func TestNegativeAmountRejected(t *testing.T) {
	svc := NewService(newMemStore(), &stepClock{}, nil)
	if _, err := svc.AppendTx(context.Background(), nil, uuid.New(), models.ChangeRefund, -1, "ref", ""); err != ErrNegativeAmount {
		t.Errorf("expected ErrNegativeAmount, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Replay determinism
// ---------------------------------------------------------------------------

func TestFoldIsOrderIndependent(t *testing.T) {
	account := uuid.New()
	events := []*models.BalanceChangeEvent{
		{ID: 1, AccountID: account, Kind: models.ChangeTopupCompleted, Amount: 500, Timestamp: 10},
		{ID: 2, AccountID: account, Kind: models.ChangePaymentSent, Amount: 120, Timestamp: 20},
		{ID: 3, AccountID: account, Kind: models.ChangeFeeDeducted, Amount: 5, Timestamp: 20},
		{ID: 4, AccountID: account, Kind: models.ChangePaymentReceived, Amount: 75, Timestamp: 30},
	}
	want := Fold(events)

	// Shuffled input must fold to the same balance: ordering comes from the
	// events themselves, not from storage order.
	for i := 0; i < 10; i++ {
		shuffled := make([]*models.BalanceChangeEvent, len(events))
		copy(shuffled, events)
		rand.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := Fold(shuffled); got != want {
			t.Fatalf("shuffle %d: Fold = %d, want %d", i, got, want)
		}
	}
}

func TestBalanceOfUnknownAccountIsZero(t *testing.T) {
	svc := NewService(newMemStore(), &stepClock{}, nil)
	balance, err := svc.Balance(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}
}

func TestIdempotentRead(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &stepClock{}, nil)
	ctx := context.Background()
	account := uuid.New()

	_, _ = svc.AppendTx(ctx, nil, account, models.ChangeTopupCompleted, 777, "ref", "")

	first, _ := svc.Balance(ctx, account)
	second, _ := svc.Balance(ctx, account)
	if first != second {
		t.Errorf("two reads with no writes differ: %d vs %d", first, second)
	}
}

func TestTimestampsNonDecreasingPerAccount(t *testing.T) {
	store := newMemStore()
	// A clock that never advances: the service must still hand out strictly
	// later timestamps than the previous event.
	svc := NewService(store, frozenClock(5), nil)
	ctx := context.Background()
	account := uuid.New()

	for i := 0; i < 3; i++ {
		if _, err := svc.AppendTx(ctx, nil, account, models.ChangeTopupCompleted, 1, "ref", ""); err != nil {
			t.Fatalf("AppendTx: %v", err)
		}
	}
	events, _ := svc.History(ctx, account)
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp <= events[i-1].Timestamp {
			t.Errorf("timestamp regressed: event %d ts=%d, event %d ts=%d", i-1, events[i-1].Timestamp, i, events[i].Timestamp)
		}
	}
}

type frozenClock int64

func (c frozenClock) Now() int64 { return int64(c) }

// ---------------------------------------------------------------------------
// Publication
// ---------------------------------------------------------------------------

type memPublisher struct {
	events []*models.BalanceChangeEvent
}

func (p *memPublisher) PublishBalanceEvent(e *models.BalanceChangeEvent) {
	p.events = append(p.events, e)
}

func TestAppendDoesNotPublish(t *testing.T) {
	pub := &memPublisher{}
	svc := NewService(newMemStore(), &stepClock{}, pub)
	ctx := context.Background()

	e, err := svc.AppendTx(ctx, nil, uuid.New(), models.ChangeTopupCompleted, 100, "ref", "")
	if err != nil {
		t.Fatalf("AppendTx: %v", err)
	}
	// Appending happens inside a caller-owned transaction that may still roll
	// back, so nothing reaches the bus yet.
	if len(pub.events) != 0 {
		t.Fatalf("AppendTx published %d events before commit", len(pub.events))
	}

	svc.Publish(e, nil)
	if len(pub.events) != 1 || pub.events[0] != e {
		t.Errorf("Publish forwarded %d events, want the committed one", len(pub.events))
	}
}

func TestPublishWithoutPublisherIsNoOp(t *testing.T) {
	svc := NewService(newMemStore(), &stepClock{}, nil)
	svc.Publish(&models.BalanceChangeEvent{}) // must not panic
}
