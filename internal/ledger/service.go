package ledger

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/icpay/backend/internal/clock"
	"github.com/icpay/backend/internal/models"
)

// ErrNegativeAmount is returned when an append is attempted with amount < 0.
var ErrNegativeAmount = errors.New("event amount must not be negative")

// Store is the minimal event-store interface the service needs. *Repository
// satisfies it; tests substitute an in-memory implementation.
type Store interface {
	InsertTx(ctx context.Context, tx pgx.Tx, e *models.BalanceChangeEvent) error
	ListByAccountTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) ([]*models.BalanceChangeEvent, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.BalanceChangeEvent, error)
}

// Publisher receives committed events for downstream consumers. Publication is
// best-effort and advisory; the balance_events table is the source of truth.
type Publisher interface {
	PublishBalanceEvent(e *models.BalanceChangeEvent)
}

type Service interface {
	AppendTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, kind models.BalanceChangeType, amount int64, referenceID, description string) (*models.BalanceChangeEvent, error)
	Publish(events ...*models.BalanceChangeEvent)
	Balance(ctx context.Context, accountID uuid.UUID) (int64, error)
	BalanceTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int64, error)
	History(ctx context.Context, accountID uuid.UUID) ([]*models.BalanceChangeEvent, error)
}

type service struct {
	store Store
	clock clock.Clock
	pub   Publisher
}

// NewService creates the balance ledger. pub may be nil.
func NewService(store Store, clk clock.Clock, pub Publisher) Service {
	return &service{store: store, clock: clk, pub: pub}
}

var _ Service = (*service)(nil)

// AppendTx reads the account's events, folds them into the current balance,
// applies kind, and appends the resulting event. Caller owns the transaction;
// the append becomes visible (and final) only on commit.
func (s *service) AppendTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, kind models.BalanceChangeType, amount int64, referenceID, description string) (*models.BalanceChangeEvent, error) {
	if amount < 0 {
		return nil, ErrNegativeAmount
	}
	events, err := s.store.ListByAccountTx(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	previous := Fold(events)

	ts := s.clock.Now()
	if n := len(events); n > 0 && events[n-1].Timestamp >= ts {
		// Timestamps must be non-decreasing per account for replay correctness.
		ts = events[n-1].Timestamp + 1
	}

	e := &models.BalanceChangeEvent{
		AccountID:       accountID,
		Kind:            kind,
		Amount:          amount,
		PreviousBalance: previous,
		NewBalance:      models.ApplyChange(kind, previous, amount),
		Timestamp:       ts,
		ReferenceID:     referenceID,
		Description:     description,
	}
	if err := s.store.InsertTx(ctx, tx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Publish hands committed events to the publisher. Callers invoke it after
// their transaction commits; events from a rolled-back transaction must never
// reach subscribers.
func (s *service) Publish(events ...*models.BalanceChangeEvent) {
	if s.pub == nil {
		return
	}
	for _, e := range events {
		if e != nil {
			s.pub.PublishBalanceEvent(e)
		}
	}
}

// Balance recomputes the account balance from its full event history. Pure in
// its inputs: the same event set always yields the same balance.
func (s *service) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	events, err := s.store.ListByAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return Fold(events), nil
}

// BalanceTx is Balance reading through an open transaction, used by settlement
// so the sufficiency check and the debit see the same event set.
func (s *service) BalanceTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int64, error) {
	events, err := s.store.ListByAccountTx(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}
	return Fold(events), nil
}

func (s *service) History(ctx context.Context, accountID uuid.UUID) ([]*models.BalanceChangeEvent, error) {
	return s.store.ListByAccount(ctx, accountID)
}

// Fold replays events in ascending (timestamp, id) order into a balance.
// An account with no events has balance 0.
func Fold(events []*models.BalanceChangeEvent) int64 {
	sorted := make([]*models.BalanceChangeEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp != sorted[j].Timestamp {
			return sorted[i].Timestamp < sorted[j].Timestamp
		}
		return sorted[i].ID < sorted[j].ID
	})

	var balance int64
	for _, e := range sorted {
		balance = models.ApplyChange(e.Kind, balance, e.Amount)
	}
	return balance
}
