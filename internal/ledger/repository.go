package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/icpay/backend/internal/models"
)

// Repository persists balance events in the append-only balance_events table.
// Rows are inserted, never updated or deleted.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// InsertTx appends one event inside the given transaction and fills in its id.
func (r *Repository) InsertTx(ctx context.Context, tx pgx.Tx, e *models.BalanceChangeEvent) error {
	return tx.QueryRow(ctx, `
		INSERT INTO balance_events (account_id, kind, amount, previous_balance, new_balance, timestamp_ns, reference_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, e.AccountID, e.Kind, e.Amount, e.PreviousBalance, e.NewBalance, e.Timestamp, e.ReferenceID, e.Description).Scan(&e.ID)
}

// ListByAccountTx returns all events for an account in (timestamp, id) order,
// reading through the given transaction so an in-flight settlement observes
// its own writes.
func (r *Repository) ListByAccountTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) ([]*models.BalanceChangeEvent, error) {
	rows, err := tx.Query(ctx, listByAccountSQL, accountID)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r *Repository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.BalanceChangeEvent, error) {
	rows, err := r.pool.Query(ctx, listByAccountSQL, accountID)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

const listByAccountSQL = `
	SELECT id, account_id, kind, amount, previous_balance, new_balance, timestamp_ns, reference_id, description
	FROM balance_events
	WHERE account_id = $1
	ORDER BY timestamp_ns ASC, id ASC
`

func scanEvents(rows pgx.Rows) ([]*models.BalanceChangeEvent, error) {
	defer rows.Close()
	var list []*models.BalanceChangeEvent
	for rows.Next() {
		var e models.BalanceChangeEvent
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Kind, &e.Amount, &e.PreviousBalance, &e.NewBalance, &e.Timestamp, &e.ReferenceID, &e.Description); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
