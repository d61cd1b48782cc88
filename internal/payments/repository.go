package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/icpay/backend/internal/models"
)

// Repository persists transaction rows. The table is append-only: every
// status transition of a logical payment is a new row sharing base_id.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) InsertTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, base_id, payer, payee, token_amount, fiat_amount, fiat_currency, fee, status, qr_id, timestamp_ns, external_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, t.ID, t.BaseID, t.Payer, t.Payee, t.TokenAmount, t.FiatAmount, t.FiatCurrency, t.Fee, t.Status, t.QRID, t.Timestamp, t.ExternalHash)
	return err
}

// ListByAccount returns every row where the account is payer or payee,
// newest first.
func (r *Repository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, base_id, payer, payee, token_amount, fiat_amount, fiat_currency, fee, status, qr_id, timestamp_ns, external_hash
		FROM transactions
		WHERE payer = $1 OR payee = $1
		ORDER BY timestamp_ns DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// ListByBaseID returns the transition history of one logical payment in
// chronological order; the last row is the current state.
func (r *Repository) ListByBaseID(ctx context.Context, baseID string) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, base_id, payer, payee, token_amount, fiat_amount, fiat_currency, fee, status, qr_id, timestamp_ns, external_hash
		FROM transactions
		WHERE base_id = $1
		ORDER BY timestamp_ns ASC
	`, baseID)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func scanTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.BaseID, &t.Payer, &t.Payee, &t.TokenAmount, &t.FiatAmount, &t.FiatCurrency, &t.Fee, &t.Status, &t.QRID, &t.Timestamp, &t.ExternalHash); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
