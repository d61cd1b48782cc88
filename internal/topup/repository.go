package topup

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/icpay/backend/internal/models"
)

var ErrNotFound = errors.New("topup not found")

// Repository persists top-up rows, one immutable row per status transition,
// correlated by base_id. QRIS, card, and web3 payloads are stored as JSONB.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const insertSQL = `
	INSERT INTO topups (id, base_id, account_id, token_amount, fiat_amount, fiat_currency, method, qris_data, card_data, web3_data, status, created_at, expire_time, processed_at, reference_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
`

func (r *Repository) Insert(ctx context.Context, t *models.TopUpTransaction) error {
	_, err := r.pool.Exec(ctx, insertSQL, insertArgs(t)...)
	return err
}

func (r *Repository) InsertTx(ctx context.Context, tx pgx.Tx, t *models.TopUpTransaction) error {
	_, err := tx.Exec(ctx, insertSQL, insertArgs(t)...)
	return err
}

func insertArgs(t *models.TopUpTransaction) []any {
	return []any{
		t.ID, t.BaseID, t.AccountID, t.TokenAmount, t.FiatAmount, t.FiatCurrency,
		t.Method, t.QRIS, t.Card, t.Web3, t.Status, t.CreatedAt, t.ExpireTime,
		t.ProcessedAt, t.ReferenceID,
	}
}

const selectColumns = `id, base_id, account_id, token_amount, fiat_amount, fiat_currency, method, qris_data, card_data, web3_data, status, created_at, expire_time, processed_at, reference_id`

// Latest returns the newest row for a base id, which is the top-up's current
// state.
func (r *Repository) Latest(ctx context.Context, baseID string) (*models.TopUpTransaction, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM topups WHERE base_id = $1
		ORDER BY created_at DESC LIMIT 1
	`, baseID)
	t, err := scanTopUp(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (r *Repository) LatestTx(ctx context.Context, tx pgx.Tx, baseID string) (*models.TopUpTransaction, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM topups WHERE base_id = $1
		ORDER BY created_at DESC LIMIT 1
	`, baseID)
	t, err := scanTopUp(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListByAccount returns the current state of each of the account's top-ups,
// newest first.
func (r *Repository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.TopUpTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (base_id) `+selectColumns+`
		FROM topups WHERE account_id = $1
		ORDER BY base_id, created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.TopUpTransaction
	for rows.Next() {
		t, err := scanTopUp(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// ListStale returns top-ups whose latest row is still pending or processing
// and whose expiry has passed. The predicate runs in SQL so the periodic sweep
// stays cheap as the table grows.
func (r *Repository) ListStale(ctx context.Context, now int64) ([]*models.TopUpTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+selectColumns+` FROM (
			SELECT DISTINCT ON (base_id) `+selectColumns+`
			FROM topups
			ORDER BY base_id, created_at DESC
		) latest
		WHERE status IN ('pending', 'processing') AND expire_time < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.TopUpTransaction
	for rows.Next() {
		t, err := scanTopUp(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func scanTopUp(row pgx.Row) (*models.TopUpTransaction, error) {
	var t models.TopUpTransaction
	err := row.Scan(
		&t.ID, &t.BaseID, &t.AccountID, &t.TokenAmount, &t.FiatAmount, &t.FiatCurrency,
		&t.Method, &t.QRIS, &t.Card, &t.Web3, &t.Status, &t.CreatedAt, &t.ExpireTime,
		&t.ProcessedAt, &t.ReferenceID,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
