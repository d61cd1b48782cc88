package qr

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/icpay/backend/internal/models"
)

// ErrNotFound is returned when no QR code exists for an id.
var ErrNotFound = errors.New("qr code not found")

// Repository persists QR codes and their append-only usage log. qr_usage_log
// rows are never updated or deleted; qr_codes rows are only mutated by the
// advisory used flag and removed by the expiry sweep.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, q *models.QRCode) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO qr_codes (id, owner_id, fiat_amount, fiat_currency, token_amount, created_at, expire_time, used, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, q.ID, q.OwnerID, q.FiatAmount, q.FiatCurrency, q.TokenAmount, q.CreatedAt, q.ExpireTime, q.Used, q.Description)
	return err
}

func (r *Repository) Get(ctx context.Context, id string) (*models.QRCode, error) {
	var q models.QRCode
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, fiat_amount, fiat_currency, token_amount, created_at, expire_time, used, description
		FROM qr_codes WHERE id = $1
	`, id).Scan(&q.ID, &q.OwnerID, &q.FiatAmount, &q.FiatCurrency, &q.TokenAmount, &q.CreatedAt, &q.ExpireTime, &q.Used, &q.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.QRCode, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, fiat_amount, fiat_currency, token_amount, created_at, expire_time, used, description
		FROM qr_codes WHERE owner_id = $1 ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.QRCode
	for rows.Next() {
		var q models.QRCode
		if err := rows.Scan(&q.ID, &q.OwnerID, &q.FiatAmount, &q.FiatCurrency, &q.TokenAmount, &q.CreatedAt, &q.ExpireTime, &q.Used, &q.Description); err != nil {
			return nil, err
		}
		list = append(list, &q)
	}
	return list, rows.Err()
}

// MarkUsedTx sets the advisory used flag. Redeemability decisions never read
// this flag; the usage log is authoritative.
func (r *Repository) MarkUsedTx(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `UPDATE qr_codes SET used = TRUE WHERE id = $1`, id)
	return err
}

// DeleteExpired removes QR codes whose expire_time is before now and returns
// the number removed. Used by the periodic sweep.
func (r *Repository) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM qr_codes WHERE expire_time < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) InsertUsageTx(ctx context.Context, tx pgx.Tx, u *models.QRUsageLog) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO qr_usage_log (id, qr_id, owner_id, used_by, transaction_id, timestamp_ns, usage_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.QRID, u.OwnerID, u.UsedBy, u.TransactionID, u.Timestamp, u.UsageType)
	return err
}

// HasCompletedUsage reports whether a payment_completed usage row exists for
// the QR id. This is the authoritative single-use check.
func (r *Repository) HasCompletedUsage(ctx context.Context, qrID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM qr_usage_log WHERE qr_id = $1 AND usage_type = $2)
	`, qrID, models.QRUsagePaymentCompleted).Scan(&exists)
	return exists, err
}

func (r *Repository) HasCompletedUsageTx(ctx context.Context, tx pgx.Tx, qrID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM qr_usage_log WHERE qr_id = $1 AND usage_type = $2)
	`, qrID, models.QRUsagePaymentCompleted).Scan(&exists)
	return exists, err
}
