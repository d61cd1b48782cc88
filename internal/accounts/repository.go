package accounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/icpay/backend/internal/models"
)

var ErrNotFound = errors.New("account not found")

// Repository persists the account registry. Accounts carry identity only;
// balances live in balance_events.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, a *models.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (id, wallet_address, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.WalletAddress, a.Username, a.Email, a.PasswordHash, a.CreatedAt)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.get(ctx, `WHERE email = $1`, email)
}

func (r *Repository) GetByWallet(ctx context.Context, wallet string) (*models.Account, error) {
	return r.get(ctx, `WHERE wallet_address = $1`, wallet)
}

func (r *Repository) get(ctx context.Context, where string, arg any) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, wallet_address, username, email, password_hash, created_at
		FROM accounts `+where,
		arg,
	).Scan(&a.ID, &a.WalletAddress, &a.Username, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Exists reports whether the id belongs to a registered account. Settlement
// uses it to refuse paying unregistered recipients.
func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id,
	).Scan(&exists)
	return exists, err
}
