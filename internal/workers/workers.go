package workers

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/icpay/backend/internal/clock"
)

// AuthorizeTopUpArgs asks the simulated card gateway to authorize a pending
// top-up.
type AuthorizeTopUpArgs struct {
	BaseID string `json:"base_id"`
}

func (AuthorizeTopUpArgs) Kind() string { return "authorize_topup" }

// Authorizer is the contract the authorization worker needs. topup.Service
// satisfies it.
type Authorizer interface {
	Authorize(ctx context.Context, baseID string) error
}

type AuthorizeTopUpWorker struct {
	river.WorkerDefaults[AuthorizeTopUpArgs]
	topups Authorizer
	logger *slog.Logger
}

func NewAuthorizeTopUpWorker(topups Authorizer, logger *slog.Logger) *AuthorizeTopUpWorker {
	return &AuthorizeTopUpWorker{topups: topups, logger: logger}
}

func (w *AuthorizeTopUpWorker) Work(ctx context.Context, job *river.Job[AuthorizeTopUpArgs]) error {
	if err := w.topups.Authorize(ctx, job.Args.BaseID); err != nil {
		return err
	}
	w.logger.Info("topup authorized", "base_id", job.Args.BaseID)
	return nil
}

// ExpireQRCodesArgs is the periodic sweep that deletes expired QR codes.
type ExpireQRCodesArgs struct{}

func (ExpireQRCodesArgs) Kind() string { return "expire_qr_codes" }

// QRSweeper deletes QR codes past their expiry. *qr.Repository satisfies it.
type QRSweeper interface {
	DeleteExpired(ctx context.Context, now int64) (int64, error)
}

type ExpireQRCodesWorker struct {
	river.WorkerDefaults[ExpireQRCodesArgs]
	codes  QRSweeper
	clock  clock.Clock
	logger *slog.Logger
}

func NewExpireQRCodesWorker(codes QRSweeper, clk clock.Clock, logger *slog.Logger) *ExpireQRCodesWorker {
	return &ExpireQRCodesWorker{codes: codes, clock: clk, logger: logger}
}

func (w *ExpireQRCodesWorker) Work(ctx context.Context, _ *river.Job[ExpireQRCodesArgs]) error {
	n, err := w.codes.DeleteExpired(ctx, w.clock.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		w.logger.Info("expired qr codes removed", "count", n)
	}
	return nil
}

// ExpireTopUpsArgs is the periodic sweep that finalizes pending top-ups whose
// window closed.
type ExpireTopUpsArgs struct{}

func (ExpireTopUpsArgs) Kind() string { return "expire_topups" }

// TopUpSweeper writes expired rows for stale pending top-ups. topup.Service
// satisfies it.
type TopUpSweeper interface {
	ExpireStale(ctx context.Context) (int, error)
}

type ExpireTopUpsWorker struct {
	river.WorkerDefaults[ExpireTopUpsArgs]
	topups TopUpSweeper
	logger *slog.Logger
}

func NewExpireTopUpsWorker(topups TopUpSweeper, logger *slog.Logger) *ExpireTopUpsWorker {
	return &ExpireTopUpsWorker{topups: topups, logger: logger}
}

func (w *ExpireTopUpsWorker) Work(ctx context.Context, _ *river.Job[ExpireTopUpsArgs]) error {
	n, err := w.topups.ExpireStale(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.logger.Info("stale topups expired", "count", n)
	}
	return nil
}
