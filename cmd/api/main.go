package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/icpay/backend/internal/accounts"
	"github.com/icpay/backend/internal/auth"
	"github.com/icpay/backend/internal/clock"
	"github.com/icpay/backend/internal/config"
	"github.com/icpay/backend/internal/db"
	"github.com/icpay/backend/internal/events"
	"github.com/icpay/backend/internal/ledger"
	"github.com/icpay/backend/internal/payments"
	"github.com/icpay/backend/internal/qr"
	"github.com/icpay/backend/internal/rates"
	"github.com/icpay/backend/internal/topup"
	"github.com/icpay/backend/internal/workers"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		slog.Error("loading configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("creating database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		slog.Error("cannot reach postgres", "error", err)
		os.Exit(1)
	}

	if err := db.RunMigrations(ctx, cfg.DatabaseURL, "up"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("creating river migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("river migrate up", "error", err)
		os.Exit(1)
	}

	sysClock := clock.System{}

	// Event publishing is optional: without NATS the ledger is simply quieter.
	var publisher ledger.Publisher
	if cfg.NatsURL != "" {
		nats, err := events.Connect(cfg.NatsURL, logger)
		if err != nil {
			slog.Warn("nats unavailable, event publishing disabled", "error", err)
		} else {
			defer nats.Close()
			publisher = nats
		}
	}

	ledgerRepo := ledger.NewRepository(pool)
	ledgerSvc := ledger.NewService(ledgerRepo, sysClock, publisher)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	rateSvc := rates.NewService(
		rates.NewClient(cfg.RateAPIURL, sysClock),
		rates.NewRedisCache(rdb),
		sysClock,
		logger,
	)

	accountRepo := accounts.NewRepository(pool)
	authSvc := auth.NewService(accountRepo, []byte(cfg.JWTSecret), sysClock)

	qrRepo := qr.NewRepository(pool)
	qrSvc := qr.NewService(qrRepo, qrRepo, rateSvc, sysClock)

	paymentRepo := payments.NewRepository(pool)
	paymentSvc := payments.NewService(paymentRepo, qrSvc, qrRepo, accountRepo, ledgerSvc, sysClock, logger)

	// Top-ups: the enqueue func is set after the river client exists (breaks
	// the init cycle).
	var enqueueMu sync.Mutex
	var enqueueFn topup.EnqueueAuthorizeTxFunc
	enqueueAuthorize := func(ctx context.Context, tx pgx.Tx, args workers.AuthorizeTopUpArgs) error {
		enqueueMu.Lock()
		fn := enqueueFn
		enqueueMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}
	topupRepo := topup.NewRepository(pool)
	topupSvc := topup.NewService(topupRepo, rateSvc, ledgerSvc, enqueueAuthorize, sysClock, logger)

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewAuthorizeTopUpWorker(topupSvc, logger))
	river.AddWorker(riverWorkers, workers.NewExpireQRCodesWorker(qrRepo, sysClock, logger))
	river.AddWorker(riverWorkers, workers.NewExpireTopUpsWorker(topupSvc, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: riverWorkers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(time.Minute),
				func() (river.JobArgs, *river.InsertOpts) {
					return workers.ExpireQRCodesArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
			river.NewPeriodicJob(
				river.PeriodicInterval(time.Minute),
				func() (river.JobArgs, *river.InsertOpts) {
					return workers.ExpireTopUpsArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		slog.Error("creating river client", "error", err)
		os.Exit(1)
	}
	enqueueMu.Lock()
	enqueueFn = func(ctx context.Context, tx pgx.Tx, args workers.AuthorizeTopUpArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	enqueueMu.Unlock()

	mux := http.NewServeMux()
	registerRoutes(mux, &handlers{
		auth:     auth.NewHandler(authSvc, logger),
		rates:    rates.NewHandler(rateSvc, logger),
		qr:       qr.NewHandler(qrSvc, logger),
		ledger:   ledger.NewHandler(ledgerSvc, logger),
		payments: payments.NewHandler(paymentSvc, logger),
		topups:   topup.NewHandler(topupSvc, logger),
	}, authSvc)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.AllowOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)

	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("river client stopped", "error", err)
		}
	}()

	slog.Info("starting http server", "addr", cfg.ListenAddr(), "env", cfg.Env)
	if err := http.ListenAndServe(cfg.ListenAddr(), corsHandler); err != nil {
		slog.Error("http server failed", "error", err)
		os.Exit(1)
	}
}
