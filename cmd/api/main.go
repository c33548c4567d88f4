package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/starpoints/backend/internal/accounts"
	"github.com/starpoints/backend/internal/auth"
	"github.com/starpoints/backend/internal/claims"
	"github.com/starpoints/backend/internal/config"
	"github.com/starpoints/backend/internal/db"
	"github.com/starpoints/backend/internal/flyer"
	"github.com/starpoints/backend/internal/ledger"
	"github.com/starpoints/backend/internal/notify"
	"github.com/starpoints/backend/internal/rewards"
	"github.com/starpoints/backend/internal/router"
	"github.com/starpoints/backend/internal/tasks"
	"github.com/starpoints/backend/internal/withdrawals"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Configuration error", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running and DATABASE_URL is correct", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Connected to PostgreSQL")

	if err := db.EnsureSchema(ctx, pool); err != nil {
		slog.Error("Schema bootstrap failed", "error", err)
		os.Exit(1)
	}

	// River migrations (job queue tables).
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewSendNotificationWorker(cfg.NotifyWebhookURL, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertNotification := notify.InsertTxFunc(func(ctx context.Context, tx pgx.Tx, args notify.SendNotificationArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	})

	runner := db.NewRunner(pool)
	ledgerSvc := ledger.NewService(ledger.NewRepository())
	registry := claims.NewRegistry()
	verifier := flyer.NewClient(cfg.FlyerAPIURL, cfg.FlyerAPIKey, logger)

	accountRepo := accounts.NewRepository(pool)
	rewardsSvc := rewards.NewService(runner, ledgerSvc, registry, verifier, accountRepo, insertNotification, rewards.Amounts{
		Task:     cfg.TaskRewardUnits,
		Referral: cfg.ReferralBonusUnits,
		Daily:    cfg.DailyBonusUnits,
	}, logger)

	withdrawalRepo := withdrawals.NewRepository(pool)
	withdrawalSvc := withdrawals.NewService(runner, withdrawalRepo, ledgerSvc, insertNotification, cfg.WithdrawMinUnits, logger)

	taskRepo := tasks.NewRepository(pool)
	authSvc := auth.NewService(cfg.ServiceKeyHash, cfg.JWTSecret)

	handler := router.New(
		auth.NewHandler(authSvc, logger),
		accounts.NewHandler(accountRepo, rewardsSvc, logger),
		tasks.NewHandler(taskRepo, rewardsSvc, logger),
		withdrawals.NewHandler(withdrawalSvc, logger),
		authSvc,
		cfg.AdminIDs,
	)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
	}).Handler(handler)

	// Start River client (delivers notifications).
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	addr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", addr)
	if err := http.ListenAndServe(addr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
