package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/icpay/backend/internal/config"
	"github.com/icpay/backend/internal/db"
)

// Usage: migrate [up|down|status|...]. Defaults to up.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		slog.Error("loading configuration", "error", err)
		os.Exit(1)
	}

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	if err := db.RunMigrations(context.Background(), cfg.DatabaseURL, command); err != nil {
		slog.Error("migration failed", "command", command, "error", err)
		os.Exit(1)
	}
	slog.Info("migrations applied", "command", command)
}
