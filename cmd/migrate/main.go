package main

// Run database migrations:
//   go run ./cmd/migrate [up|down|status]

import (
	"context"
	"os"

	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/config"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/storage/db"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fail("load config", err)
	}
	if err := telemetry.Init(cfg.Env); err != nil {
		fail("init logger", err)
	}
	defer telemetry.Sync()

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	ctx := context.Background()
	opts := db.Overrides{PingTimeout: cfg.DBPingTimeout}.Apply(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		fail("connect database", err)
	}
	defer sqlDB.Close()

	if err := db.Migrate(ctx, sqlDB, command); err != nil {
		fail("migrate "+command, err)
	}
	telemetry.Info("migrations finished", map[string]any{"command": command})
}

func fail(msg string, err error) {
	telemetry.Error(msg, map[string]any{"error": err})
	telemetry.Sync()
	os.Exit(1)
}
