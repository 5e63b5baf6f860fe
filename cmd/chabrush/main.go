package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"chabrush/internal/app"
	"chabrush/pkg/config"
	"chabrush/pkg/logger"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load(".env")

	addrFlag, dbFlag, cfgFlag, set := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgFlag, set["config"])
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Init()
		logger.Error("config_load_failed", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	logger.InitWithLevel(cfg.Logging.Level)
	defer logger.Sync()

	// Explicit flags win over config and env.
	addr := cfg.Addr()
	if set["addr"] {
		addr = addrFlag
	}
	if set["db"] {
		cfg.Storage.DBPath = dbFlag
	}

	a, err := app.New(cfg)
	if err != nil {
		logger.Error("startup_failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx, addr); err != nil {
		logger.Error("server_exit", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown_complete")
}
