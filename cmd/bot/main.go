package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/BlackMaN314/daily-routine-bot/internal/app"
	"github.com/BlackMaN314/daily-routine-bot/internal/config"
	"github.com/BlackMaN314/daily-routine-bot/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet.
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	application, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("app init failed", zap.Error(err))
	}

	if err := application.Run(context.Background()); err != nil {
		log.Error("app stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}
