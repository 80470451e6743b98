// cmd/bot/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ledgersnipe/xrpl-bot/internal/bot"
	"github.com/ledgersnipe/xrpl-bot/internal/config"
	"github.com/ledgersnipe/xrpl-bot/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Init(cfg.DebugLogging, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting listing sniper bot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := bot.NewRunner(cfg, log)
	defer runner.Shutdown()

	if err := runner.Run(ctx); err != nil {
		log.Error("Bot execution error", zap.Error(err))
		runner.Shutdown()
		os.Exit(1)
	}
}
