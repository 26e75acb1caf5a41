package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	clts "koltracker/clients"
	"koltracker/config"
	"koltracker/internal/app"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Local development reads keys from a .env file; in production the
	// platform injects real environment variables
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Load config from environment variables
	cfg := config.Load()
	logger.Info("starting kol tracker", zap.Bool("isProd", cfg.IsProd))

	logger.Info("instantiating clients")
	clients := clts.NewClients(logger, cfg)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	runner := app.NewRunner(clients, cfg)
	if err := runner.Run(ctx); err != nil {
		logger.Fatal("runner failed", zap.Error(err))
	}
}
