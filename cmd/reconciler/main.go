package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"rwaswap-rewards/internal/common"
	"rwaswap-rewards/internal/config"
	"rwaswap-rewards/internal/reconciler"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	rec := reconciler.New(services.DbService, services.PrimeService, services.Chains,
		services.DefaultPortfolio.Id, cfg.Reconciler)
	if err := rec.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start reconciler", zap.Error(err))
	}

	common.PrintHeader("PAYOUT RECONCILER RUNNING", common.DefaultWidth)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	rec.Stop()
}
