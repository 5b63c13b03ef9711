package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erain9/tradesim/pkg/marketmaker"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := marketmaker.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orderPlacer, err := marketmaker.NewGRPCOrderPlacer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create order placer", zap.Error(err))
	}
	defer orderPlacer.Close()

	priceFetcher := marketmaker.NewRandomWalkPriceFetcher(cfg, logger)
	defer priceFetcher.Close()

	strategy := marketmaker.NewLayeredSymmetricQuoting(cfg, logger)
	mm := marketmaker.NewMarketMaker(cfg, logger, orderPlacer, priceFetcher, strategy)
	mm.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := mm.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		return
	}

	logger.Info("Market maker service stopped successfully")
}
