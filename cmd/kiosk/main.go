package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"kiosk/internal/config"
	"kiosk/internal/logger"
	"kiosk/internal/scanner"
)

// The station binary: registers itself with the backend, then ticks
// over the attached QR scanner (keyboard-wedge mode on stdin) and
// submits whatever it reads. It never dies because of a rejected scan;
// unplugging the scanner or a signal stops it.
func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.Env, cfg.LogLevel, "console")
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zl.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		zl.Info("shutdown signal received")
		cancel()
	}()

	client := scanner.NewClient(cfg.APIBaseURL)

	regCtx, cancelReg := context.WithTimeout(ctx, 10*time.Second)
	err = client.Register(regCtx, cfg.StationID)
	cancelReg()
	if err != nil {
		zl.Fatal("station register failed", zap.Error(err))
	}
	zl.Info("station registered",
		zap.String("station", cfg.StationID),
		zap.String("backend", cfg.APIBaseURL))

	source := scanner.NewStdinSource(os.Stdin)
	station := scanner.NewStation(source, client, cfg.TickInterval, cfg.SubmitTimeout, zl)

	zl.Info("scanning", zap.Duration("tick", cfg.TickInterval))
	if err := station.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		zl.Fatal("station stopped", zap.Error(err))
	}
	zl.Info("station stopped")
}
