// Package main runs a single reconciliation pass: every referral withdrawal
// left pending is credited to its wallet and settled. It is meant for cron
// jobs and manual recovery after an outage.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"scoutpay/internal/app"
	"scoutpay/internal/config"
	"scoutpay/internal/logging"

	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	timeout := flag.Duration("timeout", 5*time.Minute, "abort the pass after this long")
	flag.Parse()

	config.LoadEnv()
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise services", zap.Error(err))
		return 1
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("failed to close backends", zap.Error(err))
		}
	}()

	report, err := c.Wallet.Reconcile(ctx)
	if err != nil {
		logger.Error("reconciliation failed", zap.Error(err))
		return 1
	}
	logger.Info("reconciliation finished",
		zap.Int("pending", report.Pending),
		zap.Int("credited", report.Credited),
		zap.Int("failed", report.Failed),
	)
	if report.Failed > 0 {
		return 2
	}
	return 0
}
