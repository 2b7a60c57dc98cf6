// Package main is the entry point for the wallet API.
// It loads configuration, wires the ledger services, starts the background
// reconciler and serves HTTP until interrupted.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scoutpay/internal/app"
	"scoutpay/internal/config"
	"scoutpay/internal/handlers"
	"scoutpay/internal/logging"
	"scoutpay/internal/middleware"
	"scoutpay/internal/routes"
	"scoutpay/internal/services/wallet"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("failed to close backends", zap.Error(err))
		}
	}()

	go runReconciler(ctx, c.Wallet, cfg.ReconcileInterval, logger)

	server := fiber.New(fiber.Config{
		AppName:      "scoutpay",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
	})

	server.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigin,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowCredentials: true,
	}))
	server.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.SetupRoutes(server, routes.Handlers{
		Auth:          middleware.NewAuthMiddleware(cfg.JWTSecret, logger),
		Service:       middleware.NewServiceKeyMiddleware(cfg.ServiceKey, logger),
		Wallet:        handlers.NewWalletHandler(c.Wallet, logger),
		Referral:      handlers.NewReferralHandler(c.Referrals, c.Wallet, logger),
		Cards:         handlers.NewCardHandler(c.Cards, logger),
		Notifications: handlers.NewNotificationHandler(c.Notifications, logger),
		Webhook:       handlers.NewWebhookHandler(cfg.Gateway.SecretKey, c.Gateway.Checkouts(), c.Wallet, logger),
		Health:        handlers.NewHealthHandler(c.DB, c.Cache),
		Gatherer:      c.Registry,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("port", cfg.Port))
		errCh <- server.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}

// runReconciler replays unfinished referral credits every interval until ctx
// is cancelled.
func runReconciler(ctx context.Context, svc wallet.Service, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		logger.Info("periodic reconciliation disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := svc.Reconcile(ctx)
			if err != nil {
				logger.Error("reconciliation failed", zap.Error(err))
				continue
			}
			if report.Pending > 0 {
				logger.Info("reconciliation finished",
					zap.Int("pending", report.Pending),
					zap.Int("credited", report.Credited),
					zap.Int("failed", report.Failed),
				)
			}
		}
	}
}
