// Package routes defines the API routing configuration.
// It mounts every handler under /api, applies the auth middleware to the
// user-facing groups and the service key to /api/internal.
package routes

import (
	"time"

	"scoutpay/internal/handlers"
	"scoutpay/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers bundles the HTTP handlers built by the process entry point.
type Handlers struct {
	Auth          *middleware.AuthMiddleware
	Service       *middleware.ServiceKeyMiddleware
	Wallet        *handlers.WalletHandler
	Referral      *handlers.ReferralHandler
	Cards         *handlers.CardHandler
	Notifications *handlers.NotificationHandler
	Webhook       *handlers.WebhookHandler
	Health        *handlers.HealthHandler
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// SetupRoutes configures all application routes.
func SetupRoutes(app *fiber.App, h Handlers) {
	app.Get("/health", h.Health.HealthCheck)
	app.Get("/health/cache", h.Health.CacheStats)
	if h.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")

	// Gateway webhooks are authenticated by signature, not by user token. The
	// route must stay registered ahead of the authenticated group.
	api.Post("/webhooks/gateway", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please try again later.",
			})
		},
	}), h.Webhook.Gateway)

	// Internal callers authenticate with the service key. Also ahead of the
	// authenticated group.
	internal := api.Group("/internal", h.Service.Handler)
	h.Wallet.RegisterInternal(internal)

	authenticated := api.Group("/", h.Auth.Handler)
	h.Wallet.Register(authenticated)
	h.Referral.Register(authenticated)
	h.Cards.Register(authenticated)
	h.Notifications.Register(authenticated)
}
