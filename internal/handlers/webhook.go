package handlers

import (
	"scoutpay/internal/services/gateway"
	"scoutpay/internal/services/wallet"
	"scoutpay/internal/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// WebhookHandler receives gateway events. A checkout still pending in this
// process is resolved through its callbacks first; the wallet service then
// handles the event, which is a no-op when the callback already credited.
type WebhookHandler struct {
	secret        string
	checkouts     *gateway.Registry
	walletService wallet.Service
	logger        *zap.Logger
}

func NewWebhookHandler(secret string, checkouts *gateway.Registry, walletService wallet.Service, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret:        secret,
		checkouts:     checkouts,
		walletService: walletService,
		logger:        logger.Named("webhook"),
	}
}

func (h *WebhookHandler) Gateway(c *fiber.Ctx) error {
	body := c.Body()
	if !gateway.VerifySignature(h.secret, body, c.Get(gateway.SignatureHeader)) {
		h.logger.Warn("rejected webhook with bad signature", zap.String("ip", c.IP()))
		return utils.Unauthorized(c, "invalid signature")
	}

	event, err := gateway.ParseWebhook(body)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	h.logger.Info("gateway event received",
		zap.String("event", event.Event),
		zap.String("reference", event.Data.Reference),
	)

	if h.checkouts != nil && (event.Event == gateway.EventChargeSuccess || event.Event == gateway.EventChargeFailed) {
		h.checkouts.Resolve(c.UserContext(), event.Data.Reference, event.Data.Status)
	}

	if err := h.walletService.HandleGatewayEvent(c.UserContext(), event); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.Success(c, fiber.Map{"status": "processed"})
}
