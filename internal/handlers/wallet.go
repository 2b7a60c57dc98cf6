package handlers

import (
	"scoutpay/internal/models"
	"scoutpay/internal/services/wallet"
	"scoutpay/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WalletHandler struct {
	walletService wallet.Service
	logger        *zap.Logger
}

func NewWalletHandler(walletService wallet.Service, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
		logger:        logger,
	}
}

type amountInput struct {
	Amount decimal.Decimal `json:"amount"`
}

type cardTopUpInput struct {
	Amount decimal.Decimal `json:"amount"`
	CardID string          `json:"card_id" validate:"required"`
}

type verifyTopUpInput struct {
	Reference string `json:"reference" validate:"required,max=64"`
}

type orderInput struct {
	Amount         decimal.Decimal `json:"amount"`
	OrderReference string          `json:"order_reference" validate:"required,max=64"`
	Description    string          `json:"description" validate:"max=255"`
}

// GetWallet returns the caller's wallet, creating it on first access.
func (h *WalletHandler) GetWallet(c *fiber.Ctx, identity models.Identity) error {
	w, err := h.walletService.GetOrCreateWallet(c.UserContext(), identity)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	hidden, err := h.walletService.BalanceHidden(c.UserContext(), identity.UserID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.Success(c, fiber.Map{
		"wallet":         w,
		"balance_hidden": hidden,
	})
}

func (h *WalletHandler) ListTransactions(c *fiber.Ctx, identity models.Identity) error {
	limit := c.QueryInt("limit", wallet.DefaultHistoryLimit)
	txs, err := h.walletService.ListTransactions(c.UserContext(), identity.UserID, limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.Success(c, fiber.Map{
		"transactions": txs,
		"count":        len(txs),
	})
}

func (h *WalletHandler) ToggleVisibility(c *fiber.Ctx, identity models.Identity) error {
	hidden, err := h.walletService.ToggleBalanceVisibility(c.UserContext(), identity.UserID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.Success(c, fiber.Map{"balance_hidden": hidden})
}

// StartTopUp opens a gateway checkout; the client completes payment at the
// returned authorization URL.
func (h *WalletHandler) StartTopUp(c *fiber.Ctx, identity models.Identity) error {
	var input amountInput
	if err := parseBody(c, &input); err != nil {
		return respondError(c, h.logger, err)
	}
	session, err := h.walletService.StartTopUp(c.UserContext(), identity, input.Amount)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.Created(c, session)
}

// VerifyTopUp reconciles a reference the client reports as paid.
func (h *WalletHandler) VerifyTopUp(c *fiber.Ctx, identity models.Identity) error {
	var input verifyTopUpInput
	if err := parseBody(c, &input); err != nil {
		return respondError(c, h.logger, err)
	}
	w, err := h.walletService.GetOrCreateWallet(c.UserContext(), identity)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	res, err := h.walletService.ReconcileTopUp(c.UserContext(), w.ID, input.Reference)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.Success(c, res)
}

// TopUpWithCard charges a saved card. A charge the gateway has not settled
// yet is answered with 202 and credited once it verifies.
func (h *WalletHandler) TopUpWithCard(c *fiber.Ctx, identity models.Identity) error {
	var input cardTopUpInput
	if err := parseBody(c, &input); err != nil {
		return respondError(c, h.logger, err)
	}
	res, err := h.walletService.TopUpWithCard(c.UserContext(), identity, input.CardID, input.Amount)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if res.Pending {
		return utils.Respond(c, fiber.StatusAccepted, res)
	}
	return utils.Success(c, res)
}

// Debit charges the caller's wallet for an order. Repeating an order
// reference returns the original payment.
func (h *WalletHandler) Debit(c *fiber.Ctx, identity models.Identity) error {
	var input orderInput
	if err := parseBody(c, &input); err != nil {
		return respondError(c, h.logger, err)
	}
	w, err := h.walletService.GetOrCreateWallet(c.UserContext(), identity)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	res, err := h.walletService.DebitForOrder(c.UserContext(), w.ID, input.Amount, input.OrderReference, input.Description)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.Success(c, res)
}

// Refund credits a user back for a paid order. It is mounted on the
// internal router; the order service decides when a refund is due.
func (h *WalletHandler) Refund(c *fiber.Ctx) error {
	var input orderInput
	if err := parseBody(c, &input); err != nil {
		return respondError(c, h.logger, err)
	}
	w, err := h.walletService.GetWallet(c.UserContext(), c.Params("userId"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	res, err := h.walletService.Refund(c.UserContext(), w.ID, input.Amount, input.OrderReference, input.Description)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	h.logger.Info("order refunded",
		zap.String("user_id", w.UserID),
		zap.String("order_reference", input.OrderReference),
		zap.Bool("duplicate", res.Duplicate),
	)
	return utils.Success(c, res)
}

// Register mounts the wallet routes on an authenticated router.
func (h *WalletHandler) Register(router fiber.Router) {
	w := router.Group("/wallet")
	w.Get("/", authed(h.GetWallet))
	w.Get("/transactions", authed(h.ListTransactions))
	w.Post("/visibility/toggle", authed(h.ToggleVisibility))
	w.Post("/topup", authed(h.StartTopUp))
	w.Post("/topup/verify", authed(h.VerifyTopUp))
	w.Post("/topup/card", authed(h.TopUpWithCard))
	w.Post("/debit", authed(h.Debit))
}

// RegisterInternal mounts the service-to-service wallet routes.
func (h *WalletHandler) RegisterInternal(router fiber.Router) {
	router.Post("/wallets/:userId/refund", h.Refund)
}
