package handlers

import (
	"scoutpay/internal/models"
	"scoutpay/internal/services/referral"
	"scoutpay/internal/services/wallet"
	"scoutpay/internal/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ReferralHandler struct {
	referrals     *referral.Service
	walletService wallet.Service
	logger        *zap.Logger
}

func NewReferralHandler(referrals *referral.Service, walletService wallet.Service, logger *zap.Logger) *ReferralHandler {
	return &ReferralHandler{referrals: referrals, walletService: walletService, logger: logger}
}

type applyReferralInput struct {
	Code string `json:"code" validate:"required,len=8,alphanum"`
}

// GetAccount returns the caller's referral code and points.
func (h *ReferralHandler) GetAccount(c *fiber.Ctx, identity models.Identity) error {
	acc, err := h.referrals.GetOrCreate(c.UserContext(), identity.UserID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.Success(c, fiber.Map{"referral": acc})
}

// Apply credits the owner of code for referring the caller.
func (h *ReferralHandler) Apply(c *fiber.Ctx, identity models.Identity) error {
	var input applyReferralInput
	if err := parseBody(c, &input); err != nil {
		return respondError(c, h.logger, err)
	}
	if _, err := h.referrals.ProcessReferral(c.UserContext(), input.Code, identity.UserID, 0); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.Success(c, fiber.Map{"message": "referral applied"})
}

// Withdraw moves all referral points into the caller's wallet.
func (h *ReferralHandler) Withdraw(c *fiber.Ctx, identity models.Identity) error {
	credit, err := h.walletService.WithdrawReferralToWallet(c.UserContext(), identity)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.Success(c, credit)
}

func (h *ReferralHandler) Register(router fiber.Router) {
	r := router.Group("/referral")
	r.Get("/", authed(h.GetAccount))
	r.Post("/apply", authed(h.Apply))
	r.Post("/withdraw", authed(h.Withdraw))
}
