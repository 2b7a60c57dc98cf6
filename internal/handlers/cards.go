package handlers

import (
	"scoutpay/internal/models"
	"scoutpay/internal/services/cards"
	"scoutpay/internal/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type CardHandler struct {
	cards  *cards.Service
	logger *zap.Logger
}

func NewCardHandler(cardService *cards.Service, logger *zap.Logger) *CardHandler {
	return &CardHandler{cards: cardService, logger: logger}
}

func (h *CardHandler) LinkCard(c *fiber.Ctx, identity models.Identity) error {
	var input models.CreateCardInput
	if err := parseBody(c, &input); err != nil {
		return respondError(c, h.logger, err)
	}
	card, err := h.cards.LinkCard(c.UserContext(), identity.UserID, input)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.Created(c, fiber.Map{"card": card})
}

func (h *CardHandler) ListCards(c *fiber.Ctx, identity models.Identity) error {
	list, err := h.cards.ListCards(c.UserContext(), identity.UserID)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if list == nil {
		list = []models.PaymentCard{}
	}
	return utils.Success(c, fiber.Map{"cards": list})
}

func (h *CardHandler) SetDefault(c *fiber.Ctx, identity models.Identity) error {
	if err := h.cards.SetDefault(c.UserContext(), identity.UserID, c.Params("id")); err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.Success(c, fiber.Map{"message": "default card updated"})
}

func (h *CardHandler) RemoveCard(c *fiber.Ctx, identity models.Identity) error {
	if err := h.cards.RemoveCard(c.UserContext(), identity.UserID, c.Params("id")); err != nil {
		return respondError(c, h.logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *CardHandler) Register(router fiber.Router) {
	r := router.Group("/cards")
	r.Post("/", authed(h.LinkCard))
	r.Get("/", authed(h.ListCards))
	r.Put("/:id/default", authed(h.SetDefault))
	r.Delete("/:id", authed(h.RemoveCard))
}
