package handlers

import (
	"scoutpay/internal/models"
	"scoutpay/internal/services/notification"
	"scoutpay/internal/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	notifications *notification.Service
	logger        *zap.Logger
}

func NewNotificationHandler(notifications *notification.Service, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

func (h *NotificationHandler) List(c *fiber.Ctx, identity models.Identity) error {
	list, err := h.notifications.List(c.UserContext(), identity.UserID, c.QueryInt("limit", 20))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if list == nil {
		list = []models.Notification{}
	}
	return utils.Success(c, fiber.Map{"notifications": list})
}

func (h *NotificationHandler) Register(router fiber.Router) {
	router.Get("/notifications", authed(h.List))
}
