package handlers

import (
	"errors"

	apperrors "scoutpay/internal/errors"
	"scoutpay/internal/middleware"
	"scoutpay/internal/models"
	"scoutpay/internal/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var statusByCode = map[string]int{
	apperrors.ErrValidation.Code:           fiber.StatusBadRequest,
	apperrors.ErrNotFound.Code:             fiber.StatusNotFound,
	apperrors.ErrInsufficientBalance.Code:  fiber.StatusPaymentRequired,
	apperrors.ErrPaymentNotSuccessful.Code: fiber.StatusPaymentRequired,
	apperrors.ErrInvalidReferralCode.Code:  fiber.StatusNotFound,
	apperrors.ErrAlreadyReferred.Code:      fiber.StatusConflict,
	apperrors.ErrAlreadyExists.Code:        fiber.StatusConflict,
	apperrors.ErrDuplicateTransaction.Code: fiber.StatusConflict,
	apperrors.ErrGatewayUnavailable.Code:   fiber.StatusServiceUnavailable,
}

// respondError writes err using its domain code. Errors without a code are
// logged and reported as 500 without their details.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	var de *apperrors.DomainError
	if errors.As(err, &de) {
		status, ok := statusByCode[de.Code]
		if !ok {
			status = fiber.StatusInternalServerError
		}
		return utils.Error(c, status, de.Code, de.Error())
	}
	logger.Error("request failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return utils.InternalError(c, "internal server error")
}

type identityHandler func(c *fiber.Ctx, identity models.Identity) error

// authed resolves the caller identity set by the auth middleware.
func authed(h identityHandler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := middleware.IdentityFrom(c)
		if !ok {
			return utils.Unauthorized(c, "invalid claims")
		}
		return h(c, identity)
	}
}

// parseBody decodes and validates the request body into dst.
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "invalid request format", err)
	}
	if err := utils.ValidateStruct(dst); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, err.Error(), nil)
	}
	return nil
}
