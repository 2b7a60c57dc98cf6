package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"

	"scoutpay/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"go.uber.org/zap"
)

// ServiceKeyHeader carries the shared key of an internal caller.
const ServiceKeyHeader = "X-Service-Key"

// ServiceKeyMiddleware admits internal callers that present the configured
// shared key. User tokens are never accepted here.
type ServiceKeyMiddleware struct {
	handler fiber.Handler
}

func NewServiceKeyMiddleware(key string, logger *zap.Logger) *ServiceKeyMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("service_auth")

	if key == "" {
		return &ServiceKeyMiddleware{handler: func(c *fiber.Ctx) error {
			return utils.Error(c, fiber.StatusForbidden, "", "internal API disabled")
		}}
	}

	want := sha256.Sum256([]byte(key))
	return &ServiceKeyMiddleware{handler: keyauth.New(keyauth.Config{
		KeyLookup: "header:" + ServiceKeyHeader,
		Validator: func(c *fiber.Ctx, presented string) (bool, error) {
			got := sha256.Sum256([]byte(presented))
			if subtle.ConstantTimeCompare(got[:], want[:]) == 1 {
				return true, nil
			}
			logger.Warn("service key rejected", zap.String("ip", c.IP()), zap.String("path", c.Path()))
			return false, keyauth.ErrMissingOrMalformedAPIKey
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, keyauth.ErrMissingOrMalformedAPIKey) && c.Get(ServiceKeyHeader) == "" {
				return utils.Unauthorized(c, "missing service key")
			}
			return utils.Unauthorized(c, "invalid service key")
		},
	})}
}

// Handler rejects every request while no key is configured.
func (m *ServiceKeyMiddleware) Handler(c *fiber.Ctx) error {
	return m.handler(c)
}
