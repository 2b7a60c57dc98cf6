// Package middleware provides HTTP middleware components for the application.
// The identity provider issues the tokens; this package only verifies them and
// exposes the subject to handlers.
package middleware

import (
	"errors"
	"strings"

	"scoutpay/internal/models"
	"scoutpay/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const identityKey = "identity"

// AuthMiddleware validates HS256 bearer tokens and stores the caller's
// models.Identity in the request locals.
type AuthMiddleware struct {
	secret []byte
	logger *zap.Logger
}

func NewAuthMiddleware(secret string, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{secret: []byte(secret), logger: logger.Named("auth")}
}

// Handler checks for:
// - Presence of Authorization header with Bearer token
// - Valid JWT signature and expiry
// - A subject to act on
func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return utils.Unauthorized(c, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return utils.Unauthorized(c, "invalid authorization format")
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

	claims := &models.UserClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return utils.Unauthorized(c, "session expired")
		}
		m.logger.Debug("token rejected", zap.Error(err))
		return utils.Unauthorized(c, "invalid token")
	}

	identity := claims.Identity()
	if identity.UserID == "" {
		return utils.Unauthorized(c, "invalid claims")
	}

	c.Locals(identityKey, identity)
	return c.Next()
}

// IdentityFrom returns the identity stored by Handler.
func IdentityFrom(c *fiber.Ctx) (models.Identity, bool) {
	identity, ok := c.Locals(identityKey).(models.Identity)
	return identity, ok && identity.UserID != ""
}
