package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/support-engine/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated delivery channel.
type Principal struct {
	ChannelID string
}

// Middleware validates bearer tokens and stores the channel principal.
type Middleware struct {
	tokens *TokenManager
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager) *Middleware {
	return &Middleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &Principal{ChannelID: claims.ChannelID})
	return c.Next()
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	principal, ok := c.Locals(principalKey).(*Principal)
	return principal, ok && principal != nil
}
