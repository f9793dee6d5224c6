package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-engine/internal/api/dto"
	"github.com/spec-kit/support-engine/internal/auth"
	apperrors "github.com/spec-kit/support-engine/pkg/util"
)

// AuthHandler issues tokens to delivery channels.
type AuthHandler struct {
	channels *auth.ChannelAuthenticator
}

// NewAuthHandler constructs handler.
func NewAuthHandler(channels *auth.ChannelAuthenticator) *AuthHandler {
	return &AuthHandler{channels: channels}
}

// Token POST /auth/token.
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ChannelID == "" || req.ChannelSecret == "" {
		return apperrors.NewValidationError("channel_id and channel_secret required", nil)
	}

	token, err := h.channels.Authenticate(req.ChannelID, req.ChannelSecret)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
	}})
}
