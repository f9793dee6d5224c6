package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-engine/internal/api/dto"
	"github.com/spec-kit/support-engine/internal/domain"
	"github.com/spec-kit/support-engine/internal/flow"
	apperrors "github.com/spec-kit/support-engine/pkg/util"
)

// MessagesHandler ingests inbound customer messages.
type MessagesHandler struct {
	engine *flow.Engine
}

// NewMessagesHandler constructs handler.
func NewMessagesHandler(engine *flow.Engine) *MessagesHandler {
	return &MessagesHandler{engine: engine}
}

// Handle POST /v1/messages.
func (h *MessagesHandler) Handle(c *fiber.Ctx) error {
	var req dto.InboundMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CustomerID == "" {
		return apperrors.NewValidationError("customer_id required", nil)
	}

	response, err := h.engine.Handle(c.UserContext(), domain.InboundMessage{
		CustomerID: req.CustomerID,
		Text:       req.Text,
		TicketRef:  req.TicketRef,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.OutboundResponseBody{
		TicketRef: response.TicketRef,
		Status:    string(response.Status),
		Kind:      string(response.Kind),
		Text:      response.Text,
	}})
}
