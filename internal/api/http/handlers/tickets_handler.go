package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-engine/internal/api/dto"
	"github.com/spec-kit/support-engine/internal/repository"
	apperrors "github.com/spec-kit/support-engine/pkg/util"
)

// TicketsHandler serves operator read access to tickets.
type TicketsHandler struct {
	tickets repository.TicketRepository
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets repository.TicketRepository) *TicketsHandler {
	return &TicketsHandler{tickets: tickets}
}

// GetByRef GET /v1/tickets/:ref.
func (h *TicketsHandler) GetByRef(c *fiber.Ctx) error {
	ref := strings.ToUpper(strings.TrimSpace(c.Params("ref")))
	if ref == "" {
		return apperrors.NewValidationError("ticket ref required", nil)
	}

	ticket, err := h.tickets.GetByRef(c.UserContext(), ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("ticket", map[string]any{"ref": ref})
		}
		return err
	}

	return c.JSON(fiber.Map{"data": dto.TicketDetail{
		ID:          ticket.ID,
		Ref:         ticket.Ref,
		CustomerID:  ticket.CustomerID,
		Intent:      ticket.Intent,
		KnownFields: ticket.KnownFields,
		Mood:        string(ticket.Mood),
		Severity:    string(ticket.Severity),
		Status:      string(ticket.Status),
		Escalated:   ticket.Flags.Escalated,
		HumanReview: ticket.Flags.HumanReview,
		SystemError: ticket.Flags.SystemError,
		Draft:       ticket.Draft,
		TurnCount:   ticket.TurnCount,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
		ResolvedAt:  ticket.ResolvedAt,
	}})
}
