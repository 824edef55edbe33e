package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repairdesk/internal/api/dto"
	"github.com/spec-kit/repairdesk/internal/domain"
	apperrors "github.com/spec-kit/repairdesk/pkg/util/errorutil"
)

// TicketReader loads tickets for the admin view.
type TicketReader interface {
	Get(ctx context.Context, ticketID int64) (*domain.Ticket, error)
}

// TicketsHandler exposes read-only ticket endpoints.
type TicketsHandler struct {
	tickets TicketReader
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets TicketReader) *TicketsHandler {
	return &TicketsHandler{tickets: tickets}
}

// GetTicket GET /admin/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	ticket, err := h.tickets.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}
