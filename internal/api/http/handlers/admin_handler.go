package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/repairdesk/internal/api/dto"
	"github.com/spec-kit/repairdesk/internal/service"
	apperrors "github.com/spec-kit/repairdesk/pkg/util/errorutil"
)

// AdminHandler exposes the administrative operations.
type AdminHandler struct {
	admin *service.AdminService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// Stats GET /admin/stats.
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.admin.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// ListReporters GET /admin/reporters.
func (h *AdminHandler) ListReporters(c *fiber.Ctx) error {
	reporters, err := h.admin.RecentReporters(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]dto.ReporterResponse, 0, len(reporters))
	for _, p := range reporters {
		out = append(out, dto.NewReporterResponse(p))
	}
	return c.JSON(fiber.Map{"data": out})
}

// RenameReporter PUT /admin/reporters/:id/name.
func (h *AdminHandler) RenameReporter(c *fiber.Ctx) error {
	id, err := userIDParam(c)
	if err != nil {
		return err
	}
	var req dto.NameRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.admin.SetReporterName(c.UserContext(), id, req.Name); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteReporter DELETE /admin/reporters/:id.
func (h *AdminHandler) DeleteReporter(c *fiber.Ctx) error {
	id, err := userIDParam(c)
	if err != nil {
		return err
	}
	if err := h.admin.DeleteReporter(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListTechnicians GET /admin/technicians.
func (h *AdminHandler) ListTechnicians(c *fiber.Ctx) error {
	techs, err := h.admin.Technicians(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]dto.TechnicianResponse, 0, len(techs))
	for _, t := range techs {
		out = append(out, dto.NewTechnicianResponse(t))
	}
	return c.JSON(fiber.Map{"data": out})
}

// AddTechnician POST /admin/technicians.
func (h *AdminHandler) AddTechnician(c *fiber.Ctx) error {
	var req dto.AddTechnicianRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	added, err := h.admin.AddTechnician(c.UserContext(), req.UserID, req.Name)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if added {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": fiber.Map{"user_id": req.UserID, "added": added}})
}

// RemoveTechnician DELETE /admin/technicians/:id.
func (h *AdminHandler) RemoveTechnician(c *fiber.Ctx) error {
	id, err := userIDParam(c)
	if err != nil {
		return err
	}
	if err := h.admin.RemoveTechnician(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RenameTechnician PUT /admin/technicians/:id/name.
func (h *AdminHandler) RenameTechnician(c *fiber.Ctx) error {
	id, err := userIDParam(c)
	if err != nil {
		return err
	}
	var req dto.NameRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.admin.SetTechnicianName(c.UserContext(), id, req.Name); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ReloadRegistry POST /admin/registry/reload.
func (h *AdminHandler) ReloadRegistry(c *fiber.Ctx) error {
	snapshot, err := h.admin.ReloadRegistry(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"locations":   snapshot.LocationCount(),
		"technicians": len(snapshot.Technicians()),
	}})
}

// Broadcast POST /admin/broadcast.
func (h *AdminHandler) Broadcast(c *fiber.Ctx) error {
	var req dto.BroadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	report, err := h.admin.Broadcast(c.UserContext(), req.Text)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Wipe POST /admin/wipe.
func (h *AdminHandler) Wipe(c *fiber.Ctx) error {
	var req dto.WipeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.admin.Wipe(c.UserContext(), req.Confirm); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// TicketHistory GET /admin/tickets/:id/history.
func (h *AdminHandler) TicketHistory(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	entries, err := h.admin.TicketHistory(c.UserContext(), id)
	if err != nil {
		return err
	}
	out := make([]dto.HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.NewHistoryEntryResponse(e))
	}
	return c.JSON(fiber.Map{"data": out})
}

func userIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid user id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}
