package handlers

import (
	"context"
	"log/slog"

	"github.com/arzan03/mediadrop/internal/models"
	"github.com/gofiber/fiber/v2"
)

type Uploads interface {
	List(ctx context.Context, limit int) ([]*models.MediaBinding, error)
	ClearAll(ctx context.Context) error
}

type AdminHandler struct {
	uploads Uploads
	logger  *slog.Logger
}

func NewAdminHandler(uploads Uploads, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{uploads: uploads, logger: logger.With(slog.String("component", "admin_handler"))}
}

// ListUploads returns live bindings, newest first.
func (h *AdminHandler) ListUploads(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)

	uploads, err := h.uploads.List(c.UserContext(), limit)
	if err != nil {
		h.logger.Error("list uploads failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch uploads"})
	}
	return c.JSON(fiber.Map{"uploads": uploads, "count": len(uploads)})
}

// ClearUploads deletes every binding and archived copy.
func (h *AdminHandler) ClearUploads(c *fiber.Ctx) error {
	if err := h.uploads.ClearAll(c.UserContext()); err != nil {
		h.logger.Error("clear uploads failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to clear uploads"})
	}
	h.logger.Info("uploads cleared", "by", c.Locals("role"), "ip", c.IP())
	return c.JSON(fiber.Map{"message": "All uploads cleared"})
}
