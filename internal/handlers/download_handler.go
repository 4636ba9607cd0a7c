package handlers

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"regexp"

	"github.com/arzan03/mediadrop/internal/services"
	"github.com/gofiber/fiber/v2"
)

// Codes are 4 digits, wider only after the allocator had to widen.
var codePattern = regexp.MustCompile(`^[0-9]{4,9}$`)

const (
	msgNotFound    = "This code does not exist or has expired."
	msgUnavailable = "The file is temporarily unavailable. Please try again later."
)

type Resolver interface {
	Resolve(ctx context.Context, code string) (*services.Download, error)
	Stat(ctx context.Context, code string) (*services.Download, error)
}

type DownloadHandler struct {
	gateway Resolver
	logger  *slog.Logger
}

func NewDownloadHandler(gateway Resolver, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{gateway: gateway, logger: logger.With(slog.String("component", "download_handler"))}
}

// Download streams the media behind a code. The body is relayed as it
// arrives and closed by fiber once written. HEAD requests only look the
// code up: no body is sent for them, so they must not consume it.
func (h *DownloadHandler) Download(c *fiber.Ctx) error {
	code := c.Params("code")
	if !codePattern.MatchString(code) {
		return c.Status(fiber.StatusNotFound).SendString(msgNotFound)
	}

	if c.Method() == fiber.MethodHead {
		dl, err := h.gateway.Stat(c.UserContext(), code)
		if err != nil {
			return h.fail(c, code, err)
		}
		h.setHeaders(c, dl)
		c.Status(fiber.StatusOK)
		return nil
	}

	dl, err := h.gateway.Resolve(c.UserContext(), code)
	if err != nil {
		return h.fail(c, code, err)
	}

	h.setHeaders(c, dl)
	// A negative size makes fasthttp use chunked encoding.
	return c.SendStream(dl.Body, int(dl.Size))
}

func (h *DownloadHandler) setHeaders(c *fiber.Ctx, dl *services.Download) {
	c.Set(fiber.HeaderContentType, dl.ContentType)
	c.Set(fiber.HeaderContentDisposition, ContentDisposition(dl.Filename))
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
}

func (h *DownloadHandler) fail(c *fiber.Ctx, code string, err error) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).SendString(msgNotFound)
	case errors.Is(err, services.ErrUpstreamResolution), errors.Is(err, services.ErrUpstreamStream):
		return c.Status(fiber.StatusBadGateway).SendString(msgUnavailable)
	default:
		h.logger.Error("download failed", "code", code, "error", err)
		return c.Status(fiber.StatusInternalServerError).SendString("Internal error.")
	}
}

// ContentDisposition builds an attachment header for filename, quoting or
// RFC 2231 encoding it as needed.
func ContentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}
