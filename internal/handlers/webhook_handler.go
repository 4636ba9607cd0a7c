package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/arzan03/mediadrop/internal/models"
	"github.com/arzan03/mediadrop/internal/services"
	"github.com/gofiber/fiber/v2"
)

type Ingester interface {
	HandleWebhook(ctx context.Context, payload *models.WebhookPayload) []services.IngestResult
}

type WebhookHandler struct {
	ingest      Ingester
	verifyToken string
	logger      *slog.Logger
}

func NewWebhookHandler(ingest Ingester, verifyToken string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingest:      ingest,
		verifyToken: verifyToken,
		logger:      logger.With(slog.String("component", "webhook_handler")),
	}
}

// Verify answers the platform's subscription handshake by echoing the
// challenge when the verify token matches.
func (h *WebhookHandler) Verify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || h.verifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		h.logger.Warn("webhook verification rejected", "mode", mode, "ip", c.IP())
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Verification failed"})
	}
	return c.Status(fiber.StatusOK).SendString(challenge)
}

// Receive ingests a notification. Only an unreadable payload is rejected;
// per-message failures are logged and still acknowledged so the platform
// does not redeliver.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	var payload models.WebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	for _, res := range h.ingest.HandleWebhook(c.UserContext(), &payload) {
		switch {
		case res.Err == nil:
		case errors.Is(res.Err, services.ErrUnsupportedMessage):
			h.logger.Debug("message skipped", "message_id", res.MessageID, "reason", res.Err)
		default:
			h.logger.Error("message not ingested", "message_id", res.MessageID, "error", res.Err)
		}
	}
	return c.SendStatus(fiber.StatusOK)
}
