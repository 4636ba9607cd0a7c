package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Paths to skip logging
var skipLoggingPaths = []string{
	"/healthz",
	"/metrics",
}

// RequestLogging logs method, path, status and duration of every request.
// 4xx answers log at warn, 5xx at error.
func RequestLogging(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, prefix := range skipLoggingPaths {
			if strings.HasPrefix(c.Path(), prefix) {
				return c.Next()
			}
		}

		start := time.Now()
		err := c.Next()
		if err != nil {
			// Let the error handler pick the status before we read it.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		logger.LogAttrs(c.UserContext(), level, "http request",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("ip", c.IP()),
			slog.Any("request_id", c.Locals("requestid")),
		)
		return nil
	}
}
