// Package server assembles the fiber application: middleware, routes and
// the Prometheus endpoint.
package server

import (
	"log/slog"
	"time"

	"github.com/arzan03/mediadrop/internal/handlers"
	"github.com/arzan03/mediadrop/internal/middleware"
	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auth issues and checks admin tokens.
type Auth interface {
	handlers.Authenticator
	middleware.TokenValidator
}

type Deps struct {
	Gateway     handlers.Resolver
	Ingest      handlers.Ingester
	Uploads     handlers.Uploads
	Auth        Auth
	Store       handlers.Pinger
	RateLimiter *middleware.RateLimiter

	WebhookVerifyToken string
	Logger             *slog.Logger
}

// New builds the application. Nothing is started.
func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "mediadrop",
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadTimeout:           30 * time.Second,
		IdleTimeout:           2 * time.Minute,
		// WriteTimeout stays unset: downloads stream for as long as the
		// platform client allows.
	})

	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(middleware.RequestLogging(d.Logger))
	app.Use(middleware.Metrics())
	app.Use(recover.New())
	app.Use(cors.New())

	webhook := handlers.NewWebhookHandler(d.Ingest, d.WebhookVerifyToken, d.Logger)
	download := handlers.NewDownloadHandler(d.Gateway, d.Logger)
	auth := handlers.NewAuthHandler(d.Auth)
	admin := handlers.NewAdminHandler(d.Uploads, d.Logger)

	app.Get("/healthz", handlers.Health(d.Store))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Platform webhook
	app.Get("/webhook", webhook.Verify)
	app.Post("/webhook", webhook.Receive)

	// Public downloads
	if d.RateLimiter != nil {
		app.Get("/download/:code", d.RateLimiter.Limit(d.Logger), download.Download)
	} else {
		app.Get("/download/:code", download.Download)
	}

	// Admin
	app.Post("/auth/login", auth.Login)
	api := app.Group("/api", middleware.AdminOnly(d.Auth))
	api.Get("/uploads", admin.ListUploads)
	api.Delete("/uploads", admin.ClearUploads)

	return app
}
